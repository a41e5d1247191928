// Package directory reads the candidate user set from an LDAP directory.
package directory

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
)

// ErrUnavailable marks a connection, bind or search failure against the
// directory. It aborts the current reconciliation cycle.
var ErrUnavailable = errors.New("directory unavailable")

// User is one directory entry eligible for membership evaluation.
type User struct {
	DN       string
	Email    string // lower-cased
	Groups   []string
	Disabled bool
}

// Config holds LDAP connection and attribute settings.
type Config struct {
	Host         string // ldap://host:389 or ldaps://host:636
	BindDN       string
	BindPassword string
	BaseDN       string

	ObjectType  string // objectClass value, "" or "*" matches any
	Groups      string // delimited DN list, see BuildFilter
	ExtraFilter string // raw filter fragment

	GroupAttribute    string // default memberOf
	MailField         string // default mail
	DisabledAttribute string // default nsAccountLock
	DisabledValues    []string
	MissingIsDisabled bool

	InsecureSkipVerify bool
	CAFile             string
	Timeout            time.Duration
}

// Client fetches users from the directory. A fresh connection is made per
// fetch; cycles are minutes apart, so pooling buys nothing here.
type Client struct {
	config Config
}

func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.GroupAttribute == "" {
		config.GroupAttribute = "memberOf"
	}
	if config.MailField == "" {
		config.MailField = "mail"
	}
	return &Client{config: config}
}

// Fetch binds to the directory and returns every entry matching the
// configured filters. Entries without a usable mail attribute are dropped
// with a warning. On duplicate emails the last entry wins.
func (c *Client) Fetch() (users []User, err error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var filter = BuildFilter(c.config.ObjectType, c.config.Groups, c.config.ExtraFilter, c.config.GroupAttribute)
	var attributes = []string{c.config.MailField, c.config.GroupAttribute}
	if c.config.DisabledAttribute != "" {
		attributes = append(attributes, c.config.DisabledAttribute)
	}

	log.Debug().
		Str("base_dn", c.config.BaseDN).
		Str("filter", filter).
		Strs("attributes", attributes).
		Msg("searching directory")

	req := ldap.NewSearchRequest(
		c.config.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, // no size limit
		int(c.config.Timeout/time.Second),
		false,
		filter,
		attributes,
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", ErrUnavailable, c.config.BaseDN, err)
	}

	for _, entry := range result.Entries {
		user, ok := c.entryUser(entry)
		if !ok {
			log.Warn().Str("dn", entry.DN).Msg("directory entry has no mail attribute, skipping")
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func (c *Client) dial() (*ldap.Conn, error) {
	var opts = []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: c.config.Timeout}),
	}
	if strings.HasPrefix(strings.ToLower(c.config.Host), "ldaps://") {
		tlsConfig, err := c.tlsConfig()
		if err != nil {
			return nil, err
		}
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}

	conn, err := ldap.DialURL(c.config.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, c.config.Host, err)
	}
	conn.SetTimeout(c.config.Timeout)

	if err = conn.Bind(c.config.BindDN, c.config.BindPassword); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: bind as %s: %v", ErrUnavailable, c.config.BindDN, err)
	}
	return conn, nil
}

func (c *Client) tlsConfig() (*tls.Config, error) {
	if c.config.InsecureSkipVerify {
		return &tls.Config{InsecureSkipVerify: true}, nil
	}
	if c.config.CAFile == "" {
		return &tls.Config{}, nil
	}
	pem, err := os.ReadFile(c.config.CAFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read CA file: %v", ErrUnavailable, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrUnavailable, c.config.CAFile)
	}
	return &tls.Config{RootCAs: pool}, nil
}

// entryUser shapes one search result. ok is false when the entry carries no
// mail value.
func (c *Client) entryUser(entry *ldap.Entry) (user User, ok bool) {
	var email = strings.TrimSpace(entry.GetAttributeValue(c.config.MailField))
	if email == "" {
		return
	}
	user = User{
		DN:       entry.DN,
		Email:    strings.ToLower(email),
		Groups:   entry.GetAttributeValues(c.config.GroupAttribute),
		Disabled: c.disabled(entry),
	}
	ok = true
	return
}

// disabled evaluates the lockout attribute: any value from the configured
// set marks the account disabled; a missing or empty attribute falls back to
// the MissingIsDisabled policy.
func (c *Client) disabled(entry *ldap.Entry) bool {
	if c.config.DisabledAttribute == "" {
		return false
	}
	var present bool
	for _, v := range entry.GetAttributeValues(c.config.DisabledAttribute) {
		if v == "" {
			continue // empty values count as missing
		}
		present = true
		for _, marker := range c.config.DisabledValues {
			if v == marker {
				return true
			}
		}
	}
	if !present {
		return c.config.MissingIsDisabled
	}
	return false
}
