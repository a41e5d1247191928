// Package vaultwarden is a client for the subset of the VaultWarden
// organisation API the sync engine needs: list members, invite, revoke,
// restore. Authentication uses the user-scoped OAuth client-credential
// grant against the identity endpoint.
package vaultwarden

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	// ErrUnavailable marks a transport or API failure against VaultWarden.
	ErrUnavailable = errors.New("vaultwarden unavailable")
	// ErrAuthFailed marks a rejected OAuth credential.
	ErrAuthFailed = errors.New("vaultwarden authentication failed")
)

// Config holds connection settings for one organisation.
type Config struct {
	URL          string
	ClientID     string // "user.<uuid>"
	ClientSecret string
	OrgID        string
	IgnoreCert   bool
	Timeout      time.Duration
}

// Client talks to a single VaultWarden organisation.
type Client struct {
	config Config
	http   *http.Client
	selfID string // uuid part of the client id, empty if unparsable
}

func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	var transport = http.DefaultTransport.(*http.Transport).Clone()
	if config.IgnoreCert {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	var base = &http.Client{Transport: transport, Timeout: config.Timeout}

	var cc = clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     strings.TrimRight(config.URL, "/") + "/identity/connect/token",
		Scopes:       []string{"api"},
		EndpointParams: url.Values{
			"deviceType":       {"14"},
			"deviceIdentifier": {uuid.NewString()},
			"deviceName":       {"vwldap-sync"},
		},
	}
	var ctx = context.WithValue(context.Background(), oauth2.HTTPClient, base)

	var selfID string
	if id, err := uuid.Parse(strings.TrimPrefix(config.ClientID, "user.")); err == nil {
		selfID = id.String()
	} else {
		log.Debug().Str("client_id", config.ClientID).Msg("client id carries no user uuid, self detection disabled")
	}

	var authed = cc.Client(ctx)
	authed.Timeout = config.Timeout

	return &Client{
		config: config,
		http:   authed,
		selfID: selfID,
	}
}

// orgUser mirrors the wire shape of one entry in the organisation users
// listing.
type orgUser struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Status int    `json:"status"`
}

type orgUserList struct {
	Data []orgUser `json:"data"`
}

// Members lists the organisation's members. The member whose account id
// matches the sync credential is flagged IsSelf; when no member matches,
// none is self.
func (c *Client) Members() (members []Member, err error) {
	body, err := c.request(http.MethodGet, nil, "users")
	if err != nil {
		return
	}
	var listing orgUserList
	if err = json.Unmarshal(body, &listing); err != nil {
		err = fmt.Errorf("%w: decode users listing: %v", ErrUnavailable, err)
		return
	}
	for _, u := range listing.Data {
		members = append(members, Member{
			ID:     u.ID,
			UserID: u.UserID,
			Email:  strings.ToLower(strings.TrimSpace(u.Email)),
			Status: Status(u.Status),
			IsSelf: c.selfID != "" && strings.EqualFold(u.UserID, c.selfID),
		})
	}
	return
}

// Invite creates a new invited member.
func (c *Client) Invite(email string) (err error) {
	var payload = map[string]any{
		"emails":      []string{email},
		"collections": []any{},
		"groups":      []any{},
		"type":        2, // regular user
		"accessAll":   false,
	}
	_, err = c.request(http.MethodPost, payload, "users", "invite")
	return
}

// Revoke removes a member's access without deleting the membership.
func (c *Client) Revoke(memberID string) (err error) {
	_, err = c.request(http.MethodPut, nil, "users", memberID, "revoke")
	return
}

// Restore reinstates a previously revoked member.
func (c *Client) Restore(memberID string) (err error) {
	_, err = c.request(http.MethodPut, nil, "users", memberID, "restore")
	return
}

// request performs one authenticated API call under the organisation and
// returns the response body. Non-2xx responses become errors carrying the
// body text; 401/403 and rejected token fetches map to ErrAuthFailed.
func (c *Client) request(method string, payload any, paths ...string) (body []byte, err error) {
	var uri = strings.TrimRight(c.config.URL, "/") + "/api/organizations/" + c.config.OrgID
	for _, p := range paths {
		uri += "/" + p
	}

	var reader io.Reader
	if payload != nil {
		var data []byte
		if data, err = json.Marshal(payload); err != nil {
			return
		}
		reader = bytes.NewReader(data)
	}

	var rq *http.Request
	if rq, err = http.NewRequest(method, uri, reader); err != nil {
		return
	}
	if payload != nil {
		rq.Header.Set("Content-Type", "application/json")
	}

	var rs *http.Response
	if rs, err = c.http.Do(rq); err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			err = fmt.Errorf("%w: token request rejected: %v", ErrAuthFailed, retrieve)
		} else {
			err = fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, uri, err)
		}
		return
	}
	defer rs.Body.Close()

	if body, err = io.ReadAll(rs.Body); err != nil {
		err = fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
		return
	}

	if rs.StatusCode >= 300 {
		var kind = ErrUnavailable
		if rs.StatusCode == http.StatusUnauthorized || rs.StatusCode == http.StatusForbidden {
			kind = ErrAuthFailed
		}
		var detail = strings.TrimSpace(string(body))
		if detail == "" {
			detail = rs.Status
		}
		err = fmt.Errorf("%w: %s %s: %s", kind, method, strings.Join(paths, "/"), detail)
	}
	return
}
