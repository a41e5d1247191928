// Package config loads the runtime configuration from process environment
// variables. Every recognized variable is enumerated here; the struct is
// built once at startup and passed by value to every component.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultSyncInterval   = 60
	DefaultMaxFailures    = 5
	DefaultGroupAttribute = "memberOf"
	DefaultMailField      = "mail"
	DefaultDisabledAttr   = "nsAccountLock"
)

// DefaultDisabledValues are the attribute values that mark a directory
// account as disabled when LDAP_DISABLED_VALUES is not set.
var DefaultDisabledValues = []string{"TRUE", "true", "1", "yes", "YES"}

// Error reports a malformed or missing required environment variable.
// It is fatal at startup; the sync loop never begins.
type Error struct {
	Var    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Var, e.Reason)
}

// Config is the immutable runtime configuration.
type Config struct {
	Debug                  bool
	SyncInterval           int // seconds
	RunOnce                bool
	MaxConsecutiveFailures int

	// VaultWarden
	VWURL          string
	VWClientID     string
	VWClientSecret string
	VWOrgID        string
	IgnoreVWCert   bool

	// LDAP
	LDAPHost          string
	BindDN            string
	BindPassword      string
	BaseDN            string
	ObjectType        string
	UserGroups        string // raw comma/semicolon/pipe separated DN list
	GroupAttribute    string
	Filter            string
	MailField         string
	DisabledAttribute string
	DisabledValues    []string
	MissingIsDisabled bool
	UsersOnly         bool
	IgnoreLDAPSCert   bool
	CAFile            string

	PreventSelfLock bool
}

// Load reads the environment and validates required variables.
func Load() (cfg Config, err error) {
	var v = viper.New()
	v.AutomaticEnv()

	cfg = Config{
		Debug:                  envBool(v, "DEBUG", false),
		RunOnce:                envBool(v, "RUN_ONCE", false),
		VWURL:                  v.GetString("VW_URL"),
		VWClientID:             v.GetString("VW_USER_CLIENT_ID"),
		VWClientSecret:         v.GetString("VW_USER_CLIENT_SECRET"),
		VWOrgID:                v.GetString("VW_ORG_ID"),
		IgnoreVWCert:           envBool(v, "IGNORE_VW_CERT", false),
		LDAPHost:               v.GetString("LDAP_HOST"),
		BindDN:                 v.GetString("LDAP_BIND_DN"),
		BindPassword:           v.GetString("LDAP_BIND_PASSWORD"),
		BaseDN:                 v.GetString("LDAP_BASE_DN"),
		ObjectType:             v.GetString("LDAP_OBJECT_TYPE"),
		UserGroups:             v.GetString("LDAP_USER_GROUPS"),
		GroupAttribute:         envDefault(v, "LDAP_GROUP_ATTRIBUTE", DefaultGroupAttribute),
		Filter:                 v.GetString("LDAP_FILTER"),
		MailField:              envDefault(v, "LDAP_MAIL_FIELD", DefaultMailField),
		DisabledAttribute:      envDefault(v, "LDAP_DISABLED_ATTRIBUTE", DefaultDisabledAttr),
		MissingIsDisabled:      envBool(v, "LDAP_MISSING_IS_DISABLED", false),
		UsersOnly:              envBool(v, "LDAP_USERS_ONLY", false),
		IgnoreLDAPSCert:        envBool(v, "IGNORE_LDAPS_CERT", false),
		CAFile:                 v.GetString("LDAP_CA_FILE"),
		PreventSelfLock: envBool(v, "PREVENT_SELF_LOCK", true),
	}

	if cfg.SyncInterval, err = envInt(v, "SYNC_INTERVAL", DefaultSyncInterval); err != nil {
		return
	}
	if cfg.MaxConsecutiveFailures, err = envInt(v, "MAX_CONSECUTIVE_FAILURES", DefaultMaxFailures); err != nil {
		return
	}

	cfg.DisabledValues = envList(v, "LDAP_DISABLED_VALUES")
	if len(cfg.DisabledValues) == 0 {
		cfg.DisabledValues = DefaultDisabledValues
	}

	// The admin UI exposes org ids as "organization.<uuid>".
	cfg.VWOrgID = strings.TrimPrefix(cfg.VWOrgID, "organization.")

	var required = []struct{ name, value string }{
		{"VW_URL", cfg.VWURL},
		{"VW_USER_CLIENT_ID", cfg.VWClientID},
		{"VW_USER_CLIENT_SECRET", cfg.VWClientSecret},
		{"VW_ORG_ID", cfg.VWOrgID},
		{"LDAP_HOST", cfg.LDAPHost},
		{"LDAP_BIND_DN", cfg.BindDN},
		{"LDAP_BIND_PASSWORD", cfg.BindPassword},
		{"LDAP_BASE_DN", cfg.BaseDN},
	}
	for _, r := range required {
		if r.value == "" {
			err = &Error{Var: r.name, Reason: "required but not set"}
			return
		}
	}
	return
}

// ParseBool implements the truth table shared with the container tooling:
// case-insensitive 1/true/yes/on are true, anything else is false.
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func envBool(v *viper.Viper, name string, fallback bool) bool {
	if !v.IsSet(name) {
		return fallback
	}
	return ParseBool(v.GetString(name))
}

func envDefault(v *viper.Viper, name, fallback string) string {
	if value := v.GetString(name); value != "" {
		return value
	}
	return fallback
}

func envInt(v *viper.Viper, name string, fallback int) (int, error) {
	if !v.IsSet(name) {
		return fallback, nil
	}
	var raw = strings.TrimSpace(v.GetString(name))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &Error{Var: name, Reason: fmt.Sprintf("not an integer: %q", raw)}
	}
	if n <= 0 {
		return 0, &Error{Var: name, Reason: fmt.Sprintf("must be positive, got %d", n)}
	}
	return n, nil
}

func envList(v *viper.Viper, name string) (values []string) {
	for _, part := range strings.Split(v.GetString(name), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return
}
