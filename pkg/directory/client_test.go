package directory

import (
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(overrides func(*Config)) *Client {
	cfg := Config{
		Host:              "ldap://localhost:389",
		BaseDN:            "dc=example,dc=com",
		MailField:         "mail",
		GroupAttribute:    "memberOf",
		DisabledAttribute: "nsAccountLock",
		DisabledValues:    []string{"TRUE", "true", "1", "yes", "YES"},
	}
	if overrides != nil {
		overrides(&cfg)
	}
	return NewClient(cfg)
}

func TestEntryUser(t *testing.T) {
	t.Parallel()

	c := testClient(nil)

	entry := ldap.NewEntry("uid=alice,dc=example,dc=com", map[string][]string{
		"mail":     {"Alice@Example.COM"},
		"memberOf": {"cn=users,dc=example,dc=com", "cn=admins,dc=example,dc=com"},
	})

	user, ok := c.entryUser(entry)
	require.True(t, ok)
	assert.Equal(t, "uid=alice,dc=example,dc=com", user.DN)
	assert.Equal(t, "alice@example.com", user.Email, "email must be lower-cased")
	assert.Len(t, user.Groups, 2)
	assert.False(t, user.Disabled)
}

func TestEntryUserWithoutMailIsDropped(t *testing.T) {
	t.Parallel()

	c := testClient(nil)
	entry := ldap.NewEntry("uid=nomail,dc=example,dc=com", map[string][]string{
		"memberOf": {"cn=users,dc=example,dc=com"},
	})

	_, ok := c.entryUser(entry)
	assert.False(t, ok)
}

func TestDisabledDetermination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		attrs             map[string][]string
		missingIsDisabled bool
		want              bool
	}{
		{
			name:  "marker value disables",
			attrs: map[string][]string{"mail": {"a@b.c"}, "nsAccountLock": {"TRUE"}},
			want:  true,
		},
		{
			name:  "lower-case marker disables",
			attrs: map[string][]string{"mail": {"a@b.c"}, "nsAccountLock": {"true"}},
			want:  true,
		},
		{
			name:  "numeric marker disables",
			attrs: map[string][]string{"mail": {"a@b.c"}, "nsAccountLock": {"1"}},
			want:  true,
		},
		{
			name:  "non-marker value stays enabled",
			attrs: map[string][]string{"mail": {"a@b.c"}, "nsAccountLock": {"FALSE"}},
			want:  false,
		},
		{
			name:  "value matching is exact, not case-folded",
			attrs: map[string][]string{"mail": {"a@b.c"}, "nsAccountLock": {"True"}},
			want:  false,
		},
		{
			name:  "any of several values disables",
			attrs: map[string][]string{"mail": {"a@b.c"}, "nsAccountLock": {"no", "yes"}},
			want:  true,
		},
		{
			name:  "missing attribute defaults to enabled",
			attrs: map[string][]string{"mail": {"a@b.c"}},
			want:  false,
		},
		{
			name:              "missing attribute with policy is disabled",
			attrs:             map[string][]string{"mail": {"a@b.c"}},
			missingIsDisabled: true,
			want:              true,
		},
		{
			name:              "empty value counts as missing",
			attrs:             map[string][]string{"mail": {"a@b.c"}, "nsAccountLock": {""}},
			missingIsDisabled: true,
			want:              true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := testClient(func(cfg *Config) {
				cfg.MissingIsDisabled = tt.missingIsDisabled
			})
			user, ok := c.entryUser(ldap.NewEntry("uid=x,dc=example,dc=com", tt.attrs))
			require.True(t, ok)
			assert.Equal(t, tt.want, user.Disabled)
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{Host: "ldap://localhost"})
	assert.Equal(t, "memberOf", c.config.GroupAttribute)
	assert.Equal(t, "mail", c.config.MailField)
	assert.NotZero(t, c.config.Timeout)
}

func TestFetchUnreachableHostIsUnavailable(t *testing.T) {
	t.Parallel()

	c := testClient(func(cfg *Config) {
		cfg.Host = "ldap://127.0.0.1:1" // nothing listens here
		cfg.Timeout = 200 * time.Millisecond
	})
	_, err := c.Fetch()
	assert.ErrorIs(t, err, ErrUnavailable)
}
