package vaultwarden

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOrgID  = "2822e5d3-3a77-4ffb-bc78-d4ac6e6512b0"
	testUserID = "810e12f0-e8dc-42e1-a592-a6f36f74d35b"
)

// fakeServer emulates the identity endpoint and the organisation users API.
type fakeServer struct {
	*httptest.Server

	users      []orgUser
	calls      []string // "METHOD path" in arrival order, token calls excluded
	rejectAuth bool     // reject the token request
	apiStatus  int      // non-zero forces this status on API calls
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("/identity/connect/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.NotEmpty(t, r.PostForm.Get("deviceIdentifier"))
		w.Header().Set("Content-Type", "application/json")
		if f.rejectAuth {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_client"}`)
			return
		}
		fmt.Fprint(w, `{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`)
	})

	mux.HandleFunc("/api/organizations/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		if f.apiStatus != 0 {
			w.WriteHeader(f.apiStatus)
			fmt.Fprint(w, `{"message":"nope"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(orgUserList{Data: f.users})
			return
		}
		fmt.Fprint(w, `{}`)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func newTestClient(f *fakeServer) *Client {
	return NewClient(Config{
		URL:          f.URL,
		ClientID:     "user." + testUserID,
		ClientSecret: "secret",
		OrgID:        testOrgID,
	})
}

func TestMembers(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.users = []orgUser{
		{ID: "m1", UserID: testUserID, Email: "Sync@Example.COM", Status: 2},
		{ID: "m2", UserID: "3f0e4a6e-0000-4000-8000-000000000001", Email: "alice@example.com", Status: -1},
		{ID: "m3", UserID: "", Email: "invited@example.com", Status: 0},
	}

	members, err := newTestClient(f).Members()
	require.NoError(t, err)
	require.Len(t, members, 3)

	assert.Equal(t, "sync@example.com", members[0].Email, "email must be lower-cased")
	assert.True(t, members[0].IsSelf, "member matching the credential uuid is self")
	assert.Equal(t, StatusConfirmed, members[0].Status)

	assert.False(t, members[1].IsSelf)
	assert.True(t, members[1].Revoked())

	assert.False(t, members[2].IsSelf, "members without an account id are never self")
	assert.Equal(t, StatusInvited, members[2].Status)

	assert.Equal(t, []string{"GET /api/organizations/" + testOrgID + "/users"}, f.calls)
}

func TestMembersNoSelfMatchIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.users = []orgUser{
		{ID: "m1", UserID: "3f0e4a6e-0000-4000-8000-000000000001", Email: "a@example.com", Status: 2},
	}

	members, err := newTestClient(f).Members()
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.False(t, members[0].IsSelf)
}

func TestActionEndpoints(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	c := newTestClient(f)

	require.NoError(t, c.Invite("new@example.com"))
	require.NoError(t, c.Revoke("m7"))
	require.NoError(t, c.Restore("m8"))

	base := "/api/organizations/" + testOrgID + "/users"
	assert.Equal(t, []string{
		"POST " + base + "/invite",
		"PUT " + base + "/m7/revoke",
		"PUT " + base + "/m8/restore",
	}, f.calls)
}

func TestRejectedCredentialsAreAuthFailure(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.rejectAuth = true

	_, err := newTestClient(f).Members()
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAPIStatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "unauthorized is auth failure", status: http.StatusUnauthorized, want: ErrAuthFailed},
		{name: "forbidden is auth failure", status: http.StatusForbidden, want: ErrAuthFailed},
		{name: "server error is unavailable", status: http.StatusInternalServerError, want: ErrUnavailable},
		{name: "bad request is unavailable", status: http.StatusBadRequest, want: ErrUnavailable},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFakeServer(t)
			f.apiStatus = tt.status
			_, err := newTestClient(f).Members()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUnreachableServerIsUnavailable(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	c := newTestClient(f)
	f.Close()

	// A dead endpoint fails the token fetch with a transport error, not a
	// credential rejection.
	_, err := c.Members()
	assert.ErrorIs(t, err, ErrUnavailable)
}
