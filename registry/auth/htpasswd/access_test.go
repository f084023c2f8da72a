package htpasswd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bkrepo/registry/registry/auth"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writeHTPasswd(t *testing.T, users map[string]string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("# registry users\n\n")
	for user, password := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		fmt.Fprintf(&b, "%s:%s\n", user, hash)
	}

	p := filepath.Join(t.TempDir(), "htpasswd")
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0600))
	return p
}

func TestAccessController(t *testing.T) {
	path := writeHTPasswd(t, map[string]string{"alice": "s3cret", "bob": "hunter2"})

	ac, err := newAccessController(map[string]interface{}{"realm": "test-realm", "path": path})
	require.NoError(t, err)

	var tests = []struct {
		name        string
		setAuth     func(r *http.Request)
		expectUser  string
		expectError error
	}{
		{
			name:        "no credentials",
			setAuth:     func(*http.Request) {},
			expectError: auth.ErrInvalidCredential,
		},
		{
			name:        "wrong password",
			setAuth:     func(r *http.Request) { r.SetBasicAuth("alice", "nope") },
			expectError: auth.ErrAuthenticationFailure,
		},
		{
			name:        "unknown user",
			setAuth:     func(r *http.Request) { r.SetBasicAuth("eve", "s3cret") },
			expectError: auth.ErrAuthenticationFailure,
		},
		{
			name:       "valid credentials",
			setAuth:    func(r *http.Request) { r.SetBasicAuth("bob", "hunter2") },
			expectUser: "bob",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v2/", nil)
			tt.setAuth(req)

			ctx, err := ac.Authorized(auth.WithRequest(context.Background(), req))
			if tt.expectError != nil {
				require.Error(t, err)
				ch, ok := err.(auth.Challenge)
				require.True(t, ok)
				require.Contains(t, ch.Error(), tt.expectError.Error())

				w := httptest.NewRecorder()
				ch.SetHeaders(req, w)
				require.Equal(t, `Basic realm="test-realm"`, w.Header().Get("WWW-Authenticate"))
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.expectUser, auth.UserFromContext(ctx).Name)

			pc := auth.PermissionsOf(ac)
			require.True(t, pc.CanRead(ctx, "p", "r"))
			require.True(t, pc.CanWrite(ctx, "p", "r"))
		})
	}
}

func TestPermissions_Anonymous(t *testing.T) {
	path := writeHTPasswd(t, map[string]string{"alice": "s3cret"})
	ac, err := newAccessController(map[string]interface{}{"realm": "r", "path": path})
	require.NoError(t, err)

	pc := auth.PermissionsOf(ac)
	require.False(t, pc.CanRead(context.Background(), "p", "r"))
	require.False(t, pc.CanWrite(context.Background(), "p", "r"))
}

func TestNewAccessController_Invalid(t *testing.T) {
	_, err := newAccessController(map[string]interface{}{"path": "/nonexistent"})
	require.EqualError(t, err, `"realm" must be set for htpasswd access controller`)

	_, err = newAccessController(map[string]interface{}{"realm": "r"})
	require.EqualError(t, err, `"path" must be set for htpasswd access controller`)

	_, err = newAccessController(map[string]interface{}{"realm": "r", "path": filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}

func TestParseHTPasswd(t *testing.T) {
	entries, err := parseHTPasswd(strings.NewReader("# comment\n\nalice:$2y$05$hash\n  bob:$2y$05$other  \n"))
	require.NoError(t, err)
	require.Equal(t, map[string][]byte{
		"alice": []byte("$2y$05$hash"),
		"bob":   []byte("$2y$05$other"),
	}, entries)

	_, err = parseHTPasswd(strings.NewReader("alice\n"))
	require.EqualError(t, err, `htpasswd: invalid entry at line 1: "alice"`)
}
