package fixed

import (
	"context"
	"testing"

	"github.com/bkrepo/registry/registry/auth"
	"github.com/stretchr/testify/require"
)

func TestAuthorized(t *testing.T) {
	var tests = []struct {
		name         string
		options      map[string]interface{}
		expectedUser string
	}{
		{
			name:         "default user",
			options:      map[string]interface{}{},
			expectedUser: "fixed",
		},
		{
			name:         "configured user",
			options:      map[string]interface{}{"user": "alice"},
			expectedUser: "alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac, err := newAccessController(tt.options)
			require.NoError(t, err)

			ctx, err := ac.Authorized(context.Background(), auth.Access{})
			require.NoError(t, err)

			require.Equal(t, tt.expectedUser, auth.UserFromContext(ctx).Name)
			require.Equal(t, tt.expectedUser, ctx.Value(auth.UserNameKey))
		})
	}
}

func TestPermissions(t *testing.T) {
	var tests = []struct {
		name          string
		options       map[string]interface{}
		project       string
		expectedRead  bool
		expectedWrite bool
	}{
		{
			name:          "unrestricted",
			options:       map[string]interface{}{},
			project:       "any",
			expectedRead:  true,
			expectedWrite: true,
		},
		{
			name:          "read only",
			options:       map[string]interface{}{"readonly": true},
			project:       "any",
			expectedRead:  true,
			expectedWrite: false,
		},
		{
			name:          "listed project",
			options:       map[string]interface{}{"projects": []interface{}{"ops", "dev"}},
			project:       "dev",
			expectedRead:  true,
			expectedWrite: true,
		},
		{
			name:          "unlisted project",
			options:       map[string]interface{}{"projects": []interface{}{"ops"}},
			project:       "dev",
			expectedRead:  false,
			expectedWrite: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac, err := newAccessController(tt.options)
			require.NoError(t, err)

			pc := auth.PermissionsOf(ac)
			require.Equal(t, tt.expectedRead, pc.CanRead(context.Background(), tt.project, "docker-local"))
			require.Equal(t, tt.expectedWrite, pc.CanWrite(context.Background(), tt.project, "docker-local"))
		})
	}
}

func TestNewAccessController_Invalid(t *testing.T) {
	_, err := newAccessController(map[string]interface{}{"readonly": "yes"})
	require.EqualError(t, err, `"readonly" must be a boolean for fixed access controller`)

	_, err = newAccessController(map[string]interface{}{"user": 1})
	require.EqualError(t, err, `"user" must be a non-empty string for fixed access controller`)

	_, err = newAccessController(map[string]interface{}{"projects": []interface{}{1}})
	require.EqualError(t, err, `"projects" must only contain strings for fixed access controller`)
}

func TestRegistered(t *testing.T) {
	ac, err := auth.GetAccessController("fixed", map[string]interface{}{})
	require.NoError(t, err)
	require.NotNil(t, ac)
}
