// Package auth defines a standard interface for request access controllers
// and for the permission checks the registry performs on repositories.
//
// An access controller authenticates a request and returns a context
// carrying the authenticated user:
//
//	ctx, err := accessController.Authorized(ctx, access...)
//	if err != nil {
//		if challenge, ok := err.(auth.Challenge); ok {
//			// Let the challenge write the response.
//			challenge.SetHeaders(r, w)
//			w.WriteHeader(http.StatusUnauthorized)
//			return
//		}
//		// Some other error.
//	}
//
// Access controllers that also implement PermissionChecker decide whether
// the user of a context may read or write a project repository. Controllers
// are registered by name from the init function of their package and built
// with GetAccessController.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	// UserKey is used to get the user object from
	// a user context
	UserKey = "auth.user"

	// UserNameKey is used to get the user name from
	// a user context
	UserNameKey = "auth.user.name"

	// Anonymous is the name of unauthenticated users.
	Anonymous = "anonymous"
)

var (
	// ErrInvalidCredential is returned when the auth token does not authenticate correctly.
	ErrInvalidCredential = errors.New("invalid authorization credential")

	// ErrAuthenticationFailure returned when authentication fails.
	ErrAuthenticationFailure = errors.New("authentication failure")
)

// UserInfo carries information about an authenticated/authorized client.
type UserInfo struct {
	Name string
}

// IsAnonymous reports whether u stands for an unauthenticated client.
func (u UserInfo) IsAnonymous() bool {
	return u.Name == "" || u.Name == Anonymous
}

// Resource describes a resource by type and name.
type Resource struct {
	Type string
	Name string
}

// Access describes a specific action that is requested or allowed for a
// given resource.
type Access struct {
	Resource
	Action string
}

// Challenge is a special error type which is used for HTTP 401 Unauthorized
// responses and is able to write the response with WWW-Authenticate challenge
// header values based on the error.
type Challenge interface {
	error

	// SetHeaders prepares the request to conduct a challenge response by
	// adding an the appropriate WWW-Authenticate header to the response.
	SetHeaders(r *http.Request, w http.ResponseWriter)
}

// AccessController controls access to registry resources based on a request
// and required access levels for a request. Implementations can support both
// complete denial and http authorization challenges.
type AccessController interface {
	// Authorized returns a non-nil error if the context is granted access and
	// returns a new authorized context. The request is available through
	// RequestFromContext. If the request is not authenticated, a Challenge
	// error is returned.
	Authorized(ctx context.Context, access ...Access) (context.Context, error)
}

// PermissionChecker decides whether the user of ctx may read or write the
// repository repoName of project projectID.
type PermissionChecker interface {
	CanRead(ctx context.Context, projectID, repoName string) bool
	CanWrite(ctx context.Context, projectID, repoName string) bool
}

type allowAll struct{}

func (allowAll) CanRead(context.Context, string, string) bool  { return true }
func (allowAll) CanWrite(context.Context, string, string) bool { return true }

// AllowAll grants every permission.
var AllowAll PermissionChecker = allowAll{}

// PermissionsOf returns the PermissionChecker implemented by ac, or AllowAll
// when ac does not implement one.
func PermissionsOf(ac AccessController) PermissionChecker {
	if pc, ok := ac.(PermissionChecker); ok {
		return pc
	}
	return AllowAll
}

// WithUser returns a context with the authorized user info.
func WithUser(ctx context.Context, user UserInfo) context.Context {
	return userInfoContext{
		Context: ctx,
		user:    user,
	}
}

type userInfoContext struct {
	context.Context
	user UserInfo
}

func (uic userInfoContext) Value(key interface{}) interface{} {
	switch key {
	case UserKey:
		return uic.user
	case UserNameKey:
		return uic.user.Name
	}

	return uic.Context.Value(key)
}

// UserFromContext returns the user of ctx. Unauthenticated contexts yield
// the anonymous user.
func UserFromContext(ctx context.Context) UserInfo {
	if u, ok := ctx.Value(UserKey).(UserInfo); ok {
		return u
	}
	return UserInfo{Name: Anonymous}
}

type requestKey struct{}

// WithRequest returns a context carrying the inbound request, for access
// controllers that need to inspect its headers.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFromContext returns the request stored by WithRequest.
func RequestFromContext(ctx context.Context) (*http.Request, error) {
	r, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || r == nil {
		return nil, errors.New("no http request in context")
	}
	return r, nil
}

// InitFunc is the type of an AccessController factory function and is used
// to register the constructor for different AccesController backends.
type InitFunc func(options map[string]interface{}) (AccessController, error)

var accessControllers map[string]InitFunc

func init() {
	accessControllers = make(map[string]InitFunc)
}

// Register is used to register an InitFunc for
// an AccessController backend with the given name.
func Register(name string, initFunc InitFunc) error {
	if _, exists := accessControllers[name]; exists {
		return fmt.Errorf("name already registered: %s", name)
	}

	accessControllers[name] = initFunc

	return nil
}

// GetAccessController constructs an AccessController
// with the given options using the named backend.
func GetAccessController(name string, options map[string]interface{}) (AccessController, error) {
	if initFunc, exists := accessControllers[name]; exists {
		return initFunc(options)
	}

	return nil, fmt.Errorf("no access controller registered with name: %s", name)
}
