// Package fixed provides an access controller granting the same user and
// the same permissions to every request. It is meant for development and
// tests, where standing up a real authentication service is not worth it.
package fixed

import (
	"context"
	"fmt"

	"github.com/bkrepo/registry/registry/auth"
)

const defaultUser = "fixed"

// accessController authenticates every request as one configured user. It
// may be restricted to a set of projects and to read-only access.
type accessController struct {
	user     string
	readOnly bool
	projects map[string]struct{}
}

var (
	_ auth.AccessController  = &accessController{}
	_ auth.PermissionChecker = &accessController{}
)

func newAccessController(options map[string]interface{}) (auth.AccessController, error) {
	ac := &accessController{user: defaultUser}

	if user, present := options["user"]; present {
		s, ok := user.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf(`"user" must be a non-empty string for fixed access controller`)
		}
		ac.user = s
	}

	if readOnly, present := options["readonly"]; present {
		b, ok := readOnly.(bool)
		if !ok {
			return nil, fmt.Errorf(`"readonly" must be a boolean for fixed access controller`)
		}
		ac.readOnly = b
	}

	if projects, present := options["projects"]; present {
		list, ok := projects.([]interface{})
		if !ok {
			return nil, fmt.Errorf(`"projects" must be a list for fixed access controller`)
		}
		ac.projects = make(map[string]struct{}, len(list))
		for _, p := range list {
			s, ok := p.(string)
			if !ok {
				return nil, fmt.Errorf(`"projects" must only contain strings for fixed access controller`)
			}
			ac.projects[s] = struct{}{}
		}
	}

	return ac, nil
}

// Authorized injects the configured user.
func (ac *accessController) Authorized(ctx context.Context, access ...auth.Access) (context.Context, error) {
	return auth.WithUser(ctx, auth.UserInfo{Name: ac.user}), nil
}

func (ac *accessController) allowed(projectID string) bool {
	if ac.projects == nil {
		return true
	}
	_, ok := ac.projects[projectID]
	return ok
}

// CanRead grants read access to the configured projects.
func (ac *accessController) CanRead(ctx context.Context, projectID, repoName string) bool {
	return ac.allowed(projectID)
}

// CanWrite grants write access to the configured projects unless read-only.
func (ac *accessController) CanWrite(ctx context.Context, projectID, repoName string) bool {
	return !ac.readOnly && ac.allowed(projectID)
}

// Register fixed auth backend.
func init() {
	if err := auth.Register("fixed", auth.InitFunc(newAccessController)); err != nil {
		panic(err)
	}
}
