// Package storage implements the registry operations on top of a node driver
// holding the artifact tree and a blob store holding the bytes. Manifests,
// blobs, uploads and listings are all resolved through the paths built in
// paths.go.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/reference"
	"github.com/bkrepo/registry/registry/auth"
	"github.com/bkrepo/registry/registry/storage/cache"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
)

// SyncPolicy selects where the blobs referenced by an uploaded manifest may
// be taken from.
type SyncPolicy string

const (
	// SyncLocal only uses blobs uploaded to the same project repository.
	SyncLocal SyncPolicy = "local"
	// SyncGlobal also copies blobs found in any readable repository.
	SyncGlobal SyncPolicy = "global"
)

// ParseSyncPolicy parses a configured policy. An empty string selects
// SyncLocal.
func ParseSyncPolicy(s string) (SyncPolicy, error) {
	switch SyncPolicy(s) {
	case "", SyncLocal:
		return SyncLocal, nil
	case SyncGlobal:
		return SyncGlobal, nil
	default:
		return "", fmt.Errorf("unknown sync policy %q", s)
	}
}

const defaultValidationConcurrency = 8

// Registry implements the registry operations.
type Registry struct {
	nodes       storagedriver.NodeDriver
	blobs       storagedriver.BlobStore
	permissions auth.PermissionChecker
	cache       cache.BlobLocationCache

	syncPolicy            SyncPolicy
	catalogMaxEntries     int
	validationConcurrency int

	locator *blobLocator
	uploads *uploadTracker
	server  *blobServer
}

// RegistryOption is the type used for functional options for NewRegistry.
type RegistryOption func(*Registry) error

// WithSyncPolicy sets the manifest blob sync policy.
func WithSyncPolicy(policy SyncPolicy) RegistryOption {
	return func(r *Registry) error {
		switch policy {
		case SyncLocal, SyncGlobal:
			r.syncPolicy = policy
			return nil
		default:
			return fmt.Errorf("unknown sync policy %q", policy)
		}
	}
}

// WithBlobLocationCache caches the results of global blob searches.
func WithBlobLocationCache(c cache.BlobLocationCache) RegistryOption {
	return func(r *Registry) error {
		r.cache = c
		return nil
	}
}

// WithPermissionChecker sets the permission checker consulted by every
// operation. Without it every operation is allowed.
func WithPermissionChecker(pc auth.PermissionChecker) RegistryOption {
	return func(r *Registry) error {
		r.permissions = pc
		return nil
	}
}

// WithCatalogMaxEntries caps the size of catalog pages.
func WithCatalogMaxEntries(n int) RegistryOption {
	return func(r *Registry) error {
		if n < 0 {
			return fmt.Errorf("catalog max entries must not be negative, got %d", n)
		}
		r.catalogMaxEntries = n
		return nil
	}
}

// WithValidationConcurrency bounds the number of concurrent lookups made
// while validating manifest list references.
func WithValidationConcurrency(n int) RegistryOption {
	return func(r *Registry) error {
		if n <= 0 {
			return fmt.Errorf("validation concurrency must be positive, got %d", n)
		}
		r.validationConcurrency = n
		return nil
	}
}

// NewRegistry creates a new Registry on top of nodes and blobs.
func NewRegistry(ctx context.Context, nodes storagedriver.NodeDriver, blobs storagedriver.BlobStore, options ...RegistryOption) (*Registry, error) {
	if nodes == nil || blobs == nil {
		return nil, errors.New("registry requires a node driver and a blob store")
	}

	r := &Registry{
		nodes:                 nodes,
		blobs:                 blobs,
		permissions:           auth.AllowAll,
		syncPolicy:            SyncLocal,
		validationConcurrency: defaultValidationConcurrency,
	}

	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}

	r.locator = &blobLocator{
		nodes:       nodes,
		cache:       r.cache,
		permissions: r.permissions,
	}
	r.uploads = &uploadTracker{blobs: blobs}
	r.server = &blobServer{blobs: blobs}

	log.GetLogger(log.WithContext(ctx)).WithFields(log.Fields{
		"node_driver":    nodes.Name(),
		"blob_driver":    blobs.Name(),
		"sync_policy":    r.syncPolicy,
		"location_cache": r.cache != nil,
	}).Info("registry storage initialized")

	return r, nil
}

// SyncPolicy returns the configured sync policy.
func (r *Registry) SyncPolicy() SyncPolicy {
	return r.syncPolicy
}

// checkRepository makes sure the project repository of art exists and that
// the caller may perform the action on it.
func (r *Registry) checkRepository(ctx context.Context, art reference.Artifact, write bool) error {
	action := "read"
	allowed := r.permissions.CanRead
	if write {
		action = "write"
		allowed = r.permissions.CanWrite
	}
	if !allowed(ctx, art.ProjectID, art.RepoName) {
		return ErrUnauthorized{Action: action, ProjectID: art.ProjectID, RepoName: art.RepoName}
	}

	if _, err := r.nodes.Repository(ctx, art.ProjectID, art.RepoName); err != nil {
		if errors.Is(err, storagedriver.ErrRepositoryNotFound) {
			return ErrRepoNotFound{ProjectID: art.ProjectID, RepoName: art.RepoName}
		}
		return fmt.Errorf("resolving repository: %w", err)
	}

	return nil
}

func (r *Registry) key(art reference.Artifact, p string) storagedriver.NodeKey {
	return storagedriver.Key(art.ProjectID, art.RepoName, p)
}

func logger(ctx context.Context, art reference.Artifact) log.Logger {
	return log.GetLogger(log.WithContext(ctx)).WithFields(log.Fields{
		"project_id": art.ProjectID,
		"repo_name":  art.RepoName,
		"repository": art.DockerRepo,
	})
}
