// Package cache provides facilities to speed up global blob lookups. Cached
// entries are hints: callers re-validate a location before relying on it.
package cache

import (
	"context"
	"errors"
	"fmt"

	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

// ErrUnknown is returned when a digest has no cached locations.
var ErrUnknown = errors.New("cache: unknown digest")

// BlobLocationCache remembers where blobs were found by a global search.
type BlobLocationCache interface {
	Get(ctx context.Context, dgst digest.Digest) ([]storagedriver.Location, error)
	Set(ctx context.Context, dgst digest.Digest, locations []storagedriver.Location) error
	Invalidate(ctx context.Context, dgst digest.Digest) error
}

// ValidateDigest rejects digests that cannot be used as cache keys.
func ValidateDigest(dgst digest.Digest) error {
	if err := dgst.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}
