package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/registry/auth"
	"github.com/bkrepo/registry/registry/storage/cache"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

// blobLocator finds blobs across every repository the caller can read.
// Search results are cached as hints and validated against the node store
// before use.
type blobLocator struct {
	nodes       storagedriver.NodeDriver
	cache       cache.BlobLocationCache
	permissions auth.PermissionChecker
}

// Locate returns a readable node holding dgst, or ErrBlobUnknown.
func (l *blobLocator) Locate(ctx context.Context, dgst digest.Digest) (storagedriver.Location, error) {
	if l.cache != nil {
		locations, err := l.cache.Get(ctx, dgst)
		switch {
		case err == nil:
			if loc, ok := l.pick(ctx, locations, true); ok {
				return loc, nil
			}
			// stale entries, search again
			if err := l.cache.Invalidate(ctx, dgst); err != nil {
				log.GetLogger(log.WithContext(ctx)).WithError(err).Warn("invalidating blob location cache")
			}
		case errors.Is(err, cache.ErrUnknown):
		default:
			log.GetLogger(log.WithContext(ctx)).WithError(err).Warn("reading blob location cache")
		}
	}

	locations, err := l.nodes.FindBlobGlobally(ctx, dgst)
	if err != nil {
		return storagedriver.Location{}, fmt.Errorf("searching blob %s: %w", dgst, err)
	}

	if l.cache != nil && len(locations) > 0 {
		if err := l.cache.Set(ctx, dgst, locations); err != nil {
			log.GetLogger(log.WithContext(ctx)).WithError(err).Warn("writing blob location cache")
		}
	}

	if loc, ok := l.pick(ctx, locations, false); ok {
		return loc, nil
	}
	return storagedriver.Location{}, ErrBlobUnknown{Digest: dgst}
}

// pick returns the first location the caller may read. Cached locations are
// validated against the node store first.
func (l *blobLocator) pick(ctx context.Context, locations []storagedriver.Location, validate bool) (storagedriver.Location, bool) {
	for _, loc := range locations {
		if !l.permissions.CanRead(ctx, loc.ProjectID, loc.RepoName) {
			continue
		}
		if validate {
			n, err := l.nodes.Detail(ctx, loc.NodeKey)
			if err != nil || n.Folder || n.Sha256 != loc.Sha256 {
				continue
			}
		}
		return loc, true
	}
	return storagedriver.Location{}, false
}
