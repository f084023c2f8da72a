// Package cachecheck holds the checks shared by every BlobLocationCache
// implementation.
package cachecheck

import (
	"context"
	"testing"

	"github.com/bkrepo/registry/registry/storage/cache"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

// CheckBlobLocationCache takes a cache implementation through a common set
// of operations.
func CheckBlobLocationCache(t *testing.T, c cache.BlobLocationCache) {
	ctx := context.Background()

	checkBlobLocationCacheEmpty(ctx, t, c)
	checkBlobLocationCacheSetAndRoundTrip(ctx, t, c)
	checkBlobLocationCacheInvalidate(ctx, t, c)
}

func checkBlobLocationCacheEmpty(ctx context.Context, t *testing.T, c cache.BlobLocationCache) {
	_, err := c.Get(ctx, "")
	require.Error(t, err, "expected error checking for empty digest")
	require.NotErrorIs(t, err, cache.ErrUnknown)

	_, err = c.Get(ctx, digest.SHA384.FromString("missing"))
	require.ErrorIs(t, err, cache.ErrUnknown, "expected unknown blob error with empty store")

	err = c.Set(ctx, "", []storagedriver.Location{{Sha256: "abc"}})
	require.Error(t, err, "expected error setting an empty digest")
}

func checkBlobLocationCacheSetAndRoundTrip(ctx context.Context, t *testing.T, c cache.BlobLocationCache) {
	dgst := digest.FromString("layer")
	locations := []storagedriver.Location{
		{NodeKey: storagedriver.Key("proj", "repo", "/foo/v1/"+dgst.Encoded()), Sha256: dgst.Encoded(), Size: 5},
		{NodeKey: storagedriver.Key("other", "repo", "/bar/_uploads/"+dgst.Encoded()), Sha256: dgst.Encoded(), Size: 5},
	}

	require.NoError(t, c.Set(ctx, dgst, locations))

	got, err := c.Get(ctx, dgst)
	require.NoError(t, err)
	require.Equal(t, locations, got)

	// overwriting replaces the previous entry
	require.NoError(t, c.Set(ctx, dgst, locations[:1]))
	got, err = c.Get(ctx, dgst)
	require.NoError(t, err)
	require.Equal(t, locations[:1], got)
}

func checkBlobLocationCacheInvalidate(ctx context.Context, t *testing.T, c cache.BlobLocationCache) {
	dgst := digest.FromString("invalidate me")

	require.NoError(t, c.Set(ctx, dgst, []storagedriver.Location{{Sha256: dgst.Encoded()}}))
	require.NoError(t, c.Invalidate(ctx, dgst))

	_, err := c.Get(ctx, dgst)
	require.ErrorIs(t, err, cache.ErrUnknown)

	// invalidating an unknown digest is not an error
	require.NoError(t, c.Invalidate(ctx, digest.FromString("never set")))
}
