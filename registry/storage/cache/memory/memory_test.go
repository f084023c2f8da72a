package memory

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bkrepo/registry/registry/storage/cache"
	"github.com/bkrepo/registry/registry/storage/cache/cachecheck"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

// TestInMemoryBlobLocationCache checks the in memory implementation is working
// correctly.
func TestInMemoryBlobLocationCache(t *testing.T) {
	cachecheck.CheckBlobLocationCache(t, NewBlobLocationCache(0, 0))
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	c := newWithClock(10, time.Minute, clk)

	dgst := digest.FromString("a")
	require.NoError(t, c.Set(ctx, dgst, []storagedriver.Location{{Sha256: dgst.Encoded()}}))

	clk.Add(59 * time.Second)
	_, err := c.Get(ctx, dgst)
	require.NoError(t, err)

	clk.Add(time.Second)
	_, err = c.Get(ctx, dgst)
	require.ErrorIs(t, err, cache.ErrUnknown)
}

func TestEviction(t *testing.T) {
	ctx := context.Background()
	c := newWithClock(2, time.Minute, clock.NewMock())

	a, b, d := digest.FromString("a"), digest.FromString("b"), digest.FromString("d")
	require.NoError(t, c.Set(ctx, a, nil))
	require.NoError(t, c.Set(ctx, b, nil))

	// touch a so b becomes the oldest
	_, err := c.Get(ctx, a)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, d, nil))

	_, err = c.Get(ctx, b)
	require.ErrorIs(t, err, cache.ErrUnknown)
	_, err = c.Get(ctx, a)
	require.NoError(t, err)
	_, err = c.Get(ctx, d)
	require.NoError(t, err)
}
