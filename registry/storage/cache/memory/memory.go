// Package memory provides an in process BlobLocationCache bounded in size and
// entry age.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bkrepo/registry/registry/storage/cache"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

const (
	// DefaultSize is the default number of digests kept.
	DefaultSize = 10000
	// DefaultTTL is the default age after which entries are ignored.
	DefaultTTL = 10 * time.Minute
)

type entry struct {
	dgst      digest.Digest
	locations []storagedriver.Location
	expiresAt time.Time
}

type blobLocationCache struct {
	mu      sync.Mutex
	clock   clock.Clock
	size    int
	ttl     time.Duration
	lru     *list.List
	entries map[digest.Digest]*list.Element
}

// NewBlobLocationCache returns a cache holding at most size digests for ttl.
// Zero values select the defaults.
func NewBlobLocationCache(size int, ttl time.Duration) cache.BlobLocationCache {
	return newWithClock(size, ttl, clock.New())
}

func newWithClock(size int, ttl time.Duration, c clock.Clock) *blobLocationCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &blobLocationCache{
		clock:   c,
		size:    size,
		ttl:     ttl,
		lru:     list.New(),
		entries: make(map[digest.Digest]*list.Element),
	}
}

func (c *blobLocationCache) Get(ctx context.Context, dgst digest.Digest) ([]storagedriver.Location, error) {
	if err := cache.ValidateDigest(dgst); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[dgst]
	if !ok {
		return nil, cache.ErrUnknown
	}
	e := el.Value.(*entry)
	if !c.clock.Now().Before(e.expiresAt) {
		c.lru.Remove(el)
		delete(c.entries, dgst)
		return nil, cache.ErrUnknown
	}
	c.lru.MoveToFront(el)

	out := make([]storagedriver.Location, len(e.locations))
	copy(out, e.locations)
	return out, nil
}

func (c *blobLocationCache) Set(ctx context.Context, dgst digest.Digest, locations []storagedriver.Location) error {
	if err := cache.ValidateDigest(dgst); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]storagedriver.Location, len(locations))
	copy(stored, locations)
	e := &entry{dgst: dgst, locations: stored, expiresAt: c.clock.Now().Add(c.ttl)}

	if el, ok := c.entries[dgst]; ok {
		el.Value = e
		c.lru.MoveToFront(el)
		return nil
	}

	c.entries[dgst] = c.lru.PushFront(e)
	for c.lru.Len() > c.size {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).dgst)
	}

	return nil
}

func (c *blobLocationCache) Invalidate(ctx context.Context, dgst digest.Digest) error {
	if err := cache.ValidateDigest(dgst); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[dgst]; ok {
		c.lru.Remove(el)
		delete(c.entries, dgst)
	}
	return nil
}
