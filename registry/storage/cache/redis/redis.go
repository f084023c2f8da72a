// Package redis provides a BlobLocationCache shared by every registry
// instance through Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bkrepo/registry/registry/storage/cache"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/go-redis/redis/v8"
	"github.com/opencontainers/go-digest"
)

const keyPrefix = "registry:blob:locations:"

type location struct {
	ProjectID string `json:"project_id"`
	RepoName  string `json:"repo_name"`
	FullPath  string `json:"full_path"`
	Sha256    string `json:"sha256"`
	Size      int64  `json:"size"`
}

type blobLocationCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewBlobLocationCache returns a cache storing locations in client, expiring
// entries after ttl. A zero ttl keeps entries until invalidated.
func NewBlobLocationCache(client redis.UniversalClient, ttl time.Duration) cache.BlobLocationCache {
	return &blobLocationCache{client: client, ttl: ttl}
}

func key(dgst digest.Digest) string {
	return keyPrefix + dgst.String()
}

func (c *blobLocationCache) Get(ctx context.Context, dgst digest.Digest) ([]storagedriver.Location, error) {
	if err := cache.ValidateDigest(dgst); err != nil {
		return nil, err
	}

	p, err := c.client.Get(ctx, key(dgst)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrUnknown
		}
		return nil, fmt.Errorf("reading blob locations: %w", err)
	}

	var stored []location
	if err := json.Unmarshal(p, &stored); err != nil {
		return nil, fmt.Errorf("decoding blob locations: %w", err)
	}

	out := make([]storagedriver.Location, 0, len(stored))
	for _, l := range stored {
		out = append(out, storagedriver.Location{
			NodeKey: storagedriver.NodeKey{ProjectID: l.ProjectID, RepoName: l.RepoName, FullPath: l.FullPath},
			Sha256:  l.Sha256,
			Size:    l.Size,
		})
	}
	return out, nil
}

func (c *blobLocationCache) Set(ctx context.Context, dgst digest.Digest, locations []storagedriver.Location) error {
	if err := cache.ValidateDigest(dgst); err != nil {
		return err
	}

	stored := make([]location, 0, len(locations))
	for _, l := range locations {
		stored = append(stored, location{
			ProjectID: l.ProjectID,
			RepoName:  l.RepoName,
			FullPath:  l.FullPath,
			Sha256:    l.Sha256,
			Size:      l.Size,
		})
	}

	p, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, key(dgst), p, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing blob locations: %w", err)
	}
	return nil
}

func (c *blobLocationCache) Invalidate(ctx context.Context, dgst digest.Digest) error {
	if err := cache.ValidateDigest(dgst); err != nil {
		return err
	}

	if err := c.client.Del(ctx, key(dgst)).Err(); err != nil {
		return fmt.Errorf("deleting blob locations: %w", err)
	}
	return nil
}
