//go:build integration
// +build integration

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bkrepo/registry/registry/storage/cache/cachecheck"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestRedisBlobLocationCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Please set REDIS_ADDR to test the redis blob location cache")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())
	require.NoError(t, client.FlushDB(ctx).Err())

	cachecheck.CheckBlobLocationCache(t, NewBlobLocationCache(client, time.Minute))
}
