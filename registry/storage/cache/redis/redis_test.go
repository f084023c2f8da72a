package redis

import (
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	dgst := digest.FromString("a")
	require.Equal(t, "registry:blob:locations:"+dgst.String(), key(dgst))
}
