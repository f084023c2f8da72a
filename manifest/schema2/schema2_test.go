package schema2

import (
	"encoding/json"
	"testing"

	"github.com/bkrepo/registry/manifest"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"
)

func payload(t *testing.T, m Manifest) []byte {
	t.Helper()

	p, err := json.Marshal(m)
	require.NoError(t, err)
	return p
}

func TestDeserialize(t *testing.T) {
	cfg := digest.FromString("config")
	layer := digest.FromString("layer")

	p := payload(t, Manifest{
		SchemaVersion: 2,
		MediaType:     manifest.MediaTypeSchema2,
		Config:        v1.Descriptor{MediaType: manifest.MediaTypeImageConfig, Digest: cfg, Size: 123},
		Layers: []v1.Descriptor{
			{MediaType: "application/vnd.docker.image.rootfs.diff.tar.gzip", Digest: layer, Size: 456},
			{MediaType: "application/vnd.docker.image.rootfs.diff.tar.gzip", Digest: layer, Size: 456},
		},
		Annotations: map[string]string{"org.opencontainers.image.title": "demo"},
	})

	md, err := manifest.Deserialize(p, manifest.Schema2)
	require.NoError(t, err)

	require.Equal(t, digest.FromBytes(p), md.TagInfo.Digest)
	require.NotNil(t, md.Config)
	require.Equal(t, cfg.String(), md.Config.Digest)
	require.Equal(t, int64(123), md.Config.Size)
	require.Len(t, md.BlobsInfo, 2, "duplicate layers collapse")
	require.Equal(t, cfg.String(), md.BlobsInfo[0].Digest)
	require.Equal(t, layer.String(), md.BlobsInfo[1].Digest)
	require.Equal(t, []string{"demo"}, md.TagInfo.Labels["org.opencontainers.image.title"])
}

func TestDeserialize_OCI(t *testing.T) {
	p := payload(t, Manifest{
		SchemaVersion: 2,
		MediaType:     v1.MediaTypeImageManifest,
		Config:        v1.Descriptor{MediaType: v1.MediaTypeImageConfig, Digest: digest.FromString("c"), Size: 1},
	})

	typ, mediaType, err := manifest.Detect("", p)
	require.NoError(t, err)
	require.Equal(t, manifest.Schema2, typ)
	require.Equal(t, v1.MediaTypeImageManifest, mediaType)

	_, err = manifest.Deserialize(p, typ)
	require.NoError(t, err)
}

func TestDeserialize_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "not json"},
		{name: "schema version", payload: `{"schemaVersion":1,"config":{"digest":"` + digest.FromString("c").String() + `"}}`},
		{name: "missing config", payload: `{"schemaVersion":2,"layers":[]}`},
		{name: "invalid config digest", payload: `{"schemaVersion":2,"config":{"digest":"sha256:123"}}`},
		{name: "invalid layer digest", payload: `{"schemaVersion":2,"config":{"digest":"` + digest.FromString("c").String() + `"},"layers":[{"digest":"md5:x"}]}`},
		{name: "list media type", payload: `{"schemaVersion":2,"mediaType":"` + manifest.MediaTypeManifestList + `","config":{"digest":"` + digest.FromString("c").String() + `"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manifest.Deserialize([]byte(tt.payload), manifest.Schema2)
			require.IsType(t, manifest.ErrMalformed{}, err)
		})
	}
}

func TestDigestStability(t *testing.T) {
	p := payload(t, Manifest{
		SchemaVersion: 2,
		Config:        v1.Descriptor{Digest: digest.FromString("c")},
	})
	// whitespace changes the digest: it is computed over the received bytes
	indented := append([]byte(" "), p...)

	require.Equal(t, manifest.Digest(p), manifest.Digest(append([]byte{}, p...)))
	require.NotEqual(t, manifest.Digest(p), manifest.Digest(indented))

	md, err := manifest.Deserialize(indented, manifest.Schema2)
	require.NoError(t, err)
	require.Equal(t, manifest.Digest(indented), md.TagInfo.Digest)
}
