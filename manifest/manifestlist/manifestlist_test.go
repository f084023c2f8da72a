package manifestlist

import (
	"encoding/json"
	"testing"

	"github.com/bkrepo/registry/manifest"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"
)

func TestDeserialize(t *testing.T) {
	amd64 := digest.FromString("amd64")
	arm64 := digest.FromString("arm64")

	p, err := json.Marshal(ManifestList{
		SchemaVersion: 2,
		MediaType:     manifest.MediaTypeManifestList,
		Manifests: []v1.Descriptor{
			{MediaType: manifest.MediaTypeSchema2, Digest: amd64, Size: 10, Platform: &v1.Platform{Architecture: "amd64", OS: "linux"}},
			{MediaType: manifest.MediaTypeSchema2, Digest: arm64, Size: 11, Platform: &v1.Platform{Architecture: "arm64", OS: "linux"}},
		},
	})
	require.NoError(t, err)

	typ, _, err := manifest.Detect("", p)
	require.NoError(t, err)
	require.Equal(t, manifest.Schema2List, typ)

	md, err := manifest.Deserialize(p, typ)
	require.NoError(t, err)
	require.Empty(t, md.BlobsInfo)
	require.Len(t, md.References, 2)
	require.Equal(t, amd64, md.References[0].Digest)
	require.Equal(t, arm64, md.References[1].Digest)
	require.Equal(t, digest.FromBytes(p), md.TagInfo.Digest)
}

func TestDeserialize_Malformed(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":       "[",
		"schema version": `{"schemaVersion":1,"manifests":[]}`,
		"bad digest":     `{"schemaVersion":2,"manifests":[{"digest":"sha256:00"}]}`,
		"media type":     `{"schemaVersion":2,"mediaType":"text/plain","manifests":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := manifest.Deserialize([]byte(payload), manifest.Schema2List)
			require.IsType(t, manifest.ErrMalformed{}, err)
		})
	}
}
