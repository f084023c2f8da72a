package manifest_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/bkrepo/registry/manifest"
	"github.com/bkrepo/registry/manifest/manifestlist"
	"github.com/bkrepo/registry/manifest/schema2"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"
)

func TestType(t *testing.T) {
	tests := []struct {
		typ       manifest.Type
		name      string
		mediaType string
		filename  string
	}{
		{manifest.Schema1, "Schema1", manifest.MediaTypeSchema1, "manifest.json"},
		{manifest.Schema1Signed, "Schema1Signed", manifest.MediaTypeSchema1Signed, "manifest.json"},
		{manifest.Schema2, "Schema2", manifest.MediaTypeSchema2, "manifest.json"},
		{manifest.Schema2List, "Schema2List", manifest.MediaTypeManifestList, "list.manifest.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.name, tt.typ.String())
			require.Equal(t, tt.mediaType, tt.typ.MediaType())
			require.Equal(t, tt.filename, tt.typ.Filename())

			parsed, err := manifest.ParseType(tt.name)
			require.NoError(t, err)
			require.Equal(t, tt.typ, parsed)

			fromMT, ok := manifest.FromMediaType(tt.mediaType)
			require.True(t, ok)
			require.Equal(t, tt.typ, fromMT)
		})
	}

	_, err := manifest.ParseType("Schema3")
	require.Error(t, err)
}

func TestFromMediaType_OCI(t *testing.T) {
	typ, ok := manifest.FromMediaType(v1.MediaTypeImageManifest)
	require.True(t, ok)
	require.Equal(t, manifest.Schema2, typ)

	typ, ok = manifest.FromMediaType(v1.MediaTypeImageIndex)
	require.True(t, ok)
	require.Equal(t, manifest.Schema2List, typ)

	_, ok = manifest.FromMediaType("application/json")
	require.False(t, ok)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		declared  string
		payload   string
		typ       manifest.Type
		mediaType string
		wantErr   bool
	}{
		{
			name:      "declared wins",
			declared:  manifest.MediaTypeSchema2,
			payload:   `garbage`,
			typ:       manifest.Schema2,
			mediaType: manifest.MediaTypeSchema2,
		},
		{
			name:      "payload media type",
			declared:  "application/octet-stream",
			payload:   `{"schemaVersion":2,"mediaType":"` + v1.MediaTypeImageIndex + `"}`,
			typ:       manifest.Schema2List,
			mediaType: v1.MediaTypeImageIndex,
		},
		{
			name:      "schema1 sniffed",
			payload:   `{"schemaVersion":1}`,
			typ:       manifest.Schema1,
			mediaType: manifest.MediaTypeSchema1,
		},
		{
			name:      "schema2 list sniffed",
			payload:   `{"schemaVersion":2,"manifests":[{}]}`,
			typ:       manifest.Schema2List,
			mediaType: manifest.MediaTypeManifestList,
		},
		{
			name:      "schema2 sniffed",
			payload:   `{"schemaVersion":2,"config":{}}`,
			typ:       manifest.Schema2,
			mediaType: manifest.MediaTypeSchema2,
		},
		{name: "unknown version", payload: `{"schemaVersion":3}`, wantErr: true},
		{name: "not json", payload: `}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, mediaType, err := manifest.Detect(tt.declared, []byte(tt.payload))
			if tt.wantErr {
				require.IsType(t, manifest.ErrMalformed{}, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.typ, typ)
			require.Equal(t, tt.mediaType, mediaType)
		})
	}
}

func TestEmptyLayer(t *testing.T) {
	require.Equal(t, manifest.EmptyLayerDigest, digest.FromBytes(manifest.EmptyLayer()))
	require.True(t, manifest.IsEmptyLayer(manifest.EmptyLayerDigest))
	require.False(t, manifest.IsEmptyLayer(digest.FromString("")))

	// callers cannot mutate the shared bytes
	p := manifest.EmptyLayer()
	p[0] = 0
	require.Equal(t, manifest.EmptyLayerDigest, digest.FromBytes(manifest.EmptyLayer()))
}

func TestConfigLabels(t *testing.T) {
	labels, err := manifest.ConfigLabels([]byte(`{
		"config": {"Labels": {"a": "1", "b": "2"}},
		"container_config": {"Labels": {"a": "0"}}
	}`))
	require.NoError(t, err)
	require.Equal(t, []string{"0", "1"}, labels["a"])
	require.Equal(t, []string{"2"}, labels["b"])
	require.Equal(t, []string{"a", "b"}, labels.Keys())

	_, err = manifest.ConfigLabels([]byte(`[`))
	require.Error(t, err)
}

func schema2Payload(t *testing.T, cfg digest.Digest) []byte {
	t.Helper()

	p, err := json.Marshal(schema2.Manifest{
		SchemaVersion: 2,
		MediaType:     manifest.MediaTypeSchema2,
		Config:        v1.Descriptor{MediaType: manifest.MediaTypeImageConfig, Digest: cfg, Size: 7},
		Layers:        []v1.Descriptor{{Digest: digest.FromString("layer-" + cfg.Encoded()), Size: 1}},
	})
	require.NoError(t, err)
	return p
}

func listPayload(t *testing.T, refs ...digest.Digest) []byte {
	t.Helper()

	ml := manifestlist.ManifestList{SchemaVersion: 2, MediaType: manifest.MediaTypeManifestList}
	for _, r := range refs {
		ml.Manifests = append(ml.Manifests, v1.Descriptor{Digest: r})
	}
	p, err := json.Marshal(ml)
	require.NoError(t, err)
	return p
}

type mapFetcher map[digest.Digest][]byte

func (m mapFetcher) FetchManifest(_ context.Context, d digest.Digest) ([]byte, string, error) {
	p, ok := m[d]
	if !ok {
		return nil, "", errors.New("not found")
	}
	return p, "", nil
}

func TestCollectBlobs_Manifest(t *testing.T) {
	cfg := digest.FromString("cfg")
	p := schema2Payload(t, cfg)

	blobs, err := manifest.CollectBlobs(context.Background(), p, manifest.Schema2, mapFetcher{})
	require.NoError(t, err)
	require.Len(t, blobs, 2)
	require.Equal(t, cfg.String(), blobs[0].Digest)
}

func TestCollectBlobs_NestedList(t *testing.T) {
	cfgA := digest.FromString("cfg-a")
	cfgB := digest.FromString("cfg-b")

	mA := schema2Payload(t, cfgA)
	mB := schema2Payload(t, cfgB)
	mBDup := schema2Payload(t, cfgB) // identical bytes, same digest

	inner := listPayload(t, digest.FromBytes(mB))
	outer := listPayload(t, digest.FromBytes(mA), digest.FromBytes(inner), digest.FromBytes(mBDup))

	fetcher := mapFetcher{
		digest.FromBytes(mA):    mA,
		digest.FromBytes(mB):    mB,
		digest.FromBytes(inner): inner,
	}

	blobs, err := manifest.CollectBlobs(context.Background(), outer, manifest.Schema2List, fetcher)
	require.NoError(t, err)
	require.Len(t, blobs, 2)
	require.Equal(t, cfgA.String(), blobs[0].Digest)
	require.Equal(t, cfgB.String(), blobs[1].Digest)

	// same input, same output
	again, err := manifest.CollectBlobs(context.Background(), outer, manifest.Schema2List, fetcher)
	require.NoError(t, err)
	require.Equal(t, blobs, again)
}

func TestCollectBlobs_MissingReference(t *testing.T) {
	missing := digest.FromString("missing")
	outer := listPayload(t, missing)

	_, err := manifest.CollectBlobs(context.Background(), outer, manifest.Schema2List, mapFetcher{})
	require.Error(t, err)
	require.Contains(t, err.Error(), missing.String())
}

func TestDeserialize_Unregistered(t *testing.T) {
	_, err := manifest.Deserialize([]byte(`{}`), manifest.Type(42))
	require.ErrorIs(t, err, manifest.ErrNoDeserializer)
}
