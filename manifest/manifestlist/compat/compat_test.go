package compat

import (
	"testing"

	"github.com/bkrepo/registry/manifest"
	"github.com/bkrepo/registry/manifest/manifestlist"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"
)

const mediaTypeLayer = "application/vnd.docker.image.rootfs.diff.tar.gzip"

func TestReferences(t *testing.T) {
	var tests = []struct {
		name              string
		descriptors       []v1.Descriptor
		expectedManifests []v1.Descriptor
		expectedBlobs     []v1.Descriptor
	}{
		{
			name: "OCI Image Index",
			descriptors: []v1.Descriptor{
				{MediaType: v1.MediaTypeImageManifest, Size: 2343, Digest: digest.FromString("OCI Manifest 1")},
				{MediaType: v1.MediaTypeImageManifest, Size: 354, Digest: digest.FromString("OCI Manifest 2")},
			},
			expectedManifests: []v1.Descriptor{
				{MediaType: v1.MediaTypeImageManifest, Size: 2343, Digest: digest.FromString("OCI Manifest 1")},
				{MediaType: v1.MediaTypeImageManifest, Size: 354, Digest: digest.FromString("OCI Manifest 2")},
			},
			expectedBlobs: []v1.Descriptor{},
		},
		{
			name: "Buildx Cache Manifest",
			descriptors: []v1.Descriptor{
				{MediaType: v1.MediaTypeImageLayer, Size: 792343, Digest: digest.FromString("OCI Layer 1")},
				{MediaType: v1.MediaTypeImageLayer, Size: 35324234, Digest: digest.FromString("OCI Layer 2")},
				{MediaType: MediaTypeBuildxCacheConfig, Size: 4233, Digest: digest.FromString("Cache Config 1")},
			},
			expectedManifests: []v1.Descriptor{},
			expectedBlobs: []v1.Descriptor{
				{MediaType: v1.MediaTypeImageLayer, Size: 792343, Digest: digest.FromString("OCI Layer 1")},
				{MediaType: v1.MediaTypeImageLayer, Size: 35324234, Digest: digest.FromString("OCI Layer 2")},
				{MediaType: MediaTypeBuildxCacheConfig, Size: 4233, Digest: digest.FromString("Cache Config 1")},
			},
		},
		{
			name: "Mixed Manifest List",
			descriptors: []v1.Descriptor{
				{MediaType: manifest.MediaTypeSchema2, Size: 723, Digest: digest.FromString("Schema2 Manifest 1")},
				{MediaType: mediaTypeLayer, Size: 2340184, Digest: digest.FromString("Schema 2 Layer 1")},
			},
			expectedManifests: []v1.Descriptor{
				{MediaType: manifest.MediaTypeSchema2, Size: 723, Digest: digest.FromString("Schema2 Manifest 1")},
			},
			expectedBlobs: []v1.Descriptor{
				{MediaType: mediaTypeLayer, Size: 2340184, Digest: digest.FromString("Schema 2 Layer 1")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ml := &manifestlist.ManifestList{SchemaVersion: 2, Manifests: tt.descriptors}

			splitRef := References(ml)
			require.ElementsMatch(t, tt.expectedManifests, splitRef.Manifests)
			require.ElementsMatch(t, tt.expectedBlobs, splitRef.Blobs)

			allRef := append(splitRef.Manifests, splitRef.Blobs...)
			require.ElementsMatch(t, ml.References(), allRef)
		})
	}
}

func TestLikelyBuildxCache(t *testing.T) {
	cache := &manifestlist.ManifestList{Manifests: []v1.Descriptor{
		{MediaType: v1.MediaTypeImageLayer, Digest: digest.FromString("layer")},
		{MediaType: MediaTypeBuildxCacheConfig, Digest: digest.FromString("cfg")},
	}}
	require.True(t, LikelyBuildxCache(cache))
	require.True(t, ContainsBlobs(cache))

	cfg, layers, err := BuildkitIndexBlobs(cache)
	require.NoError(t, err)
	require.Equal(t, digest.FromString("cfg"), cfg.Digest)
	require.Len(t, layers, 1)

	index := &manifestlist.ManifestList{Manifests: []v1.Descriptor{
		{MediaType: v1.MediaTypeImageManifest, Digest: digest.FromString("m")},
	}}
	require.False(t, LikelyBuildxCache(index))
	require.False(t, ContainsBlobs(index))

	_, _, err = BuildkitIndexBlobs(index)
	require.EqualError(t, err, "buildkit index has unexpected manifest references")
}

func TestBuildkitIndexBlobs_Incomplete(t *testing.T) {
	noConfig := &manifestlist.ManifestList{Manifests: []v1.Descriptor{
		{MediaType: v1.MediaTypeImageLayer, Digest: digest.FromString("layer")},
	}}
	_, _, err := BuildkitIndexBlobs(noConfig)
	require.EqualError(t, err, "buildkit index has no config reference")

	noLayers := &manifestlist.ManifestList{Manifests: []v1.Descriptor{
		{MediaType: MediaTypeBuildxCacheConfig, Digest: digest.FromString("cfg")},
	}}
	_, _, err = BuildkitIndexBlobs(noLayers)
	require.EqualError(t, err, "buildkit index has no layer references")
}
