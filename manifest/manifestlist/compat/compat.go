// Package compat provides compatibility support for manifest lists containing
// blobs, such as buildx cache manifests using OCI Image Indexes. Since
// manifest lists should not include blob references, this package serves to
// separate the code for backwards compatibility from the code which assumes
// manifest lists that only reference manifests.
package compat

import (
	"errors"

	"github.com/bkrepo/registry/manifest"
	"github.com/bkrepo/registry/manifest/manifestlist"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// MediaTypeBuildxCacheConfig is the mediatype associated with buildx
// cache config blobs. This should be unique to buildx.
var MediaTypeBuildxCacheConfig = "application/vnd.buildkit.cacheconfig.v0"

// SplitReferences contains two lists of manifest list references broken down
// into either blobs or manifests. The result of appending these two lists
// together should include all of the descriptors returned by
// ManifestList.References with no duplicates, additions, or omissions.
type SplitReferences struct {
	Manifests []v1.Descriptor
	Blobs     []v1.Descriptor
}

// References returns the references of the ManifestList split into manifests
// and layers based on the mediatype of the standard list of descriptors. Only
// known manifest mediatypes, or entries without a mediatype, are sorted into
// the manifests array while everything else is sorted into blobs.
func References(ml *manifestlist.ManifestList) SplitReferences {
	var (
		manifests = make([]v1.Descriptor, 0)
		blobs     = make([]v1.Descriptor, 0)
	)

	for _, r := range ml.References() {
		if _, ok := manifest.FromMediaType(r.MediaType); ok || r.MediaType == "" {
			manifests = append(manifests, r)
			continue
		}
		blobs = append(blobs, r)
	}

	return SplitReferences{Manifests: manifests, Blobs: blobs}
}

// LikelyBuildxCache returns true if the manifest list is likely a buildx cache
// manifest based on the unique buildx config mediatype.
func LikelyBuildxCache(ml *manifestlist.ManifestList) bool {
	for _, desc := range References(ml).Blobs {
		if desc.MediaType == MediaTypeBuildxCacheConfig {
			return true
		}
	}

	return false
}

// ContainsBlobs returns true if the manifest list contains any blobs.
func ContainsBlobs(ml *manifestlist.ManifestList) bool {
	return len(References(ml).Blobs) > 0
}

// BuildkitIndexBlobs sets the config and layer references of a buildkit cache
// index apart.
func BuildkitIndexBlobs(ml *manifestlist.ManifestList) (v1.Descriptor, []v1.Descriptor, error) {
	refs := References(ml)
	if len(refs.Manifests) > 0 {
		return v1.Descriptor{}, nil, errors.New("buildkit index has unexpected manifest references")
	}

	var cfg *v1.Descriptor
	var layers []v1.Descriptor
	for i, ref := range refs.Blobs {
		if ref.MediaType == MediaTypeBuildxCacheConfig {
			cfg = &refs.Blobs[i]
		} else {
			layers = append(layers, ref)
		}
	}

	if cfg == nil {
		return v1.Descriptor{}, nil, errors.New("buildkit index has no config reference")
	}
	if len(layers) == 0 {
		return v1.Descriptor{}, nil, errors.New("buildkit index has no layer references")
	}

	return *cfg, layers, nil
}
