// Package manifestlist decodes manifest lists and OCI image indexes.
package manifestlist

import (
	"encoding/json"
	"fmt"

	"github.com/bkrepo/registry/manifest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// ManifestList references manifests for various platforms.
type ManifestList struct {
	SchemaVersion int    `json:"schemaVersion"`
	MediaType     string `json:"mediaType,omitempty"`

	// Manifests references platform specific manifests.
	Manifests []v1.Descriptor `json:"manifests"`

	Annotations map[string]string `json:"annotations,omitempty"`
}

func init() {
	manifest.Register(manifest.Schema2List, func(p []byte) (*manifest.Metadata, error) {
		ml, err := Unmarshal(p)
		if err != nil {
			return nil, err
		}
		return Metadata(ml), nil
	})
}

// Unmarshal decodes and validates a manifest list payload.
func Unmarshal(payload []byte) (*ManifestList, error) {
	ml := new(ManifestList)
	if err := json.Unmarshal(payload, ml); err != nil {
		return nil, manifest.ErrMalformed{Reason: err.Error()}
	}

	if ml.SchemaVersion != 2 {
		return nil, manifest.ErrMalformed{Reason: fmt.Sprintf("unrecognized manifest list schema version %d", ml.SchemaVersion)}
	}
	switch ml.MediaType {
	case "", manifest.MediaTypeManifestList, v1.MediaTypeImageIndex:
	default:
		return nil, manifest.ErrMalformed{Reason: fmt.Sprintf("unexpected media type %q", ml.MediaType)}
	}
	for i, d := range ml.Manifests {
		if err := d.Digest.Validate(); err != nil {
			return nil, manifest.ErrMalformed{Reason: fmt.Sprintf("manifests[%d].digest: %v", i, err)}
		}
	}

	return ml, nil
}

// References returns the descriptors of the list entries.
func (ml *ManifestList) References() []v1.Descriptor {
	refs := make([]v1.Descriptor, len(ml.Manifests))
	copy(refs, ml.Manifests)
	return refs
}

// Metadata normalizes ml: references only, no blobs.
func Metadata(ml *ManifestList) *manifest.Metadata {
	md := manifest.NewMetadata()
	md.References = ml.References()
	md.AddAnnotations(ml.Annotations)
	return md
}
