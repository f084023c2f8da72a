// Package schema2 decodes image manifests: docker schema2 and OCI image
// manifests share one layout.
package schema2

import (
	"encoding/json"
	"fmt"

	"github.com/bkrepo/registry/manifest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// Manifest defines a schema2 manifest.
type Manifest struct {
	SchemaVersion int    `json:"schemaVersion"`
	MediaType     string `json:"mediaType,omitempty"`

	// Config references the image configuration as a blob.
	Config v1.Descriptor `json:"config"`

	// Layers lists descriptors for the layers referenced by the
	// configuration.
	Layers []v1.Descriptor `json:"layers"`

	Annotations map[string]string `json:"annotations,omitempty"`
}

func init() {
	manifest.Register(manifest.Schema2, func(p []byte) (*manifest.Metadata, error) {
		m, err := Unmarshal(p)
		if err != nil {
			return nil, err
		}
		return Metadata(m), nil
	})
}

// Unmarshal decodes and validates a schema2 payload.
func Unmarshal(payload []byte) (*Manifest, error) {
	m := new(Manifest)
	if err := json.Unmarshal(payload, m); err != nil {
		return nil, manifest.ErrMalformed{Reason: err.Error()}
	}

	if m.SchemaVersion != 2 {
		return nil, manifest.ErrMalformed{Reason: fmt.Sprintf("unexpected schema version %d", m.SchemaVersion)}
	}
	switch m.MediaType {
	case "", manifest.MediaTypeSchema2, v1.MediaTypeImageManifest:
	default:
		return nil, manifest.ErrMalformed{Reason: fmt.Sprintf("unexpected media type %q", m.MediaType)}
	}
	if m.Config.Digest == "" {
		return nil, manifest.ErrMalformed{Reason: "missing config.digest"}
	}
	if err := m.Config.Digest.Validate(); err != nil {
		return nil, manifest.ErrMalformed{Reason: fmt.Sprintf("config.digest: %v", err)}
	}
	for i, l := range m.Layers {
		if err := l.Digest.Validate(); err != nil {
			return nil, manifest.ErrMalformed{Reason: fmt.Sprintf("layers[%d].digest: %v", i, err)}
		}
	}

	return m, nil
}

// Metadata normalizes m: the config blob first, then the layers in order.
func Metadata(m *Manifest) *manifest.Metadata {
	md := manifest.NewMetadata()

	md.AddBlob(m.Config.Digest, m.Config.Size, m.Config.MediaType)
	md.Config = &manifest.BlobInfo{
		Digest:    m.Config.Digest.String(),
		Size:      m.Config.Size,
		MediaType: m.Config.MediaType,
	}
	for _, l := range m.Layers {
		md.AddBlob(l.Digest, l.Size, l.MediaType)
	}
	md.AddAnnotations(m.Annotations)

	return md
}
