// Package schema1 decodes legacy image manifests, in both unsigned and
// JWS-signed form.
package schema1

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bkrepo/registry/manifest"
	"github.com/docker/libtrust"
	"github.com/opencontainers/go-digest"
)

// FSLayer is a container struct for BlobSums defined in an image manifest
type FSLayer struct {
	// BlobSum is the tarsum of the referenced filesystem image layer
	BlobSum digest.Digest `json:"blobSum"`
}

// History stores unstructured v1 compatibility information
type History struct {
	// V1Compatibility is the raw v1 compatibility information
	V1Compatibility string `json:"v1Compatibility"`
}

// Manifest provides the base accessible fields for working with V2 image
// format in the registry.
type Manifest struct {
	SchemaVersion int       `json:"schemaVersion"`
	Name          string    `json:"name"`
	Tag           string    `json:"tag"`
	Architecture  string    `json:"architecture"`
	FSLayers      []FSLayer `json:"fsLayers"`
	History       []History `json:"history"`
}

func init() {
	manifest.Register(manifest.Schema1, func(p []byte) (*manifest.Metadata, error) {
		m, err := Unmarshal(p)
		if err != nil {
			return nil, err
		}
		return Metadata(m)
	})
	manifest.Register(manifest.Schema1Signed, func(p []byte) (*manifest.Metadata, error) {
		m, err := UnmarshalSigned(p)
		if err != nil {
			return nil, err
		}
		return Metadata(m)
	})
}

// Unmarshal decodes an unsigned schema1 manifest.
func Unmarshal(payload []byte) (*Manifest, error) {
	m := new(Manifest)
	if err := json.Unmarshal(payload, m); err != nil {
		return nil, manifest.ErrMalformed{Reason: err.Error()}
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalSigned extracts the payload of a pretty-printed JWS manifest,
// verifies its signatures and decodes it.
func UnmarshalSigned(payload []byte) (*Manifest, error) {
	js, err := libtrust.ParsePrettySignature(payload, "signatures")
	if err != nil {
		return nil, manifest.ErrMalformed{Reason: fmt.Sprintf("parsing signature: %v", err)}
	}
	if _, err := js.Verify(); err != nil {
		return nil, manifest.ErrMalformed{Reason: fmt.Sprintf("verifying signature: %v", err)}
	}

	p, err := js.Payload()
	if err != nil {
		return nil, manifest.ErrMalformed{Reason: fmt.Sprintf("reading signed payload: %v", err)}
	}

	return Unmarshal(p)
}

func (m *Manifest) validate() error {
	if m.SchemaVersion != 1 {
		return manifest.ErrMalformed{Reason: fmt.Sprintf("unexpected schema version %d", m.SchemaVersion)}
	}
	if len(m.FSLayers) == 0 {
		return manifest.ErrMalformed{Reason: "no layers"}
	}
	if len(m.History) != len(m.FSLayers) {
		return manifest.ErrMalformed{Reason: fmt.Sprintf("%d history entries for %d layers", len(m.History), len(m.FSLayers))}
	}
	for _, l := range m.FSLayers {
		if err := l.BlobSum.Validate(); err != nil {
			return manifest.ErrMalformed{Reason: fmt.Sprintf("layer %q: %v", l.BlobSum, err)}
		}
	}
	return nil
}

// Metadata normalizes m. Labels come from the top-most v1Compatibility entry.
func Metadata(m *Manifest) (*manifest.Metadata, error) {
	md := manifest.NewMetadata()
	for _, l := range m.FSLayers {
		md.AddBlob(l.BlobSum, 0, "")
	}

	if len(m.History) > 0 && m.History[0].V1Compatibility != "" {
		labels, err := manifest.ConfigLabels([]byte(m.History[0].V1Compatibility))
		if err != nil {
			return nil, manifest.ErrMalformed{Reason: fmt.Sprintf("v1Compatibility: %v", err)}
		}
		md.TagInfo.Labels.Merge(labels)
	}

	return md, nil
}

// ErrUnsigned is returned by Sign helpers when no key is supplied.
var ErrUnsigned = errors.New("manifest is not signed")

// Sign marshals m with the indentation libtrust expects and signs it with
// pk, returning the pretty signed payload.
func Sign(m *Manifest, pk libtrust.PrivateKey) ([]byte, error) {
	if pk == nil {
		return nil, ErrUnsigned
	}

	p, err := json.MarshalIndent(m, "", "   ")
	if err != nil {
		return nil, err
	}

	js, err := libtrust.NewJSONSignature(p)
	if err != nil {
		return nil, err
	}
	if err := js.Sign(pk); err != nil {
		return nil, err
	}

	return js.PrettySignature("signatures")
}
