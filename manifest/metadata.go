package manifest

import (
	"encoding/json"
	"sort"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// Labels is a multi-map of tag level labels.
type Labels map[string][]string

// Add appends value under key, skipping exact duplicates.
func (l Labels) Add(key, value string) {
	for _, v := range l[key] {
		if v == value {
			return
		}
	}
	l[key] = append(l[key], value)
}

// Merge adds every value of other into l.
func (l Labels) Merge(other Labels) {
	for k, vv := range other {
		for _, v := range vv {
			l.Add(k, v)
		}
	}
}

// Keys returns the label keys in lexical order.
func (l Labels) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TagInfo carries the tag level facts of a manifest.
type TagInfo struct {
	Digest digest.Digest
	Labels Labels
}

// BlobInfo describes one layer or config blob referenced by a manifest. Path
// and ParentPath are filled in by the storage layer once the tag directory is
// known.
type BlobInfo struct {
	Path       string
	Digest     string
	Size       int64
	ParentPath string
	MediaType  string
}

// Metadata is the normalized model of a manifest payload. For manifest lists
// BlobsInfo is empty and References holds the per-platform manifests.
type Metadata struct {
	TagInfo    TagInfo
	BlobsInfo  []BlobInfo
	Config     *BlobInfo
	References []v1.Descriptor
}

// NewMetadata returns an empty Metadata with initialized labels.
func NewMetadata() *Metadata {
	return &Metadata{TagInfo: TagInfo{Labels: make(Labels)}}
}

// AddBlob appends a blob reference, ignoring digests already present.
func (m *Metadata) AddBlob(d digest.Digest, size int64, mediaType string) {
	for _, b := range m.BlobsInfo {
		if b.Digest == d.String() {
			return
		}
	}
	m.BlobsInfo = append(m.BlobsInfo, BlobInfo{Digest: d.String(), Size: size, MediaType: mediaType})
}

// AddAnnotations records OCI annotations as labels.
func (m *Metadata) AddAnnotations(annotations map[string]string) {
	for k, v := range annotations {
		m.TagInfo.Labels.Add(k, v)
	}
}

type imageConfig struct {
	Config *struct {
		Labels map[string]string `json:"Labels"`
	} `json:"config"`
	ContainerConfig *struct {
		Labels map[string]string `json:"Labels"`
	} `json:"container_config"`
}

// ConfigLabels extracts the labels of an image configuration document, as
// found in a schema2 config blob or in a schema1 v1Compatibility entry.
func ConfigLabels(payload []byte) (Labels, error) {
	var cfg imageConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return nil, err
	}

	labels := make(Labels)
	if cfg.ContainerConfig != nil {
		for k, v := range cfg.ContainerConfig.Labels {
			labels.Add(k, v)
		}
	}
	if cfg.Config != nil {
		for k, v := range cfg.Config.Labels {
			labels.Add(k, v)
		}
	}

	return labels, nil
}
