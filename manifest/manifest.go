// Package manifest holds the normalized manifest model shared by the schema
// specific codecs, and dispatches raw payloads to the codec registered for
// their type.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	// MediaTypeSchema1 is the media type of unsigned schema1 manifests.
	MediaTypeSchema1 = "application/vnd.docker.distribution.manifest.v1+json"
	// MediaTypeSchema1Signed is the media type of signed schema1 manifests.
	MediaTypeSchema1Signed = "application/vnd.docker.distribution.manifest.v1+prettyjws"
	// MediaTypeSchema2 is the media type of image manifests.
	MediaTypeSchema2 = "application/vnd.docker.distribution.manifest.v2+json"
	// MediaTypeManifestList is the media type of manifest lists.
	MediaTypeManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
	// MediaTypeImageConfig is the media type of schema2 image configurations.
	MediaTypeImageConfig = "application/vnd.docker.container.image.v1+json"
)

// Type is the closed set of manifest variants the registry stores.
type Type int

const (
	Schema1 Type = iota
	Schema1Signed
	Schema2
	Schema2List
)

const (
	// Filename is the node name used for every manifest but lists.
	Filename = "manifest.json"
	// ListFilename is the node name used for manifest lists.
	ListFilename = "list.manifest.json"
)

var typeNames = map[Type]string{
	Schema1:       "Schema1",
	Schema1Signed: "Schema1Signed",
	Schema2:       "Schema2",
	Schema2List:   "Schema2List",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// MediaType returns the canonical media type for t.
func (t Type) MediaType() string {
	switch t {
	case Schema1:
		return MediaTypeSchema1
	case Schema1Signed:
		return MediaTypeSchema1Signed
	case Schema2:
		return MediaTypeSchema2
	case Schema2List:
		return MediaTypeManifestList
	default:
		return ""
	}
}

// Filename returns the name of the node holding a manifest of type t.
func (t Type) Filename() string {
	if t == Schema2List {
		return ListFilename
	}
	return Filename
}

// ParseType parses the String form of a Type, as persisted in node metadata.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown manifest type %q", s)
}

// FromMediaType maps a media type to its Type. OCI manifests and indexes map
// onto Schema2 and Schema2List.
func FromMediaType(mediaType string) (Type, bool) {
	switch mediaType {
	case MediaTypeSchema1:
		return Schema1, true
	case MediaTypeSchema1Signed:
		return Schema1Signed, true
	case MediaTypeSchema2, v1.MediaTypeImageManifest:
		return Schema2, true
	case MediaTypeManifestList, v1.MediaTypeImageIndex:
		return Schema2List, true
	default:
		return 0, false
	}
}

type versioned struct {
	SchemaVersion int             `json:"schemaVersion"`
	MediaType     string          `json:"mediaType,omitempty"`
	Manifests     json.RawMessage `json:"manifests,omitempty"`
	Signatures    json.RawMessage `json:"signatures,omitempty"`
}

// Detect resolves the type and media type of payload. The declared media
// type wins when it is known; otherwise the payload is sniffed.
func Detect(declared string, payload []byte) (Type, string, error) {
	if t, ok := FromMediaType(declared); ok {
		return t, declared, nil
	}

	var v versioned
	if err := json.Unmarshal(payload, &v); err != nil {
		return 0, "", ErrMalformed{Reason: err.Error()}
	}

	if t, ok := FromMediaType(v.MediaType); ok {
		return t, v.MediaType, nil
	}

	switch v.SchemaVersion {
	case 1:
		if len(v.Signatures) > 0 {
			return Schema1Signed, MediaTypeSchema1Signed, nil
		}
		return Schema1, MediaTypeSchema1, nil
	case 2:
		if len(v.Manifests) > 0 {
			return Schema2List, MediaTypeManifestList, nil
		}
		return Schema2, MediaTypeSchema2, nil
	default:
		return 0, "", ErrMalformed{Reason: fmt.Sprintf("unrecognized manifest schema version %d", v.SchemaVersion)}
	}
}

// Digest computes the content digest of a manifest over the exact bytes
// received.
func Digest(payload []byte) digest.Digest {
	return digest.FromBytes(payload)
}

// ErrMalformed is returned when a payload cannot be decoded into a manifest.
type ErrMalformed struct {
	Reason string
}

func (err ErrMalformed) Error() string {
	return fmt.Sprintf("malformed manifest: %s", err.Reason)
}

// Deserializer decodes a payload of one manifest type.
type Deserializer func(payload []byte) (*Metadata, error)

var (
	deserializersMu sync.RWMutex
	deserializers   = make(map[Type]Deserializer)
)

// Register makes a deserializer available for type t. It is meant to be
// called from the init function of schema packages.
func Register(t Type, fn Deserializer) {
	deserializersMu.Lock()
	defer deserializersMu.Unlock()

	if _, dup := deserializers[t]; dup {
		panic(fmt.Sprintf("manifest deserializer for %s registered twice", t))
	}
	deserializers[t] = fn
}

// ErrNoDeserializer is returned when no codec was registered for a type.
var ErrNoDeserializer = errors.New("no deserializer registered")

// Deserialize decodes payload with the deserializer registered for t.
func Deserialize(payload []byte, t Type) (*Metadata, error) {
	deserializersMu.RLock()
	fn, ok := deserializers[t]
	deserializersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDeserializer, t)
	}

	m, err := fn(payload)
	if err != nil {
		var malformed ErrMalformed
		if errors.As(err, &malformed) {
			return nil, err
		}
		return nil, ErrMalformed{Reason: err.Error()}
	}
	m.TagInfo.Digest = Digest(payload)

	return m, nil
}
