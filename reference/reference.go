// Package reference resolves the addressing unit of every registry
// operation: a project, a repository inside it, a docker repository path and
// an optional tag or digest.
package reference

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

var (
	// ErrNameInvalid is returned when a repository name does not match NameRegexp.
	ErrNameInvalid = errors.New("invalid repository name")
	// ErrTagInvalid is returned when a tag does not match TagRegexp.
	ErrTagInvalid = errors.New("invalid tag format")
	// ErrDigestInvalid is returned when a reference shaped like a digest does
	// not parse as a supported digest.
	ErrDigestInvalid = errors.New("invalid digest")
)

// Reference is either a tag or a digest. The zero value is empty.
type Reference struct {
	tag    string
	digest digest.Digest
}

// Parse interprets s as a digest first and falls back to a tag when it is not
// a valid digest. A malformed digest is not an error, it simply resolves as a
// tag that will never be found.
func Parse(s string) Reference {
	if d, err := ParseDigest(s); err == nil {
		return Reference{digest: d}
	}
	return Reference{tag: s}
}

// ParseStrict interprets s for a write. A string matching DigestRegexp must
// be a supported digest and anything else must match TagRegexp.
func ParseStrict(s string) (Reference, error) {
	if anchoredDigestRegexp.MatchString(s) {
		d, err := ParseDigest(s)
		if err != nil {
			return Reference{}, fmt.Errorf("%w: %q: %v", ErrDigestInvalid, s, err)
		}
		return Reference{digest: d}, nil
	}
	return WithTag(s)
}

// WithTag returns a tag reference.
func WithTag(tag string) (Reference, error) {
	if !anchoredTagRegexp.MatchString(tag) {
		return Reference{}, fmt.Errorf("%w: %q", ErrTagInvalid, tag)
	}
	return Reference{tag: tag}, nil
}

// WithDigest returns a digest reference.
func WithDigest(d digest.Digest) Reference {
	return Reference{digest: d}
}

// Digest returns the digest and true if the reference is a digest.
func (r Reference) Digest() (digest.Digest, bool) {
	return r.digest, r.digest != ""
}

// Tag returns the tag and true if the reference is a tag.
func (r Reference) Tag() (string, bool) {
	return r.tag, r.tag != ""
}

// IsZero reports whether the reference is empty.
func (r Reference) IsZero() bool {
	return r.tag == "" && r.digest == ""
}

func (r Reference) String() string {
	if r.digest != "" {
		return r.digest.String()
	}
	return r.tag
}

// Artifact is the central addressing unit threaded through registry
// operations.
type Artifact struct {
	ProjectID  string
	RepoName   string
	DockerRepo string
	Reference  Reference
}

// ParseName splits a full repository name of the form
// project/repository/docker/repo/path into an Artifact without reference.
func ParseName(name string) (Artifact, error) {
	if !anchoredNameRegexp.MatchString(name) {
		return Artifact{}, fmt.Errorf("%w: %q", ErrNameInvalid, name)
	}

	parts := strings.SplitN(name, "/", 3)
	return Artifact{
		ProjectID:  parts[0],
		RepoName:   parts[1],
		DockerRepo: parts[2],
	}, nil
}

// WithReference returns a copy of a pointing at ref.
func (a Artifact) WithReference(ref Reference) Artifact {
	a.Reference = ref
	return a
}

// Name returns the full repository name, as used in URLs.
func (a Artifact) Name() string {
	return a.ProjectID + "/" + a.RepoName + "/" + a.DockerRepo
}

func (a Artifact) String() string {
	if a.Reference.IsZero() {
		return a.Name()
	}
	if _, ok := a.Reference.Digest(); ok {
		return a.Name() + "@" + a.Reference.String()
	}
	return a.Name() + ":" + a.Reference.String()
}
