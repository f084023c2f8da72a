package driver

import (
	"hash"
	"io"

	"github.com/opencontainers/go-digest"
)

// Digester computes the sha256 key of content written through it and, when an
// expected digest is set, the digest in the expected algorithm.
type Digester struct {
	expected digest.Digest
	sha256   digest.Digester
	other    digest.Digester
	size     int64
	w        io.Writer
}

// NewDigester returns a Digester verifying against expected, which may be
// empty.
func NewDigester(expected digest.Digest) *Digester {
	d := &Digester{expected: expected, sha256: digest.SHA256.Digester()}
	hashes := []io.Writer{d.sha256.Hash()}

	if expected != "" && expected.Algorithm() != digest.SHA256 && expected.Algorithm().Available() {
		d.other = expected.Algorithm().Digester()
		hashes = append(hashes, d.other.Hash())
	}
	d.w = io.MultiWriter(hashes...)

	return d
}

func (d *Digester) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	d.size += int64(n)
	return n, err
}

// Hash exposes the sha256 hash, for drivers resuming a digest from a known
// state.
func (d *Digester) Hash() hash.Hash {
	return d.sha256.Hash()
}

// Result returns the FileInfo of the content written so far, or
// ErrDigestMismatch when it does not match the expected digest.
func (d *Digester) Result() (FileInfo, error) {
	sum := d.sha256.Digest()
	info := FileInfo{Sha256: sum.Encoded(), Size: d.size}

	if d.expected == "" {
		return info, nil
	}

	actual := sum
	if d.other != nil {
		actual = d.other.Digest()
	}
	if actual != d.expected {
		return info, ErrDigestMismatch{Expected: d.expected.String(), Actual: actual.String()}
	}

	return info, nil
}
