package reference

import (
	"fmt"

	"github.com/opencontainers/go-digest"
)

// supportedAlgorithms lists the digest algorithms accepted on the wire.
var supportedAlgorithms = map[digest.Algorithm]struct{}{
	digest.SHA256: {},
	digest.SHA384: {},
	digest.SHA512: {},
}

// ParseDigest parses s as an algorithm-prefixed content digest and makes sure
// the algorithm is one of sha256, sha384 or sha512 and the encoded part has
// the length and charset the algorithm expects.
func ParseDigest(s string) (digest.Digest, error) {
	d, err := digest.Parse(s)
	if err != nil {
		return "", err
	}
	if _, ok := supportedAlgorithms[d.Algorithm()]; !ok {
		return "", fmt.Errorf("%w: %s", digest.ErrDigestUnsupported, d.Algorithm())
	}

	return d, nil
}

// FromContent computes the digest of p with the given algorithm. An empty
// algorithm selects sha256.
func FromContent(p []byte, alg digest.Algorithm) digest.Digest {
	if alg == "" {
		alg = digest.Canonical
	}
	return alg.FromBytes(p)
}

// Filename returns the identifier used to name blob nodes: the encoded part
// of the digest. The algorithm is implied by the blob store.
func Filename(d digest.Digest) string {
	return d.Encoded()
}
