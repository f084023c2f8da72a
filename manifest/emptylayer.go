package manifest

import "github.com/opencontainers/go-digest"

// EmptyLayerDigest is the digest of a gzipped empty tar archive, referenced
// by images built with layers that carry no files.
const EmptyLayerDigest digest.Digest = "sha256:a3ed95caeb02ffe68cdd9fd84406680ae93d633cb16422d00e8a7c22955b46d4"

var gzippedEmptyTar = []byte{
	31, 139, 8, 0, 0, 9, 110, 136, 0, 255, 98, 24, 5, 163, 96, 20, 140, 88,
	0, 8, 0, 0, 255, 255, 46, 175, 181, 239, 0, 4, 0, 0,
}

// EmptyLayer returns the bytes of the gzipped empty tar archive.
func EmptyLayer() []byte {
	p := make([]byte, len(gzippedEmptyTar))
	copy(p, gzippedEmptyTar)
	return p
}

// IsEmptyLayer reports whether d addresses the gzipped empty tar archive.
func IsEmptyLayer(d digest.Digest) bool {
	return d == EmptyLayerDigest
}
