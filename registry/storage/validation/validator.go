// Package validation verifies that the content referenced by a manifest
// exists before the manifest is accepted.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ManifestExister checks whether a manifest is stored.
type ManifestExister interface {
	ManifestExists(ctx context.Context, dgst digest.Digest) (bool, error)
}

// BlobStatter checks whether a blob is stored.
type BlobStatter interface {
	BlobExists(ctx context.Context, dgst digest.Digest) (bool, error)
}

// ErrManifestBlobUnknown is returned when a manifest references content that
// does not exist.
type ErrManifestBlobUnknown struct {
	Digest digest.Digest
}

func (err ErrManifestBlobUnknown) Error() string {
	return fmt.Sprintf("unknown blob %s on manifest", err.Digest)
}

// ErrManifestVerification collects every problem found while verifying a
// manifest.
type ErrManifestVerification []error

func (errs ErrManifestVerification) Error() string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("errors verifying manifest: %v", strings.Join(parts, ","))
}

// UnknownDigests returns the digests of the ErrManifestBlobUnknown entries.
func (errs ErrManifestVerification) UnknownDigests() []digest.Digest {
	var out []digest.Digest
	for _, err := range errs {
		var unknown ErrManifestBlobUnknown
		if errors.As(err, &unknown) {
			out = append(out, unknown.Digest)
		}
	}
	return out
}

// ErrManifestReferencesExceedLimit is returned when a manifest has more
// references than allowed.
type ErrManifestReferencesExceedLimit struct {
	References int
	Limit      int
}

func (err ErrManifestReferencesExceedLimit) Error() string {
	return fmt.Sprintf("%d manifest references exceed reference limit of %d", err.References, err.Limit)
}

type baseValidator struct {
	manifestExister            ManifestExister
	blobStatter                BlobStatter
	skipDependencyVerification bool
	refLimit                   int
	concurrency                int
}

func (v *baseValidator) exceedsRefLimit(refs int) error {
	if v.refLimit <= 0 {
		return nil
	}
	if refs > v.refLimit {
		return ErrManifestReferencesExceedLimit{References: refs, Limit: v.refLimit}
	}
	return nil
}
