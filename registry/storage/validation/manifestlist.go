package validation

import (
	"context"
	"sync"

	"github.com/bkrepo/registry/manifest/manifestlist"
	mlcompat "github.com/bkrepo/registry/manifest/manifestlist/compat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/errgroup"
)

// ManifestListValidator ensures that a manifestlist is valid and optionally
// verifies all manifest references.
type ManifestListValidator struct {
	baseValidator
}

// NewManifestListValidator returns a new ManifestListValidator. At most
// concurrency references are checked at once; values below one check them
// sequentially.
func NewManifestListValidator(exister ManifestExister, bs BlobStatter, skipDependencyVerification bool, refLimit, concurrency int) *ManifestListValidator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ManifestListValidator{
		baseValidator: baseValidator{
			manifestExister:            exister,
			blobStatter:                bs,
			skipDependencyVerification: skipDependencyVerification,
			refLimit:                   refLimit,
			concurrency:                concurrency,
		},
	}
}

// Validate ensures that the manifest content is valid from the
// perspective of the registry. As a policy, the registry only tries to store
// valid content, leaving trust policies of that content up to consumers.
//
// Buildx cache indexes list layer blobs rather than manifests: their
// references are checked as blobs. Every other list must only reference
// manifests.
func (v *ManifestListValidator) Validate(ctx context.Context, ml *manifestlist.ManifestList) error {
	if err := v.exceedsRefLimit(len(ml.Manifests)); err != nil {
		return err
	}

	if v.skipDependencyVerification {
		return nil
	}

	exists := func(ctx context.Context, desc v1.Descriptor) (bool, error) {
		return v.manifestExister.ManifestExists(ctx, desc.Digest)
	}
	if mlcompat.LikelyBuildxCache(ml) {
		exists = func(ctx context.Context, desc v1.Descriptor) (bool, error) {
			return v.blobStatter.BlobExists(ctx, desc.Digest)
		}
	}

	var (
		mu   sync.Mutex
		errs ErrManifestVerification
		sem  = make(chan struct{}, v.concurrency)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, desc := range ml.References() {
		desc := desc

		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()

			ok, err := exists(gctx, desc)
			if err != nil {
				return err
			}
			if !ok {
				mu.Lock()
				errs = append(errs, ErrManifestBlobUnknown{Digest: desc.Digest})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(errs) != 0 {
		return errs
	}

	return nil
}
