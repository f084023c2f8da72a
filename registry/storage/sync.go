package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/manifest"
	"github.com/bkrepo/registry/reference"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/bkrepo/registry/registry/storage/internal/metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/opencontainers/go-digest"
)

// syncBlobs makes every blob referenced by a manifest available in the tag
// directory the manifest is about to be written to. Nothing is written for
// the manifest itself: callers only persist it when syncBlobs succeeds.
func (r *Registry) syncBlobs(ctx context.Context, art reference.Artifact, tag string, blobs []manifest.BlobInfo, policy SyncPolicy) error {
	l := logger(ctx, art).WithField("tag", tag)

	var (
		missing []digest.Digest
		errs    *multierror.Error
	)

	for i := range blobs {
		b := &blobs[i]

		dgst, err := reference.ParseDigest(b.Digest)
		if err != nil {
			return ErrMalformedManifest{Reason: fmt.Errorf("blob digest %q: %w", b.Digest, err)}
		}

		dst, err := pathFor(layerPathSpec{dockerRepo: art.DockerRepo, tag: tag, digest: dgst})
		if err != nil {
			return err
		}
		b.Path = dst
		b.ParentPath = path.Dir(dst)

		err = r.syncBlob(ctx, art, dgst, r.key(art, dst), policy)
		var unknown ErrBlobUnknown
		switch {
		case err == nil:
		case errors.As(err, &unknown):
			missing = append(missing, dgst)
			errs = multierror.Append(errs, err)
		default:
			return err
		}
	}

	if len(missing) > 0 {
		l.WithError(errs).WithField("missing", len(missing)).Error("failed to sync manifest blobs")
		return ErrSyncManifestFailed{Missing: missing, Err: errs.ErrorOrNil()}
	}

	l.WithField("blobs", len(blobs)).Debug("manifest blobs synced")
	return nil
}

// syncBlob places dgst at dst, trying in order: the well-known empty layer,
// a staged upload, a blob already at dst, the same blob anywhere in the
// project repository and, for the global policy, a readable blob anywhere
// else.
func (r *Registry) syncBlob(ctx context.Context, art reference.Artifact, dgst digest.Digest, dst storagedriver.NodeKey, policy SyncPolicy) error {
	if manifest.IsEmptyLayer(dgst) {
		if err := r.putEmptyLayer(ctx, dst); err != nil {
			return err
		}
		metrics.BlobSync(metrics.SyncSourceEmptyLayer)
		return nil
	}

	staging, err := pathFor(uploadStagingPathSpec{dockerRepo: art.DockerRepo, digest: dgst})
	if err != nil {
		return err
	}
	src := r.key(art, staging)

	staged, err := r.nodes.Exists(ctx, src)
	if err != nil {
		return fmt.Errorf("checking staged blob: %w", err)
	}
	if staged {
		if err := r.nodes.Rename(ctx, src, dst); err != nil {
			return ErrMoveFailed{Src: src.FullPath, Dst: dst.FullPath, Err: err}
		}
		metrics.BlobSync(metrics.SyncSourceStaged)
		return nil
	}

	present, err := r.nodes.Exists(ctx, dst)
	if err != nil {
		return fmt.Errorf("checking synced blob: %w", err)
	}
	if present {
		metrics.BlobSync(metrics.SyncSourcePresent)
		return nil
	}

	local, err := r.findRepositoryBlob(ctx, art, dgst)
	switch {
	case err == nil:
		if err := r.nodes.Copy(ctx, local.NodeKey, dst); err != nil {
			return ErrFileSaveFailed{Path: dst.FullPath, Err: err}
		}
		metrics.BlobSync(metrics.SyncSourceRepository)
		return nil
	case errors.As(err, &ErrBlobUnknown{}):
	default:
		return err
	}

	if policy != SyncGlobal {
		return ErrBlobUnknown{Digest: dgst}
	}

	loc, err := r.locator.Locate(ctx, dgst)
	if err != nil {
		return err
	}
	if err := r.nodes.Copy(ctx, loc.NodeKey, dst); err != nil {
		return ErrFileSaveFailed{Path: dst.FullPath, Err: err}
	}
	logger(ctx, art).WithFields(log.Fields{
		"digest": dgst,
		"source": loc.NodeKey.String(),
	}).Info("blob copied from another repository")
	metrics.BlobSync(metrics.SyncSourceGlobal)

	return nil
}

func (r *Registry) putEmptyLayer(ctx context.Context, dst storagedriver.NodeKey) error {
	fi, err := r.blobs.Store(ctx, bytes.NewReader(manifest.EmptyLayer()), manifest.EmptyLayerDigest)
	if err != nil {
		return ErrFileSaveFailed{Path: dst.FullPath, Err: err}
	}
	_, err = r.nodes.Create(ctx, storagedriver.CreateNodeRequest{
		NodeKey:   dst,
		Size:      fi.Size,
		Sha256:    fi.Sha256,
		Overwrite: true,
	})
	if err != nil {
		return ErrFileSaveFailed{Path: dst.FullPath, Err: err}
	}
	return nil
}

// findRepositoryBlob returns a node of the project repository of art named
// after dgst, whatever docker repository or tag holds it.
func (r *Registry) findRepositoryBlob(ctx context.Context, art reference.Artifact, dgst digest.Digest) (*storagedriver.Node, error) {
	nn, err := r.nodes.Query(ctx, storagedriver.Query{
		ProjectID: art.ProjectID,
		RepoName:  art.RepoName,
		Names:     []string{reference.Filename(dgst)},
	})
	if err != nil {
		return nil, fmt.Errorf("searching blob %s: %w", dgst, err)
	}

	for i := range nn {
		if dgst.Algorithm() == digest.SHA256 && nn[i].Sha256 != dgst.Encoded() {
			continue
		}
		return &nn[i], nil
	}
	return nil, ErrBlobUnknown{Digest: dgst}
}
