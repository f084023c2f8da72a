package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/manifest"
	"github.com/bkrepo/registry/reference"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

const blobMediaType = "application/octet-stream"

// BlobDescriptor describes blob bytes reachable from a repository.
type BlobDescriptor struct {
	Digest    digest.Digest
	Size      int64
	Sha256    string
	MediaType string

	empty bool
}

// UploadResult is the outcome of starting an upload: either a blob mounted
// from another repository or a new session.
type UploadResult struct {
	Mounted bool
	Blob    BlobDescriptor
	Session UploadSession
}

// StatBlob resolves dgst among the nodes of the project repository of art.
// The empty layer is always reported present.
func (r *Registry) StatBlob(ctx context.Context, art reference.Artifact, dgst digest.Digest) (BlobDescriptor, error) {
	if err := r.checkRepository(ctx, art, false); err != nil {
		return BlobDescriptor{}, err
	}
	if manifest.IsEmptyLayer(dgst) {
		return emptyLayerDescriptor(dgst), nil
	}

	n, err := r.findRepositoryBlob(ctx, art, dgst)
	if err != nil {
		return BlobDescriptor{}, err
	}

	return BlobDescriptor{
		Digest:    dgst,
		Size:      n.Size,
		Sha256:    n.Sha256,
		MediaType: blobMediaType,
	}, nil
}

// ServeBlob writes the blob dgst of art to w.
func (r *Registry) ServeBlob(ctx context.Context, w http.ResponseWriter, req *http.Request, art reference.Artifact, dgst digest.Digest) error {
	desc, err := r.StatBlob(ctx, art, dgst)
	if err != nil {
		return err
	}
	return r.server.serve(log.WithLogger(ctx, logger(ctx, art)), w, req, desc)
}

// StartUpload opens an upload session for art. When mount is set and a
// readable repository already holds that blob, the blob is linked into the
// staging area of art instead and no session is created.
func (r *Registry) StartUpload(ctx context.Context, art reference.Artifact, mount digest.Digest) (UploadResult, error) {
	if err := r.checkRepository(ctx, art, true); err != nil {
		return UploadResult{}, err
	}

	if mount != "" {
		desc, err := r.mountBlob(ctx, art, mount)
		switch {
		case err == nil:
			return UploadResult{Mounted: true, Blob: desc}, nil
		case errors.As(err, &ErrBlobUnknown{}):
			logger(ctx, art).WithField("digest", mount).Info("blob to mount not found, starting upload")
		default:
			return UploadResult{}, err
		}
	}

	s, err := r.uploads.start(ctx, art)
	if err != nil {
		return UploadResult{}, err
	}
	logger(ctx, art).WithField("upload_uuid", s.ID).Info("blob upload started")

	return UploadResult{Session: s}, nil
}

func (r *Registry) mountBlob(ctx context.Context, art reference.Artifact, dgst digest.Digest) (BlobDescriptor, error) {
	if manifest.IsEmptyLayer(dgst) {
		return emptyLayerDescriptor(dgst), nil
	}

	loc, err := r.locator.Locate(ctx, dgst)
	if err != nil {
		return BlobDescriptor{}, err
	}

	p, err := pathFor(uploadStagingPathSpec{dockerRepo: art.DockerRepo, digest: dgst})
	if err != nil {
		return BlobDescriptor{}, err
	}
	if err := r.nodes.Copy(ctx, loc.NodeKey, r.key(art, p)); err != nil {
		return BlobDescriptor{}, ErrFileSaveFailed{Path: p, Err: err}
	}

	logger(ctx, art).WithFields(log.Fields{
		"digest": dgst,
		"source": loc.NodeKey.String(),
	}).Info("blob mounted")

	return BlobDescriptor{Digest: dgst, Size: loc.Size, Sha256: loc.Sha256, MediaType: blobMediaType}, nil
}

// PutBlob stores a blob uploaded in a single request into the staging area
// of art, verifying the bytes against dgst.
func (r *Registry) PutBlob(ctx context.Context, art reference.Artifact, dgst digest.Digest, body io.Reader) (BlobDescriptor, error) {
	if err := r.checkRepository(ctx, art, true); err != nil {
		return BlobDescriptor{}, err
	}

	fi, err := r.blobs.Store(ctx, body, dgst)
	if err != nil {
		var mismatch storagedriver.ErrDigestMismatch
		if errors.As(err, &mismatch) {
			return BlobDescriptor{}, ErrInvalidDigest{Digest: dgst.String(), Reason: err}
		}
		return BlobDescriptor{}, fmt.Errorf("storing blob %s: %w", dgst, err)
	}

	desc, err := r.stage(ctx, art, dgst, fi)
	if err != nil {
		return BlobDescriptor{}, err
	}
	logger(ctx, art).WithFields(log.Fields{
		"digest":     dgst,
		"size_bytes": fi.Size,
	}).Info("blob uploaded")

	return desc, nil
}

// PatchUpload appends body to the session id.
func (r *Registry) PatchUpload(ctx context.Context, art reference.Artifact, id string, body io.Reader) (UploadSession, error) {
	if err := r.checkRepository(ctx, art, true); err != nil {
		return UploadSession{}, err
	}
	return r.uploads.append(ctx, art, id, body)
}

// UploadStatus reports the bytes received by the session id.
func (r *Registry) UploadStatus(ctx context.Context, art reference.Artifact, id string) (UploadSession, error) {
	if err := r.checkRepository(ctx, art, true); err != nil {
		return UploadSession{}, err
	}
	return r.uploads.status(ctx, art, id)
}

// FinishUpload appends the final chunk, when body is not nil, and commits
// the session id into the staging area of art as dgst.
func (r *Registry) FinishUpload(ctx context.Context, art reference.Artifact, id string, dgst digest.Digest, body io.Reader) (BlobDescriptor, error) {
	if err := r.checkRepository(ctx, art, true); err != nil {
		return BlobDescriptor{}, err
	}

	if body != nil {
		if _, err := r.uploads.append(ctx, art, id, body); err != nil {
			return BlobDescriptor{}, err
		}
	}

	fi, err := r.uploads.finish(ctx, art, id, dgst)
	if err != nil {
		return BlobDescriptor{}, err
	}

	desc, err := r.stage(ctx, art, dgst, fi)
	if err != nil {
		return BlobDescriptor{}, err
	}
	logger(ctx, art).WithFields(log.Fields{
		"digest":      dgst,
		"size_bytes":  fi.Size,
		"upload_uuid": id,
	}).Info("blob upload finished")

	return desc, nil
}

// CancelUpload discards the session id.
func (r *Registry) CancelUpload(ctx context.Context, art reference.Artifact, id string) error {
	if err := r.checkRepository(ctx, art, true); err != nil {
		return err
	}
	if err := r.uploads.cancel(ctx, art, id); err != nil {
		return err
	}
	logger(ctx, art).WithField("upload_uuid", id).Info("blob upload canceled")
	return nil
}

// stage creates the staging node of art pointing at stored bytes.
func (r *Registry) stage(ctx context.Context, art reference.Artifact, dgst digest.Digest, fi storagedriver.FileInfo) (BlobDescriptor, error) {
	p, err := pathFor(uploadStagingPathSpec{dockerRepo: art.DockerRepo, digest: dgst})
	if err != nil {
		return BlobDescriptor{}, err
	}

	if _, err := r.nodes.Create(ctx, storagedriver.CreateNodeRequest{
		NodeKey:   r.key(art, p),
		Size:      fi.Size,
		Sha256:    fi.Sha256,
		Overwrite: true,
	}); err != nil {
		return BlobDescriptor{}, ErrFileSaveFailed{Path: p, Err: err}
	}

	return BlobDescriptor{Digest: dgst, Size: fi.Size, Sha256: fi.Sha256, MediaType: blobMediaType}, nil
}
