package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bkrepo/registry/reference"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

// UploadSession is the state of a resumable blob upload. The bytes live in
// the blob store, keyed by ID, so that any registry instance can continue the
// session.
type UploadSession struct {
	ID           string
	Artifact     reference.Artifact
	BytesWritten int64
}

// Range returns the value of the Range header reporting the bytes received
// so far.
func (s UploadSession) Range() string {
	end := s.BytesWritten - 1
	if end < 0 {
		end = 0
	}
	return fmt.Sprintf("0-%d", end)
}

// uploadTracker sequences the steps of resumable uploads on top of the append
// sessions of the blob store. Chunks of one session are expected one at a
// time from a single client.
type uploadTracker struct {
	blobs storagedriver.BlobStore
}

func (t *uploadTracker) start(ctx context.Context, art reference.Artifact) (UploadSession, error) {
	id, err := t.blobs.CreateAppendID(ctx, art.Name())
	if err != nil {
		return UploadSession{}, fmt.Errorf("creating upload session: %w", err)
	}
	return UploadSession{ID: id, Artifact: art}, nil
}

// verify fails with ErrBlobUploadUnknown unless the session id was opened
// for the repository of art.
func (t *uploadTracker) verify(ctx context.Context, art reference.Artifact, id string) error {
	owner, err := t.blobs.AppendOwner(ctx, id)
	if err != nil {
		return uploadError(id, err)
	}
	if owner != art.Name() {
		return ErrBlobUploadUnknown{ID: id}
	}
	return nil
}

func (t *uploadTracker) append(ctx context.Context, art reference.Artifact, id string, r io.Reader) (UploadSession, error) {
	if err := t.verify(ctx, art, id); err != nil {
		return UploadSession{}, err
	}
	n, err := t.blobs.Append(ctx, id, r)
	if err != nil {
		return UploadSession{}, uploadError(id, err)
	}
	return UploadSession{ID: id, Artifact: art, BytesWritten: n}, nil
}

func (t *uploadTracker) status(ctx context.Context, art reference.Artifact, id string) (UploadSession, error) {
	if err := t.verify(ctx, art, id); err != nil {
		return UploadSession{}, err
	}
	n, err := t.blobs.AppendSize(ctx, id)
	if err != nil {
		return UploadSession{}, uploadError(id, err)
	}
	return UploadSession{ID: id, Artifact: art, BytesWritten: n}, nil
}

// finish commits the session, verifying the content against dgst. A session
// without any chunk commits the empty blob.
func (t *uploadTracker) finish(ctx context.Context, art reference.Artifact, id string, dgst digest.Digest) (storagedriver.FileInfo, error) {
	if err := t.verify(ctx, art, id); err != nil {
		return storagedriver.FileInfo{}, err
	}
	fi, err := t.blobs.FinishAppend(ctx, id, dgst)
	if err != nil {
		var mismatch storagedriver.ErrDigestMismatch
		if errors.As(err, &mismatch) {
			return storagedriver.FileInfo{}, ErrInvalidDigest{Digest: dgst.String(), Reason: err}
		}
		return storagedriver.FileInfo{}, uploadError(id, err)
	}
	return fi, nil
}

func (t *uploadTracker) cancel(ctx context.Context, art reference.Artifact, id string) error {
	if err := t.verify(ctx, art, id); err != nil {
		return err
	}
	if err := t.blobs.CancelAppend(ctx, id); err != nil {
		return uploadError(id, err)
	}
	return nil
}

func uploadError(id string, err error) error {
	if errors.Is(err, storagedriver.ErrAppendIDNotFound) {
		return ErrBlobUploadUnknown{ID: id}
	}
	return fmt.Errorf("upload session %s: %w", id, err)
}
