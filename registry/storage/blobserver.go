package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/manifest"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/bkrepo/registry/registry/storage/internal/metrics"
	"github.com/opencontainers/go-digest"
)

const blobCacheControlMaxAge = 365 * 24 * time.Hour

// blobServer streams blob bytes out of the blob store.
type blobServer struct {
	blobs storagedriver.BlobStore
}

// serve writes the blob described by desc to w, honoring conditional and
// range requests.
func (bs *blobServer) serve(ctx context.Context, w http.ResponseWriter, r *http.Request, desc BlobDescriptor) error {
	var content io.ReadSeeker
	if desc.empty {
		content = bytes.NewReader(emptyLayer)
	} else {
		br := &blobReader{ctx: ctx, blobs: bs.blobs, sha256: desc.Sha256, size: desc.Size}
		defer br.Close()
		content = br
	}

	w.Header().Set("ETag", fmt.Sprintf(`"%s"`, desc.Digest)) // If-None-Match handled by ServeContent
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%.f", blobCacheControlMaxAge.Seconds()))

	if w.Header().Get("Docker-Content-Digest") == "" {
		w.Header().Set("Docker-Content-Digest", desc.Digest.String())
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", desc.MediaType)
	}

	http.ServeContent(w, r, desc.Digest.String(), time.Time{}, content)
	metrics.BlobDownload(bs.blobs.Name(), desc.Size)

	if r.Method == http.MethodGet {
		log.GetLogger(log.WithContext(ctx)).WithFields(log.Fields{
			"size_bytes": desc.Size,
			"digest":     desc.Digest,
		}).Info("blob downloaded")
	}

	return nil
}

// blobReader adapts the offset readers of a blob store to io.ReadSeeker. The
// underlying reader is opened lazily and reopened after every seek.
type blobReader struct {
	ctx    context.Context
	blobs  storagedriver.BlobStore
	sha256 string
	size   int64

	offset int64
	rc     io.ReadCloser
}

func (br *blobReader) Read(p []byte) (int, error) {
	if br.offset >= br.size {
		return 0, io.EOF
	}

	if br.rc == nil {
		rc, err := br.blobs.Reader(br.ctx, br.sha256, br.offset)
		if err != nil {
			return 0, err
		}
		br.rc = rc
	}

	n, err := br.rc.Read(p)
	br.offset += int64(n)
	return n, err
}

func (br *blobReader) Seek(offset int64, whence int) (int64, error) {
	next := br.offset
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next += offset
	case io.SeekEnd:
		next = br.size + offset
	default:
		return 0, errors.New("blob reader: invalid whence")
	}
	if next < 0 {
		return 0, fmt.Errorf("blob reader: negative offset %d", next)
	}

	if next != br.offset {
		br.reset()
		br.offset = next
	}
	return next, nil
}

func (br *blobReader) reset() {
	if br.rc != nil {
		br.rc.Close()
		br.rc = nil
	}
}

func (br *blobReader) Close() error {
	if br.rc == nil {
		return nil
	}
	err := br.rc.Close()
	br.rc = nil
	return err
}

var emptyLayer = manifest.EmptyLayer()

// emptyLayerDescriptor describes the well-known empty layer, served without
// touching any store.
func emptyLayerDescriptor(dgst digest.Digest) BlobDescriptor {
	return BlobDescriptor{
		Digest:    dgst,
		Size:      int64(len(emptyLayer)),
		Sha256:    dgst.Encoded(),
		MediaType: blobMediaType,
		empty:     true,
	}
}
