package handlers

import (
	"io"
	"net/http"
	"net/url"

	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/reference"
	v2 "github.com/bkrepo/registry/registry/api/v2"
	"github.com/bkrepo/registry/registry/storage"
	"github.com/gorilla/handlers"
	"github.com/opencontainers/go-digest"
)

// blobUploadDispatcher constructs and returns the blob upload handler for the
// given request context.
func blobUploadDispatcher(ctx *Context, r *http.Request) http.Handler {
	buh := &blobUploadHandler{
		Context: ctx,
		UUID:    getUploadUUID(ctx),
	}

	if buh.UUID == "" {
		return handlers.MethodHandler{
			http.MethodPost: http.HandlerFunc(buh.StartBlobUpload),
		}
	}

	buh.Context.Context = log.WithLogger(ctx.Context, log.GetLogger(log.WithContext(ctx)).WithField("upload_uuid", buh.UUID))

	return handlers.MethodHandler{
		http.MethodGet:    http.HandlerFunc(buh.GetUploadStatus),
		http.MethodHead:   http.HandlerFunc(buh.GetUploadStatus),
		http.MethodPatch:  http.HandlerFunc(buh.PatchBlobData),
		http.MethodPut:    http.HandlerFunc(buh.PutBlobUploadComplete),
		http.MethodDelete: http.HandlerFunc(buh.CancelBlobUpload),
	}
}

// blobUploadHandler handles the http blob upload process.
type blobUploadHandler struct {
	*Context

	// UUID is the upload session addressed by the request, empty when
	// starting an upload.
	UUID string
}

// StartBlobUpload begins the blob upload process. A digest query parameter
// makes it a monolithic upload of the request body; a mount parameter links
// a blob readable elsewhere instead of opening a session.
func (buh *blobUploadHandler) StartBlobUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if dgstStr := q.Get("digest"); dgstStr != "" {
		dgst, err := reference.ParseDigest(dgstStr)
		if err != nil {
			buh.Errors = append(buh.Errors, v2.ErrorCodeDigestInvalid.WithDetail(err.Error()))
			return
		}

		desc, err := buh.registry.PutBlob(buh, buh.Artifact, dgst, r.Body)
		if err != nil {
			buh.appendStorageError(err)
			return
		}
		buh.writeBlobCreatedHeaders(w, desc)
		return
	}

	var mount digest.Digest
	if mountStr := q.Get("mount"); mountStr != "" {
		dgst, err := reference.ParseDigest(mountStr)
		if err != nil {
			buh.Errors = append(buh.Errors, v2.ErrorCodeDigestInvalid.WithDetail(err.Error()))
			return
		}
		mount = dgst
	}

	res, err := buh.registry.StartUpload(buh, buh.Artifact, mount)
	if err != nil {
		buh.appendStorageError(err)
		return
	}

	if res.Mounted {
		buh.writeBlobCreatedHeaders(w, res.Blob)
		return
	}

	if err := buh.writeUploadStatusHeaders(w, res.Session); err != nil {
		buh.Errors = append(buh.Errors, v2.ErrorCodeBlobUploadInvalid.WithDetail(err.Error()))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetUploadStatus returns the status of a given upload, identified by id.
func (buh *blobUploadHandler) GetUploadStatus(w http.ResponseWriter, r *http.Request) {
	s, err := buh.registry.UploadStatus(buh, buh.Artifact, buh.UUID)
	if err != nil {
		buh.appendStorageError(err)
		return
	}

	if err := buh.writeUploadStatusHeaders(w, s); err != nil {
		buh.Errors = append(buh.Errors, v2.ErrorCodeBlobUploadInvalid.WithDetail(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PatchBlobData writes data to an upload.
func (buh *blobUploadHandler) PatchBlobData(w http.ResponseWriter, r *http.Request) {
	s, err := buh.registry.PatchUpload(buh, buh.Artifact, buh.UUID, r.Body)
	if err != nil {
		buh.appendStorageError(err)
		return
	}

	if err := buh.writeUploadStatusHeaders(w, s); err != nil {
		buh.Errors = append(buh.Errors, v2.ErrorCodeBlobUploadInvalid.WithDetail(err.Error()))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// PutBlobUploadComplete takes the final request of a blob upload. The
// request may include all the blob data or no blob data. Any data
// provided is received and verified. If successful, the blob is linked
// into the blob store and 201 Created is returned with the canonical
// url of the blob.
func (buh *blobUploadHandler) PutBlobUploadComplete(w http.ResponseWriter, r *http.Request) {
	dgstStr := r.URL.Query().Get("digest")
	if dgstStr == "" {
		// no digest? return error, but allow retry.
		buh.Errors = append(buh.Errors, v2.ErrorCodeDigestInvalid.WithDetail("digest missing"))
		return
	}

	dgst, err := reference.ParseDigest(dgstStr)
	if err != nil {
		buh.Errors = append(buh.Errors, v2.ErrorCodeDigestInvalid.WithDetail("digest parsing failed"))
		return
	}

	var body io.Reader
	if r.ContentLength != 0 {
		body = r.Body
	}

	desc, err := buh.registry.FinishUpload(buh, buh.Artifact, buh.UUID, dgst, body)
	if err != nil {
		buh.appendStorageError(err)
		return
	}

	buh.writeBlobCreatedHeaders(w, desc)
}

// CancelBlobUpload cancels an in-progress upload of a blob.
func (buh *blobUploadHandler) CancelBlobUpload(w http.ResponseWriter, r *http.Request) {
	if err := buh.registry.CancelUpload(buh, buh.Artifact, buh.UUID); err != nil {
		buh.appendStorageError(err)
		return
	}

	w.Header().Set("Docker-Upload-UUID", buh.UUID)
	w.WriteHeader(http.StatusNoContent)
}

// writeUploadStatusHeaders writes the current upload status to the
// response. The location of the next chunk is included.
func (buh *blobUploadHandler) writeUploadStatusHeaders(w http.ResponseWriter, s storage.UploadSession) error {
	uploadURL, err := buh.urlBuilder.BuildBlobUploadChunkURL(buh.Artifact.Name(), s.ID, url.Values{})
	if err != nil {
		log.GetLogger(log.WithContext(buh)).WithError(err).Info("error building upload url")
		return err
	}

	w.Header().Set("Docker-Upload-UUID", s.ID)
	w.Header().Set("Location", uploadURL)
	w.Header().Set("Content-Length", "0")
	w.Header().Set("Range", s.Range())

	return nil
}

// writeBlobCreatedHeaders writes the standard headers describing a newly
// created blob. A 201 Created is written as well as the canonical URL and
// blob digest.
func (buh *blobUploadHandler) writeBlobCreatedHeaders(w http.ResponseWriter, desc storage.BlobDescriptor) {
	blobURL, err := buh.urlBuilder.BuildBlobURL(buh.Artifact.Name(), desc.Digest)
	if err != nil {
		buh.Errors = append(buh.Errors, v2.ErrorCodeBlobUploadInvalid.WithDetail(err.Error()))
		return
	}

	w.Header().Set("Location", blobURL)
	w.Header().Set("Content-Length", "0")
	w.Header().Set("Docker-Content-Digest", desc.Digest.String())
	w.WriteHeader(http.StatusCreated)
}
