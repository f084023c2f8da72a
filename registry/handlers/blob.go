package handlers

import (
	"fmt"
	"net/http"

	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/reference"
	v2 "github.com/bkrepo/registry/registry/api/v2"
	"github.com/gorilla/handlers"
	"github.com/opencontainers/go-digest"
)

// blobDispatcher uses the request context to build a blobHandler.
func blobDispatcher(ctx *Context, r *http.Request) http.Handler {
	dgst, err := reference.ParseDigest(getDigestVar(ctx))
	if err != nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx.Errors = append(ctx.Errors, v2.ErrorCodeDigestInvalid.WithDetail(err.Error()))
		})
	}

	blobHandler := &blobHandler{
		Context: ctx,
		Digest:  dgst,
	}

	return handlers.MethodHandler{
		http.MethodGet:  http.HandlerFunc(blobHandler.GetBlob),
		http.MethodHead: http.HandlerFunc(blobHandler.HeadBlob),
	}
}

// blobHandler serves http blob requests.
type blobHandler struct {
	*Context

	Digest digest.Digest
}

// GetBlob fetches the binary data from backend storage returns it in the
// response.
func (bh *blobHandler) GetBlob(w http.ResponseWriter, r *http.Request) {
	log.GetLogger(log.WithContext(bh)).Debug("GetBlob")

	if err := bh.registry.ServeBlob(bh, w, r, bh.Artifact, bh.Digest); err != nil {
		log.GetLogger(log.WithContext(bh)).WithError(err).Debug("unexpected error getting blob HTTP handler")
		bh.appendStorageError(err)
	}
}

// HeadBlob reports the size of a blob without sending it.
func (bh *blobHandler) HeadBlob(w http.ResponseWriter, r *http.Request) {
	log.GetLogger(log.WithContext(bh)).Debug("HeadBlob")

	desc, err := bh.registry.StatBlob(bh, bh.Artifact, bh.Digest)
	if err != nil {
		bh.appendStorageError(err)
		return
	}

	w.Header().Set("Content-Length", fmt.Sprint(desc.Size))
	w.Header().Set("Content-Type", desc.MediaType)
	w.Header().Set("Docker-Content-Digest", desc.Digest.String())
	w.Header().Set("Etag", fmt.Sprintf(`"%s"`, desc.Digest))
	w.WriteHeader(http.StatusOK)
}
