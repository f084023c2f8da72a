package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/reference"
	v2 "github.com/bkrepo/registry/registry/api/v2"
	"github.com/bkrepo/registry/registry/storage"
	"github.com/gorilla/handlers"
)

// manifestDispatcher takes the request context and builds the
// appropriate handler for handling manifest requests.
func manifestDispatcher(ctx *Context, r *http.Request) http.Handler {
	manifestHandler := &manifestHandler{
		Context: ctx,
		// A reference that does not parse as a digest is a tag.
		Artifact: ctx.Artifact.WithReference(reference.Parse(getReference(ctx))),
	}

	return handlers.MethodHandler{
		http.MethodGet:    http.HandlerFunc(manifestHandler.GetManifest),
		http.MethodHead:   http.HandlerFunc(manifestHandler.GetManifest),
		http.MethodPut:    http.HandlerFunc(manifestHandler.PutManifest),
		http.MethodDelete: http.HandlerFunc(manifestHandler.DeleteManifest),
	}
}

// manifestHandler handles http operations on image manifests.
type manifestHandler struct {
	*Context

	// Artifact carries the tag or digest of the request.
	Artifact reference.Artifact
}

// GetManifest fetches the image manifest from the storage backend, if it
// exists. HEAD requests only resolve it.
func (imh *manifestHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	l := log.GetLogger(log.WithContext(imh))
	l.Debug("GetImageManifest")

	accept := r.Header["Accept"]

	var (
		desc storage.ManifestDescriptor
		body io.ReadCloser
		err  error
	)
	if r.Method == http.MethodHead {
		desc, err = imh.registry.StatManifest(imh, imh.Artifact, accept)
	} else {
		desc, body, err = imh.registry.GetManifest(imh, imh.Artifact, accept)
	}
	if err != nil {
		imh.appendStorageError(err)
		return
	}
	if body != nil {
		defer body.Close()
	}

	w.Header().Set("Docker-Content-Digest", desc.Digest.String())
	w.Header().Set("Etag", fmt.Sprintf(`"%s"`, desc.Digest))

	if etagMatch(r, desc.Digest.String()) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", desc.MediaType)
	w.Header().Set("Content-Length", fmt.Sprint(desc.Size))

	if body == nil {
		return
	}

	if _, err := io.Copy(w, body); err != nil {
		l.WithError(err).WithField("digest", desc.Digest).Error("error writing manifest")
	}
}

func etagMatch(r *http.Request, etag string) bool {
	for _, headerVal := range r.Header["If-None-Match"] {
		if headerVal == etag || headerVal == fmt.Sprintf(`"%s"`, etag) { // allow quoted or unquoted
			return true
		}
	}
	return false
}

// PutManifest validates and stores a manifest in the registry.
func (imh *manifestHandler) PutManifest(w http.ResponseWriter, r *http.Request) {
	l := log.GetLogger(log.WithContext(imh))
	l.Debug("PutImageManifest")

	ref, err := reference.ParseStrict(getReference(imh.Context))
	if err != nil {
		imh.appendStorageError(err)
		return
	}
	imh.Artifact = imh.Artifact.WithReference(ref)

	var jsonBuf bytes.Buffer
	if err := copyFullPayload(imh, w, r, &jsonBuf, imh.maxManifestSize, "image manifest PUT"); err != nil {
		// copyFullPayload reports the error if necessary
		imh.Errors = append(imh.Errors, v2.ErrorCodeManifestInvalid.WithDetail(err.Error()))
		return
	}

	dgst, err := imh.registry.PutManifest(imh, imh.Artifact, r.Header.Get("Content-Type"), jsonBuf.Bytes())
	if err != nil {
		imh.appendStorageError(err)
		return
	}

	// Construct a canonical url for the uploaded manifest.
	location, err := imh.urlBuilder.BuildManifestURL(imh.Artifact.Name(), dgst.String())
	if err != nil {
		// Worst case, we set an empty location header.
		l.WithError(err).Error("error building manifest url from digest")
	}

	w.Header().Set("Location", location)
	w.Header().Set("Docker-Content-Digest", dgst.String())
	w.WriteHeader(http.StatusCreated)
}

// DeleteManifest removes the manifest of a tag from the registry.
func (imh *manifestHandler) DeleteManifest(w http.ResponseWriter, r *http.Request) {
	log.GetLogger(log.WithContext(imh)).Debug("DeleteImageManifest")

	if err := imh.registry.DeleteManifest(imh, imh.Artifact); err != nil {
		imh.appendStorageError(err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
