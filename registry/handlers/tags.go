package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/registry/api/errcode"
	v2 "github.com/bkrepo/registry/registry/api/v2"
	"github.com/bkrepo/registry/registry/storage"
	"github.com/gorilla/handlers"
)

// tagsDispatcher constructs the tags handler api endpoint.
func tagsDispatcher(ctx *Context, r *http.Request) http.Handler {
	tagsHandler := &tagsHandler{
		Context: ctx,
	}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(tagsHandler.GetTags),
	}
}

// tagsHandler handles requests for lists of tags under a repository name.
type tagsHandler struct {
	*Context
}

type tagsAPIResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// GetTags returns a json list of tags for a specific image name.
func (th *tagsHandler) GetTags(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	n, last, err := parsePagination(r)
	if err != nil {
		th.Errors = append(th.Errors, err)
		return
	}

	page, err := th.registry.Tags(th, th.Artifact, n, last)
	if err != nil {
		th.appendStorageError(err)
		return
	}

	if page.More {
		u, err := th.urlBuilder.BuildTagsURL(th.Artifact.Name(), nextPageValues(n, page))
		if err != nil {
			th.Errors = append(th.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
			return
		}
		w.Header().Set("Link", v2.LinkHeader(u))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	enc := json.NewEncoder(w)
	if err := enc.Encode(tagsAPIResponse{
		Name: th.Artifact.Name(),
		Tags: page.Entries,
	}); err != nil {
		log.GetLogger(log.WithContext(th)).WithError(err).Error("error encoding tags response")
	}
}

// nextPageValues returns the query of the page following page. Pages capped
// by the server without an explicit n continue with the same size.
func nextPageValues(n int, page storage.Page) url.Values {
	if n <= 0 {
		n = len(page.Entries)
	}
	return url.Values{
		"n":    []string{strconv.Itoa(n)},
		"last": []string{page.Last()},
	}
}
