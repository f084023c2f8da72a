package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/registry/api/errcode"
	v2 "github.com/bkrepo/registry/registry/api/v2"
	"github.com/bkrepo/registry/registry/storage"
	"github.com/gorilla/handlers"
)

// Query parameters narrowing the catalog to one project or repository.
const (
	projectIDParam = "projectId"
	repoNameParam  = "repoName"
)

func catalogDispatcher(ctx *Context, r *http.Request) http.Handler {
	catalogHandler := &catalogHandler{
		Context: ctx,
	}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(catalogHandler.GetCatalog),
	}
}

type catalogHandler struct {
	*Context
}

type catalogAPIResponse struct {
	Repositories []string `json:"repositories"`
}

// GetCatalog lists the repositories readable by the caller. Scoped to a
// project repository, entries are docker repository paths; otherwise they
// are full names.
func (ch *catalogHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	n, last, err := parsePagination(r)
	if err != nil {
		ch.Errors = append(ch.Errors, err)
		return
	}

	q := r.URL.Query()
	req := storage.CatalogRequest{
		ProjectID: q.Get(projectIDParam),
		RepoName:  q.Get(repoNameParam),
		N:         n,
		Last:      last,
	}

	page, err := ch.registry.Catalog(ch, req)
	if err != nil {
		ch.appendStorageError(err)
		return
	}

	if page.More {
		values := nextPageValues(n, page)
		if req.ProjectID != "" {
			values.Set(projectIDParam, req.ProjectID)
		}
		if req.RepoName != "" {
			values.Set(repoNameParam, req.RepoName)
		}

		u, err := ch.urlBuilder.BuildCatalogURL(values)
		if err != nil {
			ch.Errors = append(ch.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
			return
		}
		w.Header().Set("Link", v2.LinkHeader(u))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	enc := json.NewEncoder(w)
	if err := enc.Encode(catalogAPIResponse{
		Repositories: page.Entries,
	}); err != nil {
		log.GetLogger(log.WithContext(ch)).WithError(err).Error("error encoding catalog response")
	}
}
