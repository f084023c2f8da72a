package storage

import (
	"context"
	"fmt"
	"path"

	"github.com/bkrepo/registry/manifest"
	"github.com/bkrepo/registry/reference"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
)

var manifestFilenames = []string{manifest.Filename, manifest.ListFilename}

// Tags lists the tags of the docker repository of art. Directories of
// manifests pushed by digest are not tags. An empty page is reported as
// ErrNameUnknown.
func (r *Registry) Tags(ctx context.Context, art reference.Artifact, n int, last string) (Page, error) {
	if err := r.checkRepository(ctx, art, false); err != nil {
		return Page{}, err
	}

	root, err := pathFor(repositoryPathSpec{dockerRepo: art.DockerRepo})
	if err != nil {
		return Page{}, err
	}

	nn, err := r.nodes.Query(ctx, storagedriver.Query{
		ProjectID:  art.ProjectID,
		RepoName:   art.RepoName,
		PathPrefix: root,
		Names:      manifestFilenames,
	})
	if err != nil {
		return Page{}, fmt.Errorf("listing tags: %w", err)
	}

	var tags []string
	for _, node := range nn {
		repo, tag, ok := splitManifestPath(node.FullPath)
		if !ok || repo != art.DockerRepo || isDigestDir(tag) {
			continue
		}
		tags = append(tags, tag)
	}

	page := paginate(sortedUnique(tags), n, last)
	if len(page.Entries) == 0 {
		return Page{}, ErrNameUnknown{Name: art.Name()}
	}
	return page, nil
}

// CatalogRequest selects a catalog page. With both ProjectID and RepoName
// set the catalog holds the docker repositories of that project repository,
// otherwise the full names of every readable docker repository, optionally
// restricted to one project.
type CatalogRequest struct {
	ProjectID string
	RepoName  string
	N         int
	Last      string
}

func (req CatalogRequest) scoped() bool {
	return req.ProjectID != "" && req.RepoName != ""
}

// Catalog lists docker repositories holding at least one manifest. Pages
// are capped by the configured maximum. An empty page is reported as
// ErrNameUnknown.
func (r *Registry) Catalog(ctx context.Context, req CatalogRequest) (Page, error) {
	q := storagedriver.Query{ProjectID: req.ProjectID, Names: manifestFilenames}
	if req.scoped() {
		art := reference.Artifact{ProjectID: req.ProjectID, RepoName: req.RepoName}
		if err := r.checkRepository(ctx, art, false); err != nil {
			return Page{}, err
		}
		q.RepoName = req.RepoName
	}

	nn, err := r.nodes.Query(ctx, q)
	if err != nil {
		return Page{}, fmt.Errorf("listing repositories: %w", err)
	}

	readable := make(map[[2]string]bool)
	var names []string
	for _, node := range nn {
		repo, _, ok := splitManifestPath(node.FullPath)
		if !ok {
			continue
		}
		if req.scoped() {
			names = append(names, repo)
			continue
		}

		k := [2]string{node.ProjectID, node.RepoName}
		allowed, seen := readable[k]
		if !seen {
			allowed = r.permissions.CanRead(ctx, node.ProjectID, node.RepoName)
			readable[k] = allowed
		}
		if allowed {
			names = append(names, path.Join(node.ProjectID, node.RepoName, repo))
		}
	}

	n := req.N
	if r.catalogMaxEntries > 0 && (n <= 0 || n > r.catalogMaxEntries) {
		n = r.catalogMaxEntries
	}

	page := paginate(sortedUnique(names), n, req.Last)
	if len(page.Entries) == 0 {
		return Page{}, ErrNameUnknown{Name: path.Join(req.ProjectID, req.RepoName)}
	}
	return page, nil
}
