package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/bkrepo/registry/manifest"
	"github.com/bkrepo/registry/reference"
	"github.com/opencontainers/go-digest"
)

// The node tree of a project repository is laid out as follows:
//
//	/<docker repository>
//		_uploads/
//			<digest hex>			monolithic and finished uploads
//		<tag>/
//			manifest.json			schema1, schema2 and OCI manifests
//			list.manifest.json		manifest lists and OCI indexes
//			<digest hex>			blobs referenced by the manifest
//		sha256_<hex>/				manifests pushed by digest
//			manifest.json
//
// Manifests pushed by digest are stored in a directory named after the digest
// with the algorithm separator replaced, so that tag listings can skip them.

const uploadsDirName = "_uploads"

var digestDirRegexp = regexp.MustCompile(`^(sha256|sha384|sha512)_[a-f0-9]+$`)

// pathSpec is a type to mark structs as path specs. There is no
// implementation because we'd like to keep the specs and the mappers
// decoupled.
type pathSpec interface {
	pathSpec()
}

// repositoryPathSpec is the root of a docker repository.
type repositoryPathSpec struct {
	dockerRepo string
}

func (repositoryPathSpec) pathSpec() {}

// tagPathSpec is the directory holding a tag's manifest and blobs.
type tagPathSpec struct {
	dockerRepo string
	tag        string
}

func (tagPathSpec) pathSpec() {}

// manifestPathSpec is the node holding the manifest of a tag for a type.
type manifestPathSpec struct {
	dockerRepo string
	tag        string
	mtype      manifest.Type
}

func (manifestPathSpec) pathSpec() {}

// uploadsPathSpec is the staging directory of a docker repository.
type uploadsPathSpec struct {
	dockerRepo string
}

func (uploadsPathSpec) pathSpec() {}

// uploadStagingPathSpec is the staged node of an uploaded blob.
type uploadStagingPathSpec struct {
	dockerRepo string
	digest     digest.Digest
}

func (uploadStagingPathSpec) pathSpec() {}

// layerPathSpec is a blob synced next to the manifest of a tag.
type layerPathSpec struct {
	dockerRepo string
	tag        string
	digest     digest.Digest
}

func (layerPathSpec) pathSpec() {}

// pathFor maps spec to its node path.
func pathFor(spec pathSpec) (string, error) {
	switch v := spec.(type) {
	case repositoryPathSpec:
		if err := checkDockerRepo(v.dockerRepo); err != nil {
			return "", err
		}
		return "/" + v.dockerRepo, nil
	case tagPathSpec:
		if err := checkTagDir(v.tag); err != nil {
			return "", err
		}
		root, err := pathFor(repositoryPathSpec{dockerRepo: v.dockerRepo})
		if err != nil {
			return "", err
		}
		return path.Join(root, v.tag), nil
	case manifestPathSpec:
		dir, err := pathFor(tagPathSpec{dockerRepo: v.dockerRepo, tag: v.tag})
		if err != nil {
			return "", err
		}
		return path.Join(dir, v.mtype.Filename()), nil
	case uploadsPathSpec:
		root, err := pathFor(repositoryPathSpec{dockerRepo: v.dockerRepo})
		if err != nil {
			return "", err
		}
		return path.Join(root, uploadsDirName), nil
	case uploadStagingPathSpec:
		dir, err := pathFor(uploadsPathSpec{dockerRepo: v.dockerRepo})
		if err != nil {
			return "", err
		}
		return path.Join(dir, reference.Filename(v.digest)), nil
	case layerPathSpec:
		dir, err := pathFor(tagPathSpec{dockerRepo: v.dockerRepo, tag: v.tag})
		if err != nil {
			return "", err
		}
		return path.Join(dir, reference.Filename(v.digest)), nil
	default:
		return "", fmt.Errorf("unknown path spec: %#v", v)
	}
}

func checkDockerRepo(dockerRepo string) error {
	if dockerRepo == "" || strings.HasPrefix(dockerRepo, "/") || path.Clean(dockerRepo) != dockerRepo {
		return fmt.Errorf("invalid docker repository %q", dockerRepo)
	}
	return nil
}

func checkTagDir(tag string) error {
	if tag == "" || tag == uploadsDirName || strings.Contains(tag, "/") || tag == "." || tag == ".." {
		return fmt.Errorf("%w: %q", reference.ErrTagInvalid, tag)
	}
	return nil
}

// digestDir returns the directory name holding a manifest pushed by digest.
func digestDir(dgst digest.Digest) string {
	return strings.Replace(dgst.String(), ":", "_", 1)
}

// isDigestDir reports whether a tag directory holds a manifest pushed by
// digest.
func isDigestDir(name string) bool {
	return digestDirRegexp.MatchString(name)
}

// tagDir returns the directory name for the reference of art.
func tagDir(art reference.Artifact) (string, error) {
	if dgst, ok := art.Reference.Digest(); ok {
		return digestDir(dgst), nil
	}
	tag, ok := art.Reference.Tag()
	if !ok {
		return "", fmt.Errorf("%w: empty reference", reference.ErrTagInvalid)
	}
	if err := checkTagDir(tag); err != nil {
		return "", err
	}
	return tag, nil
}

// splitManifestPath returns the docker repository and tag directory of a
// manifest node path, and false when p does not name a manifest node.
func splitManifestPath(p string) (dockerRepo, tag string, ok bool) {
	name := path.Base(p)
	if name != manifest.Filename && name != manifest.ListFilename {
		return "", "", false
	}
	dir := path.Dir(p)
	tag = path.Base(dir)
	dockerRepo = strings.TrimPrefix(path.Dir(dir), "/")
	if dockerRepo == "" || dockerRepo == "." || tag == uploadsDirName {
		return "", "", false
	}
	return dockerRepo, tag, true
}
