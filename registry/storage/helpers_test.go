package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/bkrepo/registry/manifest"
	"github.com/bkrepo/registry/manifest/manifestlist"
	"github.com/bkrepo/registry/manifest/schema2"
	"github.com/bkrepo/registry/reference"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/bkrepo/registry/registry/storage/driver/inmemory"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"
)

const (
	testProject = "proj"
	testRepo    = "docker-local"
)

type testEnv struct {
	ctx      context.Context
	nodes    *inmemory.Nodes
	blobs    storagedriver.BlobStore
	registry *Registry
}

func newTestEnv(t *testing.T, opts ...RegistryOption) *testEnv {
	t.Helper()

	ctx := context.Background()
	nodes := inmemory.NewNodes()
	blobs := inmemory.NewBlobs()

	_, err := nodes.CreateRepository(ctx, testProject, testRepo)
	require.NoError(t, err)

	r, err := NewRegistry(ctx, nodes, blobs, opts...)
	require.NoError(t, err)

	return &testEnv{ctx: ctx, nodes: nodes, blobs: blobs, registry: r}
}

func (env *testEnv) artifact(t *testing.T, name, ref string) reference.Artifact {
	t.Helper()

	art, err := reference.ParseName(name)
	require.NoError(t, err)
	if ref == "" {
		return art
	}
	return art.WithReference(reference.Parse(ref))
}

func (env *testEnv) uploadBlob(t *testing.T, art reference.Artifact, p []byte) digest.Digest {
	t.Helper()

	dgst := digest.FromBytes(p)
	_, err := env.registry.PutBlob(env.ctx, art, dgst, bytes.NewReader(p))
	require.NoError(t, err)
	return dgst
}

func (env *testEnv) exists(t *testing.T, art reference.Artifact, p string) bool {
	t.Helper()

	ok, err := env.nodes.Exists(env.ctx, storagedriver.Key(art.ProjectID, art.RepoName, p))
	require.NoError(t, err)
	return ok
}

// image is an image configuration plus layers, and the schema2 manifest
// referencing them.
type image struct {
	config  []byte
	layers  [][]byte
	payload []byte
	digest  digest.Digest
}

func newImage(t *testing.T, arch string, layers ...string) *image {
	t.Helper()

	img := &image{
		config: []byte(`{"architecture":"` + arch + `","config":{"Labels":{"maintainer":"dev@example.com"}}}`),
	}

	m := schema2.Manifest{
		SchemaVersion: 2,
		MediaType:     manifest.MediaTypeSchema2,
		Config: v1.Descriptor{
			MediaType: manifest.MediaTypeImageConfig,
			Digest:    digest.FromBytes(img.config),
			Size:      int64(len(img.config)),
		},
	}
	for _, l := range layers {
		img.layers = append(img.layers, []byte(l))
		m.Layers = append(m.Layers, v1.Descriptor{
			MediaType: "application/vnd.docker.image.rootfs.diff.tar.gzip",
			Digest:    digest.FromString(l),
			Size:      int64(len(l)),
		})
	}

	p, err := json.Marshal(m)
	require.NoError(t, err)
	img.payload = p
	img.digest = digest.FromBytes(p)

	return img
}

func (env *testEnv) uploadImageBlobs(t *testing.T, art reference.Artifact, img *image) {
	t.Helper()
	env.uploadImageBlobsTo(t, env.registry, art, img)
}

// uploadImageBlobsTo uploads the blobs of img through r, which may carry a
// different permission checker than env.registry.
func (env *testEnv) uploadImageBlobsTo(t *testing.T, r *Registry, art reference.Artifact, img *image) {
	t.Helper()

	for _, p := range append([][]byte{img.config}, img.layers...) {
		_, err := r.PutBlob(env.ctx, art, digest.FromBytes(p), bytes.NewReader(p))
		require.NoError(t, err)
	}
}

func (env *testEnv) pushImage(t *testing.T, art reference.Artifact, img *image) {
	t.Helper()

	env.uploadImageBlobs(t, art, img)
	dgst, err := env.registry.PutManifest(env.ctx, art, manifest.MediaTypeSchema2, img.payload)
	require.NoError(t, err)
	require.Equal(t, img.digest, dgst)
}

func listPayload(t *testing.T, images ...*image) []byte {
	t.Helper()

	ml := manifestlist.ManifestList{SchemaVersion: 2, MediaType: manifest.MediaTypeManifestList}
	for _, img := range images {
		ml.Manifests = append(ml.Manifests, v1.Descriptor{
			MediaType: manifest.MediaTypeSchema2,
			Digest:    img.digest,
			Size:      int64(len(img.payload)),
			Platform:  &v1.Platform{OS: "linux", Architecture: "amd64"},
		})
	}

	p, err := json.Marshal(ml)
	require.NoError(t, err)
	return p
}

// readOnly allows reads everywhere and writes nowhere.
type readOnly struct{}

func (readOnly) CanRead(ctx context.Context, projectID, repoName string) bool  { return true }
func (readOnly) CanWrite(ctx context.Context, projectID, repoName string) bool { return false }

// projectOnly allows everything inside a single project.
type projectOnly string

func (p projectOnly) CanRead(ctx context.Context, projectID, repoName string) bool {
	return projectID == string(p)
}

func (p projectOnly) CanWrite(ctx context.Context, projectID, repoName string) bool {
	return projectID == string(p)
}
