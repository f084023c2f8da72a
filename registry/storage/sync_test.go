package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bkrepo/registry/manifest"
	"github.com/bkrepo/registry/reference"
	"github.com/bkrepo/registry/registry/storage/cache/memory"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/bkrepo/registry/registry/storage/driver/inmemory"
	"github.com/bkrepo/registry/registry/storage/driver/mocks"
	"github.com/golang/mock/gomock"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

func newMockRegistry(t *testing.T, opts ...RegistryOption) (*Registry, *mocks.MockNodeDriver) {
	t.Helper()

	ctrl := gomock.NewController(t)
	nodes := mocks.NewMockNodeDriver(ctrl)
	nodes.EXPECT().Name().Return("mock").AnyTimes()

	r, err := NewRegistry(context.Background(), nodes, inmemory.NewBlobs(), opts...)
	require.NoError(t, err)

	return r, nodes
}

func TestSyncBlobs_MoveFailed(t *testing.T) {
	r, nodes := newMockRegistry(t)
	ctx := context.Background()
	art := reference.Artifact{ProjectID: "p", RepoName: "r", DockerRepo: "app"}
	dgst := digest.FromString("layer")

	staging := storagedriver.Key("p", "r", "/app/_uploads/"+dgst.Encoded())
	dst := storagedriver.Key("p", "r", "/app/v1/"+dgst.Encoded())

	gomock.InOrder(
		nodes.EXPECT().Exists(gomock.Any(), staging).Return(true, nil),
		nodes.EXPECT().Rename(gomock.Any(), staging, dst).Return(errors.New("disk full")),
	)

	blobs := []manifest.BlobInfo{{Digest: dgst.String()}}
	err := r.syncBlobs(ctx, art, "v1", blobs, SyncLocal)

	var moveErr ErrMoveFailed
	require.ErrorAs(t, err, &moveErr)
	require.Equal(t, staging.FullPath, moveErr.Src)
	require.Equal(t, dst.FullPath, moveErr.Dst)
}

func TestSyncBlobs_StoreFailure(t *testing.T) {
	r, nodes := newMockRegistry(t)
	ctx := context.Background()
	art := reference.Artifact{ProjectID: "p", RepoName: "r", DockerRepo: "app"}
	dgst := digest.FromString("layer")

	nodes.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil).Times(2)
	nodes.EXPECT().Query(gomock.Any(), storagedriver.Query{
		ProjectID: "p",
		RepoName:  "r",
		Names:     []string{dgst.Encoded()},
	}).Return(nil, errors.New("connection reset"))

	err := r.syncBlobs(ctx, art, "v1", []manifest.BlobInfo{{Digest: dgst.String()}}, SyncGlobal)
	require.EqualError(t, err, "searching blob "+dgst.String()+": connection reset")
	require.False(t, errors.As(err, &ErrSyncManifestFailed{}))
}

func TestSyncBlobs_AccumulatesMissing(t *testing.T) {
	env := newTestEnv(t)
	art := env.artifact(t, testName, "")

	present := env.uploadBlob(t, art, []byte("present"))
	missing := []digest.Digest{digest.FromString("one"), digest.FromString("two")}

	blobs := []manifest.BlobInfo{
		{Digest: missing[0].String()},
		{Digest: present.String()},
		{Digest: missing[1].String()},
	}
	err := env.registry.syncBlobs(env.ctx, art, "v1", blobs, SyncGlobal)

	var syncErr ErrSyncManifestFailed
	require.ErrorAs(t, err, &syncErr)
	require.Equal(t, missing, syncErr.Missing)

	// the paths are filled in whatever the outcome
	require.Equal(t, "/library/app/v1/"+present.Encoded(), blobs[1].Path)
	require.Equal(t, "/library/app/v1", blobs[1].ParentPath)
}

func TestSyncBlobs_InvalidDigest(t *testing.T) {
	env := newTestEnv(t)

	err := env.registry.syncBlobs(env.ctx, env.artifact(t, testName, ""), "v1", []manifest.BlobInfo{{Digest: "md5:abc"}}, SyncLocal)
	require.ErrorAs(t, err, &ErrMalformedManifest{})
}

func TestLocator(t *testing.T) {
	env := newTestEnv(t,
		WithPermissionChecker(projectOnly(testProject)),
		WithBlobLocationCache(memory.NewBlobLocationCache(0, 0)),
	)
	_, err := env.nodes.CreateRepository(env.ctx, "hidden", "repo")
	require.NoError(t, err)

	content := "layer"
	dgst := digest.FromString(content)

	// staged around the permission checker
	fi, err := env.blobs.Store(env.ctx, strings.NewReader(content), dgst)
	require.NoError(t, err)
	_, err = env.registry.stage(env.ctx, env.artifact(t, "hidden/repo/app", ""), dgst, fi)
	require.NoError(t, err)

	_, err = env.registry.locator.Locate(env.ctx, dgst)
	require.ErrorAs(t, err, &ErrBlobUnknown{})

	art := env.artifact(t, testName, "")
	env.uploadBlob(t, art, []byte(content))

	loc, err := env.registry.locator.Locate(env.ctx, dgst)
	require.NoError(t, err)
	require.Equal(t, testProject, loc.ProjectID)
	require.Equal(t, "/library/app/_uploads/"+dgst.Encoded(), loc.FullPath)

	// the cached location goes stale once the node moves
	staging := env.registry.key(art, loc.FullPath)
	moved := env.registry.key(art, "/library/app/v1/"+dgst.Encoded())
	require.NoError(t, env.nodes.Rename(env.ctx, staging, moved))

	loc, err = env.registry.locator.Locate(env.ctx, dgst)
	require.NoError(t, err)
	require.Equal(t, moved, loc.NodeKey)
}

func TestPersistManifest_MetadataWithNode(t *testing.T) {
	r, nodes := newMockRegistry(t)
	ctx := context.Background()
	art := reference.Artifact{ProjectID: "p", RepoName: "r", DockerRepo: "app"}.WithReference(reference.Parse("v1"))
	payload := []byte(`{"schemaVersion":2}`)
	dgst := digest.FromBytes(payload)

	var created storagedriver.CreateNodeRequest
	gomock.InOrder(
		nodes.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req storagedriver.CreateNodeRequest) (*storagedriver.Node, error) {
				created = req
				return &storagedriver.Node{}, nil
			}),
		nodes.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(storagedriver.ErrNodeNotFound),
	)

	err := r.persistManifest(ctx, art, "v1", manifest.Schema2, manifest.MediaTypeSchema2, dgst, payload, manifest.Labels{"team": {"a", "b"}})
	require.NoError(t, err)

	require.True(t, created.Overwrite)
	require.Equal(t, dgst.Encoded(), created.Sha256)
	require.Equal(t, dgst.String(), created.Metadata[MetadataManifestDigest])
	require.Equal(t, manifest.MediaTypeSchema2, created.Metadata[MetadataManifestMediaType])
	require.Equal(t, manifest.Schema2.String(), created.Metadata[MetadataManifestType])
	require.Equal(t, "a,b", created.Metadata[MetadataLabelPrefix+"team"])
}

func TestPersistManifest_CreateFailure(t *testing.T) {
	r, nodes := newMockRegistry(t)
	ctx := context.Background()
	art := reference.Artifact{ProjectID: "p", RepoName: "r", DockerRepo: "app"}.WithReference(reference.Parse("v1"))
	payload := []byte(`{"schemaVersion":2}`)

	// no metadata write or cleanup follows a failed create
	nodes.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	err := r.persistManifest(ctx, art, "v1", manifest.Schema2, manifest.MediaTypeSchema2, digest.FromBytes(payload), payload, nil)
	require.ErrorAs(t, err, &ErrFileSaveFailed{})
}
