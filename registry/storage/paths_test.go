package storage

import (
	"testing"

	"github.com/bkrepo/registry/manifest"
	"github.com/bkrepo/registry/reference"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

func TestPathFor(t *testing.T) {
	dgst := digest.FromString("blob")

	tests := []struct {
		name     string
		spec     pathSpec
		expected string
		err      bool
	}{
		{name: "repository", spec: repositoryPathSpec{dockerRepo: "library/app"}, expected: "/library/app"},
		{name: "tag", spec: tagPathSpec{dockerRepo: "library/app", tag: "v1"}, expected: "/library/app/v1"},
		{name: "manifest", spec: manifestPathSpec{dockerRepo: "app", tag: "v1", mtype: manifest.Schema2}, expected: "/app/v1/manifest.json"},
		{name: "schema1 manifest", spec: manifestPathSpec{dockerRepo: "app", tag: "v1", mtype: manifest.Schema1Signed}, expected: "/app/v1/manifest.json"},
		{name: "manifest list", spec: manifestPathSpec{dockerRepo: "app", tag: "v1", mtype: manifest.Schema2List}, expected: "/app/v1/list.manifest.json"},
		{name: "uploads", spec: uploadsPathSpec{dockerRepo: "app"}, expected: "/app/_uploads"},
		{name: "staging", spec: uploadStagingPathSpec{dockerRepo: "app", digest: dgst}, expected: "/app/_uploads/" + dgst.Encoded()},
		{name: "layer", spec: layerPathSpec{dockerRepo: "app", tag: "v1", digest: dgst}, expected: "/app/v1/" + dgst.Encoded()},
		{name: "empty repository", spec: repositoryPathSpec{}, err: true},
		{name: "absolute repository", spec: repositoryPathSpec{dockerRepo: "/app"}, err: true},
		{name: "unclean repository", spec: repositoryPathSpec{dockerRepo: "app/../etc"}, err: true},
		{name: "uploads tag", spec: tagPathSpec{dockerRepo: "app", tag: "_uploads"}, err: true},
		{name: "dot tag", spec: tagPathSpec{dockerRepo: "app", tag: ".."}, err: true},
		{name: "slash tag", spec: tagPathSpec{dockerRepo: "app", tag: "a/b"}, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := pathFor(tt.spec)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, p)
		})
	}
}

func TestTagDir(t *testing.T) {
	dgst := digest.FromString("manifest")
	art := reference.Artifact{ProjectID: "p", RepoName: "r", DockerRepo: "app"}

	dir, err := tagDir(art.WithReference(reference.Parse("v1.0")))
	require.NoError(t, err)
	require.Equal(t, "v1.0", dir)

	dir, err = tagDir(art.WithReference(reference.WithDigest(dgst)))
	require.NoError(t, err)
	require.Equal(t, "sha256_"+dgst.Encoded(), dir)
	require.True(t, isDigestDir(dir))
	require.False(t, isDigestDir("v1.0"))
	require.False(t, isDigestDir("sha256_XYZ"))

	_, err = tagDir(art)
	require.ErrorIs(t, err, reference.ErrTagInvalid)

	_, err = tagDir(art.WithReference(reference.Parse("_uploads")))
	require.ErrorIs(t, err, reference.ErrTagInvalid)
}

func TestSplitManifestPath(t *testing.T) {
	tests := []struct {
		path string
		repo string
		tag  string
		ok   bool
	}{
		{path: "/library/app/v1/manifest.json", repo: "library/app", tag: "v1", ok: true},
		{path: "/app/latest/list.manifest.json", repo: "app", tag: "latest", ok: true},
		{path: "/app/v1/0123abcd"},
		{path: "/v1/manifest.json"},
		{path: "/app/_uploads/manifest.json"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			repo, tag, ok := splitManifestPath(tt.path)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.repo, repo)
			require.Equal(t, tt.tag, tag)
		})
	}
}

func TestParseSyncPolicy(t *testing.T) {
	for in, want := range map[string]SyncPolicy{"": SyncLocal, "local": SyncLocal, "global": SyncGlobal} {
		p, err := ParseSyncPolicy(in)
		require.NoError(t, err)
		require.Equal(t, want, p)
	}

	_, err := ParseSyncPolicy("remote")
	require.EqualError(t, err, `unknown sync policy "remote"`)
}
