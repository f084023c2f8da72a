package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTags(t *testing.T) {
	env := newTestEnv(t)
	img := newImage(t, "amd64", "layer")

	for _, tag := range []string{"d", "b", "a", "c"} {
		env.pushImage(t, env.artifact(t, testName, tag), img)
	}
	// pushed by digest, not a tag
	env.pushImage(t, env.artifact(t, testName, img.digest.String()), img)
	// a nested docker repository has tags of its own
	env.pushImage(t, env.artifact(t, testName+"/nested", "e"), img)

	art := env.artifact(t, testName, "")

	page, err := env.registry.Tags(env.ctx, art, 0, "")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, page.Entries)
	require.False(t, page.More)

	page, err = env.registry.Tags(env.ctx, art, 2, "")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, page.Entries)
	require.True(t, page.More)
	require.Equal(t, "b", page.Last())

	page, err = env.registry.Tags(env.ctx, art, 2, page.Last())
	require.NoError(t, err)
	require.Equal(t, []string{"c", "d"}, page.Entries)
	require.False(t, page.More)

	_, err = env.registry.Tags(env.ctx, art, 2, "d")
	require.ErrorAs(t, err, &ErrNameUnknown{})
}

func TestTags_Unknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.Tags(env.ctx, env.artifact(t, testName, ""), 0, "")
	require.ErrorAs(t, err, &ErrNameUnknown{})

	_, err = env.registry.Tags(env.ctx, env.artifact(t, "proj/missing/library/app", ""), 0, "")
	require.ErrorAs(t, err, &ErrRepoNotFound{})
}

func TestCatalog(t *testing.T) {
	env := newTestEnv(t, WithPermissionChecker(projectOnly(testProject)))
	_, err := env.nodes.CreateRepository(env.ctx, testProject, "other")
	require.NoError(t, err)
	_, err = env.nodes.CreateRepository(env.ctx, "private", "images")
	require.NoError(t, err)

	img := newImage(t, "amd64", "layer")
	for _, name := range []string{
		testName,
		testProject + "/" + testRepo + "/library/app/nested",
		testProject + "/" + testRepo + "/busybox",
		testProject + "/other/tools",
	} {
		env.pushImage(t, env.artifact(t, name, "v1"), img)
		env.pushImage(t, env.artifact(t, name, "v2"), img)
	}

	// written around the permission checker
	{
		r, err := NewRegistry(env.ctx, env.nodes, env.blobs)
		require.NoError(t, err)
		art := env.artifact(t, "private/images/secret", "v1")
		env.uploadImageBlobsTo(t, r, art, img)
		_, err = r.PutManifest(env.ctx, art, "", img.payload)
		require.NoError(t, err)
	}

	t.Run("scoped", func(t *testing.T) {
		page, err := env.registry.Catalog(env.ctx, CatalogRequest{ProjectID: testProject, RepoName: testRepo})
		require.NoError(t, err)
		require.Equal(t, []string{"busybox", "library/app", "library/app/nested"}, page.Entries)

		page, err = env.registry.Catalog(env.ctx, CatalogRequest{ProjectID: testProject, RepoName: testRepo, N: 1, Last: "busybox"})
		require.NoError(t, err)
		require.Equal(t, []string{"library/app"}, page.Entries)
		require.True(t, page.More)
	})

	t.Run("global", func(t *testing.T) {
		page, err := env.registry.Catalog(env.ctx, CatalogRequest{})
		require.NoError(t, err)
		require.Equal(t, []string{
			"proj/docker-local/busybox",
			"proj/docker-local/library/app",
			"proj/docker-local/library/app/nested",
			"proj/other/tools",
		}, page.Entries)
	})

	t.Run("unreadable project", func(t *testing.T) {
		_, err := env.registry.Catalog(env.ctx, CatalogRequest{ProjectID: "private"})
		require.ErrorAs(t, err, &ErrNameUnknown{})

		_, err = env.registry.Catalog(env.ctx, CatalogRequest{ProjectID: "private", RepoName: "images"})
		require.ErrorAs(t, err, &ErrUnauthorized{})
	})

	t.Run("unknown repository", func(t *testing.T) {
		_, err := env.registry.Catalog(env.ctx, CatalogRequest{ProjectID: testProject, RepoName: "missing"})
		require.ErrorAs(t, err, &ErrRepoNotFound{})
	})
}

func TestCatalog_MaxEntries(t *testing.T) {
	env := newTestEnv(t, WithCatalogMaxEntries(2))
	img := newImage(t, "amd64", "layer")
	for _, repo := range []string{"a", "b", "c"} {
		env.pushImage(t, env.artifact(t, testProject+"/"+testRepo+"/"+repo, "latest"), img)
	}

	for _, n := range []int{0, 5} {
		page, err := env.registry.Catalog(env.ctx, CatalogRequest{ProjectID: testProject, RepoName: testRepo, N: n})
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, page.Entries)
		require.True(t, page.More)
	}
}
