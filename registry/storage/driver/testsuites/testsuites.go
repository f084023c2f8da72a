// Package testsuites holds gocheck conformance suites every node and blob
// driver must pass.
package testsuites

import (
	"bytes"
	"context"
	"crypto/rand"
	"io/ioutil"
	"strings"
	"time"

	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/opencontainers/go-digest"
	"gopkg.in/check.v1"
)

// NodeDriverConstructor is a function which returns a new
// storagedriver.NodeDriver.
type NodeDriverConstructor func() (storagedriver.NodeDriver, error)

// BlobDriverConstructor is a function which returns a new
// storagedriver.BlobStore.
type BlobDriverConstructor func() (storagedriver.BlobStore, error)

// SkipCheck is a function used to determine if a test suite should be
// skipped. If a SkipCheck returns a non-empty skip reason, the suite is
// skipped with the given reason.
type SkipCheck func() (reason string)

// NeverSkip is a default SkipCheck which never skips the suite.
var NeverSkip SkipCheck = func() string { return "" }

// RegisterNodeSuite registers a node driver conformance suite.
func RegisterNodeSuite(constructor NodeDriverConstructor, skipCheck SkipCheck) {
	check.Suite(&NodeDriverSuite{
		Constructor: constructor,
		SkipCheck:   skipCheck,
		ctx:         context.Background(),
	})
}

// RegisterBlobSuite registers a blob driver conformance suite.
func RegisterBlobSuite(constructor BlobDriverConstructor, skipCheck SkipCheck) {
	check.Suite(&BlobDriverSuite{
		Constructor: constructor,
		SkipCheck:   skipCheck,
		ctx:         context.Background(),
	})
}

// NodeDriverSuite is a gocheck test suite designed to test a
// storagedriver.NodeDriver.
type NodeDriverSuite struct {
	Constructor NodeDriverConstructor
	SkipCheck
	storagedriver.NodeDriver
	ctx context.Context
}

// SetUpTest builds a fresh driver for every test.
func (suite *NodeDriverSuite) SetUpTest(c *check.C) {
	if reason := suite.SkipCheck(); reason != "" {
		c.Skip(reason)
	}
	d, err := suite.Constructor()
	c.Assert(err, check.IsNil)
	suite.NodeDriver = d
}

func (suite *NodeDriverSuite) key(p string) storagedriver.NodeKey {
	return storagedriver.Key("proj", "repo", p)
}

func (suite *NodeDriverSuite) create(c *check.C, p, sha string) {
	_, err := suite.Create(suite.ctx, storagedriver.CreateNodeRequest{
		NodeKey: suite.key(p),
		Size:    int64(len(sha)),
		Sha256:  sha,
	})
	c.Assert(err, check.IsNil)
}

// TestRepositories checks repository creation is idempotent.
func (suite *NodeDriverSuite) TestRepositories(c *check.C) {
	_, err := suite.Repository(suite.ctx, "proj", "repo")
	c.Assert(err, check.Equals, storagedriver.ErrRepositoryNotFound)

	r1, err := suite.CreateRepository(suite.ctx, "proj", "repo")
	c.Assert(err, check.IsNil)
	r2, err := suite.CreateRepository(suite.ctx, "proj", "repo")
	c.Assert(err, check.IsNil)
	c.Assert(r2.CreatedAt.Equal(r1.CreatedAt), check.Equals, true)

	r, err := suite.Repository(suite.ctx, "proj", "repo")
	c.Assert(err, check.IsNil)
	c.Assert(r.ProjectID, check.Equals, "proj")
	c.Assert(r.Name, check.Equals, "repo")
}

// TestCreateDetail checks a created node can be read back and that implicit
// directories resolve.
func (suite *NodeDriverSuite) TestCreateDetail(c *check.C) {
	suite.create(c, "/foo/v1/manifest.json", "aa")

	n, err := suite.Detail(suite.ctx, suite.key("/foo/v1/manifest.json"))
	c.Assert(err, check.IsNil)
	c.Assert(n.Name, check.Equals, "manifest.json")
	c.Assert(n.Sha256, check.Equals, "aa")
	c.Assert(n.Size, check.Equals, int64(2))
	c.Assert(n.Folder, check.Equals, false)

	dir, err := suite.Detail(suite.ctx, suite.key("/foo/v1"))
	c.Assert(err, check.IsNil)
	c.Assert(dir.Folder, check.Equals, true)

	_, err = suite.Detail(suite.ctx, suite.key("/foo/v2"))
	c.Assert(err, check.Equals, storagedriver.ErrNodeNotFound)

	// a sibling sharing a name prefix is not a descendant
	ok, err := suite.Exists(suite.ctx, suite.key("/foo/v"))
	c.Assert(err, check.IsNil)
	c.Assert(ok, check.Equals, false)
}

// TestCreateOverwrite checks creation over an existing node.
func (suite *NodeDriverSuite) TestCreateOverwrite(c *check.C) {
	suite.create(c, "/foo/blob", "aa")

	_, err := suite.Create(suite.ctx, storagedriver.CreateNodeRequest{NodeKey: suite.key("/foo/blob"), Sha256: "bb"})
	c.Assert(err, check.Equals, storagedriver.ErrNodeExists)

	_, err = suite.Create(suite.ctx, storagedriver.CreateNodeRequest{NodeKey: suite.key("/foo/blob"), Sha256: "bb", Overwrite: true})
	c.Assert(err, check.IsNil)

	n, err := suite.Detail(suite.ctx, suite.key("/foo/blob"))
	c.Assert(err, check.IsNil)
	c.Assert(n.Sha256, check.Equals, "bb")
}

// TestCopyRename checks copies keep the source and renames remove it.
func (suite *NodeDriverSuite) TestCopyRename(c *check.C) {
	suite.create(c, "/foo/_uploads/aa", "aa")

	c.Assert(suite.Copy(suite.ctx, suite.key("/foo/_uploads/aa"), suite.key("/foo/v1/aa")), check.IsNil)
	c.Assert(suite.Rename(suite.ctx, suite.key("/foo/_uploads/aa"), suite.key("/foo/v2/aa")), check.IsNil)

	ok, err := suite.Exists(suite.ctx, suite.key("/foo/_uploads/aa"))
	c.Assert(err, check.IsNil)
	c.Assert(ok, check.Equals, false)

	for _, p := range []string{"/foo/v1/aa", "/foo/v2/aa"} {
		n, err := suite.Detail(suite.ctx, suite.key(p))
		c.Assert(err, check.IsNil)
		c.Assert(n.Sha256, check.Equals, "aa")
	}

	err = suite.Rename(suite.ctx, suite.key("/foo/_uploads/aa"), suite.key("/foo/v3/aa"))
	c.Assert(err, check.Equals, storagedriver.ErrNodeNotFound)
	err = suite.Copy(suite.ctx, suite.key("/nothing"), suite.key("/foo/v3/aa"))
	c.Assert(err, check.Equals, storagedriver.ErrNodeNotFound)
}

// TestDeleteSubtree checks deleting a directory removes its descendants only.
func (suite *NodeDriverSuite) TestDeleteSubtree(c *check.C) {
	suite.create(c, "/foo/v1/manifest.json", "aa")
	suite.create(c, "/foo/v1/bb", "bb")
	suite.create(c, "/foo/v10/manifest.json", "cc")

	c.Assert(suite.Delete(suite.ctx, suite.key("/foo/v1")), check.IsNil)

	nn, err := suite.Query(suite.ctx, storagedriver.Query{ProjectID: "proj", RepoName: "repo"})
	c.Assert(err, check.IsNil)
	c.Assert(nn, check.HasLen, 1)
	c.Assert(nn[0].FullPath, check.Equals, "/foo/v10/manifest.json")

	err = suite.Delete(suite.ctx, suite.key("/foo/v1"))
	c.Assert(err, check.Equals, storagedriver.ErrNodeNotFound)
}

// TestQuery checks the filters and ordering of Query.
func (suite *NodeDriverSuite) TestQuery(c *check.C) {
	suite.create(c, "/foo/v2/manifest.json", "aa")
	suite.create(c, "/foo/v1/manifest.json", "bb")
	suite.create(c, "/foo/v1/list.manifest.json", "cc")
	suite.create(c, "/bar/v1/manifest.json", "aa")
	_, err := suite.Create(suite.ctx, storagedriver.CreateNodeRequest{
		NodeKey: storagedriver.Key("other", "repo", "/foo/v1/manifest.json"),
		Sha256:  "aa",
	})
	c.Assert(err, check.IsNil)

	nn, err := suite.Query(suite.ctx, storagedriver.Query{
		ProjectID:  "proj",
		RepoName:   "repo",
		PathPrefix: "/foo",
		Names:      []string{"manifest.json"},
	})
	c.Assert(err, check.IsNil)
	c.Assert(nn, check.HasLen, 2)
	c.Assert(nn[0].FullPath, check.Equals, "/foo/v1/manifest.json")
	c.Assert(nn[1].FullPath, check.Equals, "/foo/v2/manifest.json")

	nn, err = suite.Query(suite.ctx, storagedriver.Query{Sha256: "aa"})
	c.Assert(err, check.IsNil)
	c.Assert(nn, check.HasLen, 3)
	c.Assert(nn[0].ProjectID, check.Equals, "other")

	nn, err = suite.Query(suite.ctx, storagedriver.Query{Sha256: "aa", Limit: 1})
	c.Assert(err, check.IsNil)
	c.Assert(nn, check.HasLen, 1)
}

// TestMetadata checks metadata is merged on save.
func (suite *NodeDriverSuite) TestMetadata(c *check.C) {
	suite.create(c, "/foo/v1/manifest.json", "aa")

	k := suite.key("/foo/v1/manifest.json")
	c.Assert(suite.SaveMetadata(suite.ctx, k, map[string]string{"a": "1", "b": "2"}), check.IsNil)
	c.Assert(suite.SaveMetadata(suite.ctx, k, map[string]string{"b": "3"}), check.IsNil)

	md, err := suite.QueryMetadata(suite.ctx, k)
	c.Assert(err, check.IsNil)
	c.Assert(md, check.DeepEquals, map[string]string{"a": "1", "b": "3"})

	err = suite.SaveMetadata(suite.ctx, suite.key("/nothing"), map[string]string{"a": "1"})
	c.Assert(err, check.Equals, storagedriver.ErrNodeNotFound)
}

// TestFindBlobGlobally checks global search by checksum and by name.
func (suite *NodeDriverSuite) TestFindBlobGlobally(c *check.C) {
	sha := digest.FromString("layer")
	sha512 := digest.SHA512.FromString("layer")

	suite.create(c, "/foo/v1/"+sha.Encoded(), sha.Encoded())
	suite.create(c, "/foo/_uploads/"+sha512.Encoded(), sha.Encoded())

	ll, err := suite.FindBlobGlobally(suite.ctx, sha)
	c.Assert(err, check.IsNil)
	c.Assert(ll, check.HasLen, 2)

	ll, err = suite.FindBlobGlobally(suite.ctx, sha512)
	c.Assert(err, check.IsNil)
	c.Assert(ll, check.HasLen, 1)
	c.Assert(ll[0].FullPath, check.Equals, "/foo/_uploads/"+sha512.Encoded())
	c.Assert(ll[0].Sha256, check.Equals, sha.Encoded())

	ll, err = suite.FindBlobGlobally(suite.ctx, digest.FromString("missing"))
	c.Assert(err, check.IsNil)
	c.Assert(ll, check.HasLen, 0)
}

// BlobDriverSuite is a gocheck test suite designed to test a
// storagedriver.BlobStore.
type BlobDriverSuite struct {
	Constructor BlobDriverConstructor
	SkipCheck
	storagedriver.BlobStore
	ctx context.Context
}

// SetUpTest builds a fresh driver for every test.
func (suite *BlobDriverSuite) SetUpTest(c *check.C) {
	if reason := suite.SkipCheck(); reason != "" {
		c.Skip(reason)
	}
	d, err := suite.Constructor()
	c.Assert(err, check.IsNil)
	suite.BlobStore = d
}

func randomContents(length int64) []byte {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return b
}

func (suite *BlobDriverSuite) read(c *check.C, sha string, offset int64) []byte {
	rc, err := suite.Reader(suite.ctx, sha, offset)
	c.Assert(err, check.IsNil)
	defer rc.Close()

	p, err := ioutil.ReadAll(rc)
	c.Assert(err, check.IsNil)
	return p
}

// TestStoreRead checks stored content is readable from any offset.
func (suite *BlobDriverSuite) TestStoreRead(c *check.C) {
	contents := randomContents(4096)
	dgst := digest.FromBytes(contents)

	info, err := suite.Store(suite.ctx, bytes.NewReader(contents), dgst)
	c.Assert(err, check.IsNil)
	c.Assert(info.Sha256, check.Equals, dgst.Encoded())
	c.Assert(info.Size, check.Equals, int64(len(contents)))

	ok, err := suite.Exists(suite.ctx, dgst.Encoded())
	c.Assert(err, check.IsNil)
	c.Assert(ok, check.Equals, true)

	c.Assert(suite.read(c, dgst.Encoded(), 0), check.DeepEquals, contents)
	c.Assert(suite.read(c, dgst.Encoded(), 1000), check.DeepEquals, contents[1000:])

	// storing the same content twice is harmless
	_, err = suite.Store(suite.ctx, bytes.NewReader(contents), "")
	c.Assert(err, check.IsNil)
}

// TestStoreOtherAlgorithm checks verification against sha512 digests while
// the content stays keyed by sha256.
func (suite *BlobDriverSuite) TestStoreOtherAlgorithm(c *check.C) {
	contents := randomContents(512)

	info, err := suite.Store(suite.ctx, bytes.NewReader(contents), digest.SHA512.FromBytes(contents))
	c.Assert(err, check.IsNil)
	c.Assert(info.Sha256, check.Equals, digest.FromBytes(contents).Encoded())
}

// TestStoreDigestMismatch checks mismatching content is rejected and not kept.
func (suite *BlobDriverSuite) TestStoreDigestMismatch(c *check.C) {
	contents := randomContents(128)

	_, err := suite.Store(suite.ctx, bytes.NewReader(contents), digest.FromString("something else"))
	c.Assert(err, check.FitsTypeOf, storagedriver.ErrDigestMismatch{})

	ok, err := suite.Exists(suite.ctx, digest.FromBytes(contents).Encoded())
	c.Assert(err, check.IsNil)
	c.Assert(ok, check.Equals, false)
}

// TestReaderNotFound checks reading an absent blob.
func (suite *BlobDriverSuite) TestReaderNotFound(c *check.C) {
	_, err := suite.Reader(suite.ctx, digest.FromString("missing").Encoded(), 0)
	c.Assert(err, check.Equals, storagedriver.ErrBlobNotFound)
}

// TestAppendSession checks cumulative sizes and the committed result.
func (suite *BlobDriverSuite) TestAppendSession(c *check.C) {
	id, err := suite.CreateAppendID(suite.ctx, "library/app")
	c.Assert(err, check.IsNil)

	var all []byte
	var cumulative int64
	for _, size := range []int64{100, 200, 50} {
		chunk := randomContents(size)
		all = append(all, chunk...)
		cumulative += size

		n, err := suite.Append(suite.ctx, id, bytes.NewReader(chunk))
		c.Assert(err, check.IsNil)
		c.Assert(n, check.Equals, cumulative)
	}

	n, err := suite.AppendSize(suite.ctx, id)
	c.Assert(err, check.IsNil)
	c.Assert(n, check.Equals, int64(350))

	info, err := suite.FinishAppend(suite.ctx, id, digest.FromBytes(all))
	c.Assert(err, check.IsNil)
	c.Assert(info.Size, check.Equals, int64(350))
	c.Assert(suite.read(c, info.Sha256, 0), check.DeepEquals, all)

	_, err = suite.AppendSize(suite.ctx, id)
	c.Assert(err, check.Equals, storagedriver.ErrAppendIDNotFound)
}

// TestAppendEmpty checks a session finished without appends yields the empty
// blob.
func (suite *BlobDriverSuite) TestAppendEmpty(c *check.C) {
	id, err := suite.CreateAppendID(suite.ctx, "library/app")
	c.Assert(err, check.IsNil)

	info, err := suite.FinishAppend(suite.ctx, id, digest.FromBytes(nil))
	c.Assert(err, check.IsNil)
	c.Assert(info.Size, check.Equals, int64(0))
	c.Assert(info.Sha256, check.Equals, digest.FromBytes(nil).Encoded())
}

// TestAppendMismatch checks a finish with the wrong digest fails and ends the
// session.
func (suite *BlobDriverSuite) TestAppendMismatch(c *check.C) {
	id, err := suite.CreateAppendID(suite.ctx, "library/app")
	c.Assert(err, check.IsNil)

	_, err = suite.Append(suite.ctx, id, strings.NewReader("abc"))
	c.Assert(err, check.IsNil)

	_, err = suite.FinishAppend(suite.ctx, id, digest.FromString("abcd"))
	c.Assert(err, check.FitsTypeOf, storagedriver.ErrDigestMismatch{})

	_, err = suite.Append(suite.ctx, id, strings.NewReader("d"))
	c.Assert(err, check.Equals, storagedriver.ErrAppendIDNotFound)
}

// TestAppendOwner checks the owner recorded at creation is returned.
func (suite *BlobDriverSuite) TestAppendOwner(c *check.C) {
	id, err := suite.CreateAppendID(suite.ctx, "library/owner")
	c.Assert(err, check.IsNil)

	_, err = suite.Append(suite.ctx, id, strings.NewReader("abc"))
	c.Assert(err, check.IsNil)

	owner, err := suite.AppendOwner(suite.ctx, id)
	c.Assert(err, check.IsNil)
	c.Assert(owner, check.Equals, "library/owner")

	c.Assert(suite.CancelAppend(suite.ctx, id), check.IsNil)
	_, err = suite.AppendOwner(suite.ctx, id)
	c.Assert(err, check.Equals, storagedriver.ErrAppendIDNotFound)
}

// TestCancelAppend checks a cancelled session is gone.
func (suite *BlobDriverSuite) TestCancelAppend(c *check.C) {
	id, err := suite.CreateAppendID(suite.ctx, "library/app")
	c.Assert(err, check.IsNil)

	c.Assert(suite.CancelAppend(suite.ctx, id), check.IsNil)
	c.Assert(suite.CancelAppend(suite.ctx, id), check.Equals, storagedriver.ErrAppendIDNotFound)

	_, err = suite.FinishAppend(suite.ctx, id, "")
	c.Assert(err, check.Equals, storagedriver.ErrAppendIDNotFound)
}

// TestPurgeUploads checks stale sessions are purged when the driver supports
// it.
func (suite *BlobDriverSuite) TestPurgeUploads(c *check.C) {
	purger, ok := suite.BlobStore.(storagedriver.UploadPurger)
	if !ok {
		c.Skip("driver does not purge uploads")
	}

	id, err := suite.CreateAppendID(suite.ctx, "library/app")
	c.Assert(err, check.IsNil)

	n, err := purger.PurgeUploads(suite.ctx, time.Now().Add(-time.Hour))
	c.Assert(err, check.IsNil)
	c.Assert(n, check.Equals, 0)

	n, err = purger.PurgeUploads(suite.ctx, time.Now().Add(time.Hour))
	c.Assert(err, check.IsNil)
	c.Assert(n, check.Equals, 1)

	_, err = suite.AppendSize(suite.ctx, id)
	c.Assert(err, check.Equals, storagedriver.ErrAppendIDNotFound)
}
