// Package base wraps node and blob drivers with the behavior every driver
// shares: path normalization, error annotation with the driver name and
// per-call timing in the storage metrics namespace.
package base

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bkrepo/registry/log"
	prometheus "github.com/bkrepo/registry/metrics"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/docker/go-metrics"
	"github.com/opencontainers/go-digest"
)

var storageAction = prometheus.StorageNamespace.NewLabeledTimer("action", "The number of seconds that the storage action takes", "driver", "action")

// passthrough errors are part of the driver contract and are not annotated.
var passthrough = []error{
	storagedriver.ErrNodeNotFound,
	storagedriver.ErrNodeExists,
	storagedriver.ErrRepositoryNotFound,
	storagedriver.ErrBlobNotFound,
	storagedriver.ErrAppendIDNotFound,
}

func setDriverName(name string, e error) error {
	if e == nil {
		return nil
	}
	for _, p := range passthrough {
		if errors.Is(e, p) {
			return e
		}
	}
	var mismatch storagedriver.ErrDigestMismatch
	if errors.As(e, &mismatch) {
		return e
	}
	var already storagedriver.Error
	if errors.As(e, &already) {
		return e
	}

	return storagedriver.Error{DriverName: name, Enclosed: e}
}

func track(ctx context.Context, timer metrics.LabeledTimer, driver, action string) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		timer.WithValues(driver, action).Update(d)
		log.GetLogger(log.WithContext(ctx)).WithFields(log.Fields{
			"driver":     driver,
			"action":     action,
			"duration_s": d.Seconds(),
		}).Trace("storage action")
	}
}

// NodeBase wraps a NodeDriver.
type NodeBase struct {
	storagedriver.NodeDriver
}

// NewNodeBase returns d instrumented.
func NewNodeBase(d storagedriver.NodeDriver) *NodeBase {
	return &NodeBase{NodeDriver: d}
}

func clean(key storagedriver.NodeKey) storagedriver.NodeKey {
	key.FullPath = storagedriver.CleanPath(key.FullPath)
	return key
}

// Detail wraps NodeStore.Detail.
func (b *NodeBase) Detail(ctx context.Context, key storagedriver.NodeKey) (*storagedriver.Node, error) {
	defer track(ctx, storageAction, b.Name(), "Detail")()

	n, err := b.NodeDriver.Detail(ctx, clean(key))
	return n, setDriverName(b.Name(), err)
}

// Exists wraps NodeStore.Exists.
func (b *NodeBase) Exists(ctx context.Context, key storagedriver.NodeKey) (bool, error) {
	defer track(ctx, storageAction, b.Name(), "Exists")()

	ok, err := b.NodeDriver.Exists(ctx, clean(key))
	return ok, setDriverName(b.Name(), err)
}

// Create wraps NodeStore.Create.
func (b *NodeBase) Create(ctx context.Context, req storagedriver.CreateNodeRequest) (*storagedriver.Node, error) {
	defer track(ctx, storageAction, b.Name(), "Create")()

	req.NodeKey = clean(req.NodeKey)
	n, err := b.NodeDriver.Create(ctx, req)
	return n, setDriverName(b.Name(), err)
}

// Copy wraps NodeStore.Copy.
func (b *NodeBase) Copy(ctx context.Context, src, dst storagedriver.NodeKey) error {
	defer track(ctx, storageAction, b.Name(), "Copy")()

	return setDriverName(b.Name(), b.NodeDriver.Copy(ctx, clean(src), clean(dst)))
}

// Rename wraps NodeStore.Rename.
func (b *NodeBase) Rename(ctx context.Context, src, dst storagedriver.NodeKey) error {
	defer track(ctx, storageAction, b.Name(), "Rename")()

	return setDriverName(b.Name(), b.NodeDriver.Rename(ctx, clean(src), clean(dst)))
}

// Delete wraps NodeStore.Delete.
func (b *NodeBase) Delete(ctx context.Context, key storagedriver.NodeKey) error {
	defer track(ctx, storageAction, b.Name(), "Delete")()

	return setDriverName(b.Name(), b.NodeDriver.Delete(ctx, clean(key)))
}

// Query wraps NodeStore.Query.
func (b *NodeBase) Query(ctx context.Context, q storagedriver.Query) ([]storagedriver.Node, error) {
	defer track(ctx, storageAction, b.Name(), "Query")()

	if q.PathPrefix != "" {
		q.PathPrefix = storagedriver.CleanPath(q.PathPrefix)
	}
	nn, err := b.NodeDriver.Query(ctx, q)
	return nn, setDriverName(b.Name(), err)
}

// SaveMetadata wraps MetadataStore.SaveMetadata.
func (b *NodeBase) SaveMetadata(ctx context.Context, key storagedriver.NodeKey, md map[string]string) error {
	defer track(ctx, storageAction, b.Name(), "SaveMetadata")()

	return setDriverName(b.Name(), b.NodeDriver.SaveMetadata(ctx, clean(key), md))
}

// QueryMetadata wraps MetadataStore.QueryMetadata.
func (b *NodeBase) QueryMetadata(ctx context.Context, key storagedriver.NodeKey) (map[string]string, error) {
	defer track(ctx, storageAction, b.Name(), "QueryMetadata")()

	md, err := b.NodeDriver.QueryMetadata(ctx, clean(key))
	return md, setDriverName(b.Name(), err)
}

// Repository wraps RepositoryStore.Repository.
func (b *NodeBase) Repository(ctx context.Context, projectID, repoName string) (*storagedriver.Repository, error) {
	defer track(ctx, storageAction, b.Name(), "Repository")()

	r, err := b.NodeDriver.Repository(ctx, projectID, repoName)
	return r, setDriverName(b.Name(), err)
}

// CreateRepository wraps RepositoryStore.CreateRepository.
func (b *NodeBase) CreateRepository(ctx context.Context, projectID, repoName string) (*storagedriver.Repository, error) {
	defer track(ctx, storageAction, b.Name(), "CreateRepository")()

	r, err := b.NodeDriver.CreateRepository(ctx, projectID, repoName)
	return r, setDriverName(b.Name(), err)
}

// FindBlobGlobally wraps BlobFinder.FindBlobGlobally.
func (b *NodeBase) FindBlobGlobally(ctx context.Context, dgst digest.Digest) ([]storagedriver.Location, error) {
	defer track(ctx, storageAction, b.Name(), "FindBlobGlobally")()

	ll, err := b.NodeDriver.FindBlobGlobally(ctx, dgst)
	return ll, setDriverName(b.Name(), err)
}

// BlobBase wraps a BlobStore.
type BlobBase struct {
	storagedriver.BlobStore
}

// NewBlobBase returns d instrumented. The result keeps implementing
// storagedriver.UploadPurger when d does.
func NewBlobBase(d storagedriver.BlobStore) storagedriver.BlobStore {
	b := &BlobBase{BlobStore: d}
	if p, ok := d.(storagedriver.UploadPurger); ok {
		return &purgingBlobBase{BlobBase: b, purger: p}
	}
	return b
}

// Reader wraps BlobStore.Reader.
func (b *BlobBase) Reader(ctx context.Context, sha256 string, offset int64) (io.ReadCloser, error) {
	defer track(ctx, storageAction, b.Name(), "Reader")()

	rc, err := b.BlobStore.Reader(ctx, sha256, offset)
	return rc, setDriverName(b.Name(), err)
}

// Store wraps BlobStore.Store.
func (b *BlobBase) Store(ctx context.Context, r io.Reader, expected digest.Digest) (storagedriver.FileInfo, error) {
	defer track(ctx, storageAction, b.Name(), "Store")()

	fi, err := b.BlobStore.Store(ctx, r, expected)
	return fi, setDriverName(b.Name(), err)
}

// Exists wraps BlobStore.Exists.
func (b *BlobBase) Exists(ctx context.Context, sha256 string) (bool, error) {
	defer track(ctx, storageAction, b.Name(), "Exists")()

	ok, err := b.BlobStore.Exists(ctx, sha256)
	return ok, setDriverName(b.Name(), err)
}

// CreateAppendID wraps BlobStore.CreateAppendID.
func (b *BlobBase) CreateAppendID(ctx context.Context, owner string) (string, error) {
	defer track(ctx, storageAction, b.Name(), "CreateAppendID")()

	id, err := b.BlobStore.CreateAppendID(ctx, owner)
	return id, setDriverName(b.Name(), err)
}

// AppendOwner wraps BlobStore.AppendOwner.
func (b *BlobBase) AppendOwner(ctx context.Context, id string) (string, error) {
	defer track(ctx, storageAction, b.Name(), "AppendOwner")()

	owner, err := b.BlobStore.AppendOwner(ctx, id)
	return owner, setDriverName(b.Name(), err)
}

// Append wraps BlobStore.Append.
func (b *BlobBase) Append(ctx context.Context, id string, r io.Reader) (int64, error) {
	defer track(ctx, storageAction, b.Name(), "Append")()

	n, err := b.BlobStore.Append(ctx, id, r)
	return n, setDriverName(b.Name(), err)
}

// AppendSize wraps BlobStore.AppendSize.
func (b *BlobBase) AppendSize(ctx context.Context, id string) (int64, error) {
	defer track(ctx, storageAction, b.Name(), "AppendSize")()

	n, err := b.BlobStore.AppendSize(ctx, id)
	return n, setDriverName(b.Name(), err)
}

// FinishAppend wraps BlobStore.FinishAppend.
func (b *BlobBase) FinishAppend(ctx context.Context, id string, expected digest.Digest) (storagedriver.FileInfo, error) {
	defer track(ctx, storageAction, b.Name(), "FinishAppend")()

	fi, err := b.BlobStore.FinishAppend(ctx, id, expected)
	return fi, setDriverName(b.Name(), err)
}

// CancelAppend wraps BlobStore.CancelAppend.
func (b *BlobBase) CancelAppend(ctx context.Context, id string) error {
	defer track(ctx, storageAction, b.Name(), "CancelAppend")()

	return setDriverName(b.Name(), b.BlobStore.CancelAppend(ctx, id))
}

type purgingBlobBase struct {
	*BlobBase
	purger storagedriver.UploadPurger
}

// PurgeUploads wraps UploadPurger.PurgeUploads.
func (b *purgingBlobBase) PurgeUploads(ctx context.Context, olderThan time.Time) (int, error) {
	defer track(ctx, storageAction, b.Name(), "PurgeUploads")()

	n, err := b.purger.PurgeUploads(ctx, olderThan)
	return n, setDriverName(b.Name(), err)
}
