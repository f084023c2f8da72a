// Package inmemory provides node and blob drivers keeping everything in
// process memory. They are meant for tests and single-instance development
// setups: nothing survives a restart.
package inmemory

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/bkrepo/registry/registry/storage/driver/base"
	"github.com/bkrepo/registry/registry/storage/driver/factory"
	"github.com/opencontainers/go-digest"
)

const driverName = "inmemory"

func init() {
	factory.RegisterNodeDriver(driverName, &nodeDriverFactory{})
	factory.RegisterBlobDriver(driverName, &blobDriverFactory{})
}

type nodeDriverFactory struct{}

func (f *nodeDriverFactory) Create(parameters map[string]interface{}) (storagedriver.NodeDriver, error) {
	return NewNodes(), nil
}

type repoKey struct {
	projectID string
	name      string
}

// Nodes is a NodeDriver backed by maps.
type Nodes struct {
	*base.NodeBase
}

type nodes struct {
	mu    sync.RWMutex
	clock clock.Clock
	repos map[repoKey]*storagedriver.Repository
	files map[storagedriver.NodeKey]*storagedriver.Node
}

var _ storagedriver.NodeDriver = &Nodes{}

// NewNodes returns an empty in-memory node driver.
func NewNodes() *Nodes {
	return NewNodesWithClock(clock.New())
}

// NewNodesWithClock returns an empty in-memory node driver timestamping nodes
// with c.
func NewNodesWithClock(c clock.Clock) *Nodes {
	return &Nodes{NodeBase: base.NewNodeBase(&nodes{
		clock: c,
		repos: make(map[repoKey]*storagedriver.Repository),
		files: make(map[storagedriver.NodeKey]*storagedriver.Node),
	})}
}

func (d *nodes) Name() string {
	return driverName
}

func copyNode(n *storagedriver.Node) *storagedriver.Node {
	c := *n
	c.Metadata = make(map[string]string, len(n.Metadata))
	for k, v := range n.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

func dirPrefix(p string) string {
	if p == "/" {
		return p
	}
	return p + "/"
}

// hasDescendants must be called with d.mu held.
func (d *nodes) hasDescendants(key storagedriver.NodeKey) bool {
	prefix := dirPrefix(key.FullPath)
	for k := range d.files {
		if k.ProjectID == key.ProjectID && k.RepoName == key.RepoName && strings.HasPrefix(k.FullPath, prefix) {
			return true
		}
	}
	return false
}

func (d *nodes) Detail(ctx context.Context, key storagedriver.NodeKey) (*storagedriver.Node, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if n, ok := d.files[key]; ok {
		return copyNode(n), nil
	}
	if d.hasDescendants(key) {
		return &storagedriver.Node{NodeKey: key, Name: path.Base(key.FullPath), Folder: true}, nil
	}

	return nil, storagedriver.ErrNodeNotFound
}

func (d *nodes) Exists(ctx context.Context, key storagedriver.NodeKey) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.files[key]; ok {
		return true, nil
	}
	return d.hasDescendants(key), nil
}

func (d *nodes) Create(ctx context.Context, req storagedriver.CreateNodeRequest) (*storagedriver.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	existing, ok := d.files[req.NodeKey]
	if ok && !req.Overwrite {
		return nil, storagedriver.ErrNodeExists
	}

	n := &storagedriver.Node{
		NodeKey:   req.NodeKey,
		Name:      path.Base(req.FullPath),
		Size:      req.Size,
		Sha256:    req.Sha256,
		Metadata:  make(map[string]string, len(req.Metadata)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ok {
		n.CreatedAt = existing.CreatedAt
	}
	for k, v := range req.Metadata {
		n.Metadata[k] = v
	}
	d.files[req.NodeKey] = n

	return copyNode(n), nil
}

func (d *nodes) Copy(ctx context.Context, src, dst storagedriver.NodeKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.files[src]
	if !ok {
		return storagedriver.ErrNodeNotFound
	}

	now := d.clock.Now()
	c := copyNode(n)
	c.NodeKey = dst
	c.Name = path.Base(dst.FullPath)
	c.CreatedAt = now
	c.UpdatedAt = now
	d.files[dst] = c

	return nil
}

func (d *nodes) Rename(ctx context.Context, src, dst storagedriver.NodeKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.files[src]
	if !ok {
		return storagedriver.ErrNodeNotFound
	}

	delete(d.files, src)
	n.NodeKey = dst
	n.Name = path.Base(dst.FullPath)
	n.UpdatedAt = d.clock.Now()
	d.files[dst] = n

	return nil
}

func (d *nodes) Delete(ctx context.Context, key storagedriver.NodeKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	found := false
	if _, ok := d.files[key]; ok {
		delete(d.files, key)
		found = true
	}

	prefix := dirPrefix(key.FullPath)
	for k := range d.files {
		if k.ProjectID == key.ProjectID && k.RepoName == key.RepoName && strings.HasPrefix(k.FullPath, prefix) {
			delete(d.files, k)
			found = true
		}
	}

	if !found {
		return storagedriver.ErrNodeNotFound
	}
	return nil
}

func matches(n *storagedriver.Node, q storagedriver.Query) bool {
	if q.ProjectID != "" && n.ProjectID != q.ProjectID {
		return false
	}
	if q.RepoName != "" && n.RepoName != q.RepoName {
		return false
	}
	if q.PathPrefix != "" && !strings.HasPrefix(n.FullPath, dirPrefix(q.PathPrefix)) {
		return false
	}
	if q.Sha256 != "" && n.Sha256 != q.Sha256 {
		return false
	}
	if len(q.Names) > 0 {
		for _, name := range q.Names {
			if n.Name == name {
				return true
			}
		}
		return false
	}
	return true
}

func sortNodes(nn []storagedriver.Node) {
	sort.Slice(nn, func(i, j int) bool {
		a, b := nn[i], nn[j]
		if a.ProjectID != b.ProjectID {
			return a.ProjectID < b.ProjectID
		}
		if a.RepoName != b.RepoName {
			return a.RepoName < b.RepoName
		}
		return a.FullPath < b.FullPath
	})
}

func (d *nodes) Query(ctx context.Context, q storagedriver.Query) ([]storagedriver.Node, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []storagedriver.Node
	for _, n := range d.files {
		if matches(n, q) {
			out = append(out, *copyNode(n))
		}
	}
	sortNodes(out)

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (d *nodes) SaveMetadata(ctx context.Context, key storagedriver.NodeKey, md map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.files[key]
	if !ok {
		return storagedriver.ErrNodeNotFound
	}
	for k, v := range md {
		n.Metadata[k] = v
	}
	n.UpdatedAt = d.clock.Now()

	return nil
}

func (d *nodes) QueryMetadata(ctx context.Context, key storagedriver.NodeKey) (map[string]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n, ok := d.files[key]
	if !ok {
		return nil, storagedriver.ErrNodeNotFound
	}
	return copyNode(n).Metadata, nil
}

func (d *nodes) Repository(ctx context.Context, projectID, repoName string) (*storagedriver.Repository, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.repos[repoKey{projectID, repoName}]
	if !ok {
		return nil, storagedriver.ErrRepositoryNotFound
	}
	c := *r
	return &c, nil
}

func (d *nodes) CreateRepository(ctx context.Context, projectID, repoName string) (*storagedriver.Repository, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := repoKey{projectID, repoName}
	r, ok := d.repos[k]
	if !ok {
		r = &storagedriver.Repository{ProjectID: projectID, Name: repoName, CreatedAt: d.clock.Now()}
		d.repos[k] = r
	}
	c := *r
	return &c, nil
}

func (d *nodes) FindBlobGlobally(ctx context.Context, dgst digest.Digest) ([]storagedriver.Location, error) {
	q := storagedriver.Query{}
	if dgst.Algorithm() == digest.SHA256 {
		q.Sha256 = dgst.Encoded()
	} else {
		q.Names = []string{dgst.Encoded()}
	}

	nn, err := d.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	locations := make([]storagedriver.Location, 0, len(nn))
	for _, n := range nn {
		locations = append(locations, storagedriver.Location{NodeKey: n.NodeKey, Sha256: n.Sha256, Size: n.Size})
	}
	return locations, nil
}
