// Package driver defines the collaborators the registry core is built on: a
// node store holding the tree of artifacts per project and repository, a
// metadata store attached to nodes, the repository catalog and a
// content-addressed blob store supporting append sessions.
package driver

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
)

// NodeKey addresses a node inside a repository of a project.
type NodeKey struct {
	ProjectID string
	RepoName  string
	FullPath  string
}

// Key builds a NodeKey, cleaning fullPath into an absolute path.
func Key(projectID, repoName, fullPath string) NodeKey {
	return NodeKey{ProjectID: projectID, RepoName: repoName, FullPath: CleanPath(fullPath)}
}

func (k NodeKey) String() string {
	return k.ProjectID + "/" + k.RepoName + k.FullPath
}

// CleanPath returns the absolute, slash separated form of p.
func CleanPath(p string) string {
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

// Node is a file in the node tree. Directories are implicit: a folder node is
// only ever returned by Detail, for a path that has descendants.
type Node struct {
	NodeKey

	Name      string
	Folder    bool
	Size      int64
	Sha256    string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateNodeRequest describes a file node pointing at a stored blob.
type CreateNodeRequest struct {
	NodeKey

	Size      int64
	Sha256    string
	Metadata  map[string]string
	Overwrite bool
}

// Query selects file nodes. Empty fields match everything; an empty
// ProjectID searches every project.
type Query struct {
	ProjectID string
	RepoName  string
	// PathPrefix restricts results to the subtree of a directory.
	PathPrefix string
	// Names restricts results to nodes with one of these names.
	Names  []string
	Sha256 string
	Limit  int
}

// NodeStore manages the node tree.
type NodeStore interface {
	// Detail returns the node at key. ErrNodeNotFound when neither a file
	// nor a directory exists there.
	Detail(ctx context.Context, key NodeKey) (*Node, error)
	// Exists reports whether a file or directory exists at key.
	Exists(ctx context.Context, key NodeKey) (bool, error)
	// Create adds a file node. ErrNodeExists when a node is present and
	// Overwrite is false.
	Create(ctx context.Context, req CreateNodeRequest) (*Node, error)
	// Copy creates dst pointing at the blob of src, overwriting dst.
	Copy(ctx context.Context, src, dst NodeKey) error
	// Rename moves the file node src to dst, overwriting dst.
	Rename(ctx context.Context, src, dst NodeKey) error
	// Delete removes the file at key or the whole subtree of a directory.
	Delete(ctx context.Context, key NodeKey) error
	// Query returns the file nodes matching q ordered by full path.
	Query(ctx context.Context, q Query) ([]Node, error)
}

// MetadataStore attaches key-value metadata to nodes.
type MetadataStore interface {
	// SaveMetadata merges md into the metadata of the node at key.
	SaveMetadata(ctx context.Context, key NodeKey, md map[string]string) error
	// QueryMetadata returns the metadata of the node at key.
	QueryMetadata(ctx context.Context, key NodeKey) (map[string]string, error)
}

// Repository is a repository of a project hosting docker images.
type Repository struct {
	ProjectID string
	Name      string
	CreatedAt time.Time
}

// RepositoryStore resolves repositories.
type RepositoryStore interface {
	// Repository returns ErrRepositoryNotFound when the pair is unknown.
	Repository(ctx context.Context, projectID, repoName string) (*Repository, error)
	// CreateRepository creates a repository, returning the existing one when
	// it is already present.
	CreateRepository(ctx context.Context, projectID, repoName string) (*Repository, error)
}

// Location is a node holding a blob, found by a global search.
type Location struct {
	NodeKey

	Sha256 string
	Size   int64
}

// BlobFinder searches blobs across every project and repository.
type BlobFinder interface {
	// FindBlobGlobally returns the nodes holding dgst, ordered by key. sha256
	// digests are matched against node checksums, other algorithms against
	// node names.
	FindBlobGlobally(ctx context.Context, dgst digest.Digest) ([]Location, error)
}

// NodeDriver is the complete node-side collaborator.
type NodeDriver interface {
	// Name returns the human-readable "name" of the driver, useful in error
	// messages and logging.
	Name() string

	NodeStore
	MetadataStore
	RepositoryStore
	BlobFinder
}

// FileInfo describes stored blob bytes.
type FileInfo struct {
	Sha256 string
	Size   int64
}

// BlobStore stores blob bytes keyed by their sha256 and supports append
// sessions for resumable uploads.
type BlobStore interface {
	// Name returns the human-readable "name" of the driver.
	Name() string

	// Reader opens the blob keyed by sha256 at offset.
	Reader(ctx context.Context, sha256 string, offset int64) (io.ReadCloser, error)
	// Store writes r. When expected is set, the content is verified against
	// it and ErrDigestMismatch is returned on mismatch without keeping the
	// bytes.
	Store(ctx context.Context, r io.Reader, expected digest.Digest) (FileInfo, error)
	// Exists reports whether the blob keyed by sha256 is present.
	Exists(ctx context.Context, sha256 string) (bool, error)

	// CreateAppendID opens a new append session on behalf of owner.
	CreateAppendID(ctx context.Context, owner string) (string, error)
	// AppendOwner returns the owner the session was opened for.
	AppendOwner(ctx context.Context, id string) (string, error)
	// Append adds r to the session and returns the cumulative size.
	Append(ctx context.Context, id string, r io.Reader) (int64, error)
	// AppendSize returns the number of bytes appended so far.
	AppendSize(ctx context.Context, id string) (int64, error)
	// FinishAppend commits the session into the blob store, verifying the
	// content against expected when set. The session is gone afterwards,
	// whatever the outcome.
	FinishAppend(ctx context.Context, id string, expected digest.Digest) (FileInfo, error)
	// CancelAppend discards the session.
	CancelAppend(ctx context.Context, id string) error
}

// UploadPurger is implemented by blob stores able to expire abandoned append
// sessions.
type UploadPurger interface {
	// PurgeUploads deletes sessions last written before olderThan and
	// returns how many were removed.
	PurgeUploads(ctx context.Context, olderThan time.Time) (int, error)
}
