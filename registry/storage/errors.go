package storage

import (
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ErrRepoNotFound is returned when the project repository of an artifact
// does not exist.
type ErrRepoNotFound struct {
	ProjectID string
	RepoName  string
}

func (err ErrRepoNotFound) Error() string {
	return fmt.Sprintf("repository not found: %s/%s", err.ProjectID, err.RepoName)
}

// ErrNameUnknown is returned when a listing yields no entries.
type ErrNameUnknown struct {
	Name string
}

func (err ErrNameUnknown) Error() string {
	return fmt.Sprintf("repository name not known to registry: %s", err.Name)
}

// ErrManifestUnknown is returned when a manifest cannot be resolved.
type ErrManifestUnknown struct {
	Name      string
	Reference string
}

func (err ErrManifestUnknown) Error() string {
	return fmt.Sprintf("unknown manifest name=%s reference=%s", err.Name, err.Reference)
}

// ErrBlobUnknown is returned when a blob cannot be found.
type ErrBlobUnknown struct {
	Digest digest.Digest
}

func (err ErrBlobUnknown) Error() string {
	return fmt.Sprintf("unknown blob %s", err.Digest)
}

// ErrBlobUploadUnknown is returned when an upload session does not exist.
type ErrBlobUploadUnknown struct {
	ID string
}

func (err ErrBlobUploadUnknown) Error() string {
	return fmt.Sprintf("unknown blob upload %s", err.ID)
}

// ErrMalformedManifest is returned when a manifest payload cannot be
// decoded.
type ErrMalformedManifest struct {
	Reason error
}

func (err ErrMalformedManifest) Error() string {
	return err.Reason.Error()
}

func (err ErrMalformedManifest) Unwrap() error {
	return err.Reason
}

// ErrInvalidDigest is returned when a digest cannot be parsed or does not
// match the content it addresses.
type ErrInvalidDigest struct {
	Digest string
	Reason error
}

func (err ErrInvalidDigest) Error() string {
	return fmt.Sprintf("invalid digest %q: %v", err.Digest, err.Reason)
}

func (err ErrInvalidDigest) Unwrap() error {
	return err.Reason
}

// ErrSyncManifestFailed is returned when blobs referenced by a manifest
// could not be made available next to it. The manifest is not stored.
type ErrSyncManifestFailed struct {
	Missing []digest.Digest
	Err     error
}

func (err ErrSyncManifestFailed) Error() string {
	missing := make([]string, 0, len(err.Missing))
	for _, d := range err.Missing {
		missing = append(missing, d.String())
	}
	return fmt.Sprintf("failed to sync manifest blobs [%s]: %v", strings.Join(missing, ", "), err.Err)
}

func (err ErrSyncManifestFailed) Unwrap() error {
	return err.Err
}

// ErrManifestListReferenceUnknown is returned when a manifest list references
// manifests, or blobs for buildx cache indexes, that cannot be found.
type ErrManifestListReferenceUnknown struct {
	Digests []digest.Digest
	Err     error
}

func (err ErrManifestListReferenceUnknown) Error() string {
	return fmt.Sprintf("manifest list references unknown content: %v", err.Err)
}

func (err ErrManifestListReferenceUnknown) Unwrap() error {
	return err.Err
}

// ErrFileSaveFailed is returned when a node or its content cannot be
// written.
type ErrFileSaveFailed struct {
	Path string
	Err  error
}

func (err ErrFileSaveFailed) Error() string {
	return fmt.Sprintf("failed to save %s: %v", err.Path, err.Err)
}

func (err ErrFileSaveFailed) Unwrap() error {
	return err.Err
}

// ErrMoveFailed is returned when a staged blob cannot be moved next to its
// manifest.
type ErrMoveFailed struct {
	Src string
	Dst string
	Err error
}

func (err ErrMoveFailed) Error() string {
	return fmt.Sprintf("failed to move %s to %s: %v", err.Src, err.Dst, err.Err)
}

func (err ErrMoveFailed) Unwrap() error {
	return err.Err
}

// ErrUnauthorized is returned when the permission checker denies an
// operation.
type ErrUnauthorized struct {
	Action    string
	ProjectID string
	RepoName  string
}

func (err ErrUnauthorized) Error() string {
	return fmt.Sprintf("%s access denied on %s/%s", err.Action, err.ProjectID, err.RepoName)
}
