package driver

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeNotFound is returned when no node exists at a key.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNodeExists is returned when creating a node over an existing one
	// without overwrite.
	ErrNodeExists = errors.New("node already exists")
	// ErrRepositoryNotFound is returned for an unknown project repository.
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrBlobNotFound is returned when blob bytes are missing.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrAppendIDNotFound is returned for an unknown append session.
	ErrAppendIDNotFound = errors.New("append session not found")
	// ErrUnsupportedMethod may be returned by drivers lacking an optional
	// operation.
	ErrUnsupportedMethod = errors.New("unsupported method")
)

// ErrDigestMismatch is returned when stored content does not hash to the
// expected digest.
type ErrDigestMismatch struct {
	Expected string
	Actual   string
}

func (err ErrDigestMismatch) Error() string {
	return fmt.Sprintf("digest mismatch: expected %s, got %s", err.Expected, err.Actual)
}

// Error is a driver error wrapping the failure of a named driver.
type Error struct {
	DriverName string
	Enclosed   error
}

func (err Error) Error() string {
	return fmt.Sprintf("%s: %v", err.DriverName, err.Enclosed)
}

// Unwrap exposes the enclosed error to errors.Is and errors.As.
func (err Error) Unwrap() error {
	return err.Enclosed
}
