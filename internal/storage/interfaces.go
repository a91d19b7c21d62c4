// Package storage defines the boundary to the byte stores holding document
// content. The archive core keeps metadata and checksums only; the raw bytes
// live behind a Backend addressed by a location-relative path.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrContentNotFound indicates no content exists at the given path.
var ErrContentNotFound = errors.New("stored content not found")

// Backend defines the interface for document byte stores.
// Implementations include the local filesystem and S3-compatible stores.
type Backend interface {
	// Store writes content to the given location-relative path and returns
	// the SHA-256 checksum and the number of bytes written. The write is
	// atomic: a failed Store leaves nothing at the path.
	Store(ctx context.Context, path string, reader io.Reader) (checksum string, size int64, err error)

	// Retrieve opens the content at the given path.
	// Returns ErrContentNotFound if nothing is stored there.
	// The caller must close the returned reader.
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the content at the given path.
	// Returns ErrContentNotFound if nothing is stored there.
	Delete(ctx context.Context, path string) error

	// Exists checks whether content is stored at the given path.
	Exists(ctx context.Context, path string) (bool, error)
}
