package docs

import (
	"context"
	"io"
)

// ObjectStore is durable blob storage addressed by an opaque path.
// Operations stream through io.Reader/io.Writer to support large blobs
// without loading them entirely into memory.
type ObjectStore interface {
	// Put stores the blob read from r at path. size is the number of
	// bytes that will be read from r.
	Put(ctx context.Context, path string, r io.Reader, size int64) error

	// Get writes the blob at path to w. Returns ErrBlobNotFound when no
	// blob exists at path.
	Get(ctx context.Context, path string, w io.Writer) error

	// Delete removes the blob at path. Deleting a missing blob is not
	// an error.
	Delete(ctx context.Context, path string) error

	// ValidateSetup verifies the store is accessible and configured.
	ValidateSetup(ctx context.Context) error
}
