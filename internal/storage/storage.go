package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound indicates no file exists for the given storage key.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidKey indicates a key that is absolute, empty, or escapes the root.
	ErrInvalidKey = errors.New("invalid storage key")
)

// FileStorage persists uploaded file content addressed by opaque storage keys.
// A key is a relative path returned by Save; callers persist it as metadata
// and pass it back to Open, Delete and Exists.
type FileStorage interface {
	// Save writes the stream under a key derived from entityID and filename
	// and returns that key. The written file becomes visible atomically:
	// concurrent readers see either the previous content or the complete new
	// content, never a partial write.
	Save(ctx context.Context, entityID, filename string, r io.Reader) (string, error)

	// Open returns the stored content for sequential reading. The caller
	// owns the returned ReadCloser. Returns ErrNotFound (wrapping the key)
	// if nothing is stored under it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the stored content. Deleting a key with no backing
	// file is a no-op.
	Delete(ctx context.Context, key string) error

	// Exists reports whether content is stored under the key. Malformed
	// keys report false.
	Exists(key string) bool
}
