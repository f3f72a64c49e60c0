package docs

import "context"

// KeyProvider issues and retrieves per-document data keys by opaque id.
// The service never derives or persists raw key material itself; it
// holds a key in memory only for the duration of one operation and
// zeroes it afterwards.
type KeyProvider interface {
	// GetOrCreateKey returns a fresh data key and its id. One key is
	// issued per document version.
	GetOrCreateKey(ctx context.Context) (keyID string, key []byte, err error)

	// GetKey returns the key material for a previously issued id.
	// Returns an error wrapping ErrKeyUnavailable when the key cannot
	// be supplied.
	GetKey(ctx context.Context, keyID string) ([]byte, error)
}
