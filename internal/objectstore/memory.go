package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"docvault/internal/docs"
)

// MemoryStore is an in-memory implementation of the ObjectStore
// interface, useful for testing. It is safe for concurrent use.
type MemoryStore struct {
	blobs map[string][]byte
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
	}
}

// Put stores the blob read from r at path.
func (m *MemoryStore) Put(_ context.Context, path string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[path] = data
	return nil
}

// Get retrieves the blob at path and writes it to w.
func (m *MemoryStore) Get(_ context.Context, path string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, docs.ErrBlobNotFound)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}

	return nil
}

// Delete removes the blob at path. Deleting a missing blob is a no-op.
func (m *MemoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, path)
	return nil
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup(context.Context) error {
	return nil
}

// Corrupt overwrites a stored blob in place. Test hook for exercising
// tamper detection downstream.
func (m *MemoryStore) Corrupt(path string, mutate func([]byte) []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.blobs[path]
	if !ok {
		return false
	}
	m.blobs[path] = mutate(data)
	return true
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Compile-time check that MemoryStore implements docs.ObjectStore
var _ docs.ObjectStore = (*MemoryStore)(nil)
