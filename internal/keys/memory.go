package keys

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"docvault/internal/crypto"
	"docvault/internal/docs"
)

// MemoryProvider is an in-memory implementation of the KeyProvider
// interface, useful for testing. Keys are lost on process exit. It is
// safe for concurrent use.
type MemoryProvider struct {
	keys map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryProvider creates a new in-memory key provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		keys: make(map[string][]byte),
	}
}

// GetOrCreateKey generates a fresh random data key and stores it under
// a new id. Callers zero their copy after use; the stored copy stays.
func (m *MemoryProvider) GetOrCreateKey(context.Context) (string, []byte, error) {
	key := make([]byte, crypto.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", nil, fmt.Errorf("generating data key: %w", err)
	}

	keyID := uuid.New().String()

	m.mu.Lock()
	m.keys[keyID] = append([]byte(nil), key...)
	m.mu.Unlock()

	return keyID, key, nil
}

// GetKey returns a copy of the key material for a previously issued id.
func (m *MemoryProvider) GetKey(_ context.Context, keyID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("key %s not found", keyID)
	}
	return append([]byte(nil), key...), nil
}

// Compile-time check that MemoryProvider implements docs.KeyProvider
var _ docs.KeyProvider = (*MemoryProvider)(nil)
