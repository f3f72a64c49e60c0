package testutil

import (
	"testing"

	"docvault/internal/database"
	"docvault/internal/docs"
)

// NewTestDatabase creates a new in-memory SQLite store with schema applied.
// The store is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) docs.MetadataStore {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if _, err := sqlDB.Exec(database.Schema); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	store := database.NewSQLiteStoreFromDB(sqlDB)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
