package docs

import (
	"context"
	"time"

	"docvault/internal/model"
)

// MetadataStore is the relational store for document records. It is
// owned exclusively by this service. Lookup methods return (nil, nil)
// when no matching record exists.
type MetadataStore interface {
	// CreateVersion atomically assigns the next version for the
	// record's (OwnerID, DocumentType) lineage, transitions the prior
	// ACTIVE version (if any) to SUPERSEDED, and inserts the record as
	// ACTIVE. rec.Version is set on success. Concurrent calls for the
	// same lineage are serialized by a unique constraint on
	// (owner_id, document_type, version); a lost race returns
	// ErrVersionConflict and the caller retries.
	CreateVersion(ctx context.Context, rec *model.DocumentRecord) error

	// GetDocument returns a record by its id.
	GetDocument(ctx context.Context, id string) (*model.DocumentRecord, error)

	// GetCurrentActive returns the ACTIVE record for a lineage.
	GetCurrentActive(ctx context.Context, ownerID, documentType string) (*model.DocumentRecord, error)

	// GetVersion returns a specific version of a lineage.
	GetVersion(ctx context.Context, ownerID, documentType string, version int64) (*model.DocumentRecord, error)

	// ListVersions returns all non-purged versions of a lineage,
	// newest first.
	ListVersions(ctx context.Context, ownerID, documentType string) ([]*model.DocumentRecord, error)

	// SoftDelete transitions a record to SOFT_DELETED with the given
	// timestamps. The record keeps its blob until the sweep purges it.
	SoftDelete(ctx context.Context, id string, deletedAt, purgeEligibleAt time.Time) error

	// MarkPurged transitions a record to the terminal PURGED state.
	// The metadata row is retained for audit.
	MarkPurged(ctx context.Context, id string) error

	// ListPurgeEligible returns SOFT_DELETED records whose
	// purgeEligibleAt has passed as of the given time.
	ListPurgeEligible(ctx context.Context, asOf time.Time) ([]*model.DocumentRecord, error)

	// ListVersionsOverCap returns SUPERSEDED records that have at least
	// maxRetained newer non-purged versions in their lineage. The
	// ACTIVE version is never returned.
	ListVersionsOverCap(ctx context.Context, maxRetained int) ([]*model.DocumentRecord, error)

	// UpdateOCR sets the OCR status and result for a record. Reapplying
	// the same result is harmless; at-least-once delivery from the OCR
	// queue is expected.
	UpdateOCR(ctx context.Context, id string, status model.OCRStatus, fields *model.OCRFields) error

	// RecordOrphan registers a blob whose compensating delete failed so
	// the sweep can reclaim it later.
	RecordOrphan(ctx context.Context, storagePath, reason string, recordedAt time.Time) error

	// ListOrphans returns all recorded orphan blobs.
	ListOrphans(ctx context.Context) ([]*model.OrphanBlob, error)

	// DeleteOrphan removes an orphan entry after its blob is deleted.
	DeleteOrphan(ctx context.Context, storagePath string) error

	// Close closes the underlying connection.
	Close() error
}
