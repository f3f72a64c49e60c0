// Package database provides the SQLite-backed metadata store for
// document records.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"docvault/internal/database/migrations"
	"docvault/internal/docs"
	"docvault/internal/model"
)

// SQLiteStore implements the MetadataStore interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite metadata store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteStore{
		db:   db,
		path: path,
	}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:   db,
		path: "",
	}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// A single connection keeps :memory: databases coherent (each pool
	// connection would otherwise get its own empty database) and
	// serializes write transactions.
	db.SetMaxOpenConns(1)

	return db, nil
}

const documentColumns = `id, owner_id, document_type, storage_path, encryption_key_id,
	checksum, size_bytes, content_type, version, status, ocr_status, ocr_result,
	uploaded_at, deleted_at, purge_eligible_at`

// CreateVersion atomically assigns the next version for the record's
// lineage, supersedes the prior ACTIVE version, and inserts the record.
// A concurrent writer that claims the same version first causes a unique
// constraint violation, surfaced as ErrVersionConflict.
func (s *SQLiteStore) CreateVersion(ctx context.Context, rec *model.DocumentRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var maxVersion int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM documents WHERE owner_id = ? AND document_type = ?`,
		rec.OwnerID, rec.DocumentType,
	).Scan(&maxVersion)
	if err != nil {
		return fmt.Errorf("reading current version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET status = ? WHERE owner_id = ? AND document_type = ? AND status = ?`,
		model.StatusSuperseded, rec.OwnerID, rec.DocumentType, model.StatusActive,
	)
	if err != nil {
		return fmt.Errorf("superseding active version: %w", err)
	}

	rec.Version = maxVersion + 1

	ocrResult, err := marshalOCRResult(rec.OCRResult)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.DocumentType, rec.StoragePath, rec.EncryptionKeyID,
		rec.Checksum, rec.SizeBytes, rec.ContentType, rec.Version, rec.Status,
		rec.OCRStatus, ocrResult, rec.UploadedAt, nullTime(rec.DeletedAt), nullTime(rec.PurgeEligibleAt),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("version %d of %s/%s already claimed: %w",
				rec.Version, rec.OwnerID, rec.DocumentType, docs.ErrVersionConflict)
		}
		return fmt.Errorf("inserting document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	rec, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding document by id: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) GetCurrentActive(ctx context.Context, ownerID, documentType string) (*model.DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE owner_id = ? AND document_type = ? AND status = ?`,
		ownerID, documentType, model.StatusActive)
	rec, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding active document: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) GetVersion(ctx context.Context, ownerID, documentType string, version int64) (*model.DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE owner_id = ? AND document_type = ? AND version = ?`,
		ownerID, documentType, version)
	rec, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding document version: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListVersions(ctx context.Context, ownerID, documentType string) ([]*model.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE owner_id = ? AND document_type = ? AND status != ?
		 ORDER BY version DESC`,
		ownerID, documentType, model.StatusPurged)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func (s *SQLiteStore) SoftDelete(ctx context.Context, id string, deletedAt, purgeEligibleAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, deleted_at = ?, purge_eligible_at = ? WHERE id = ?`,
		model.StatusSoftDeleted, deletedAt, purgeEligibleAt, id)
	if err != nil {
		return fmt.Errorf("soft deleting document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkPurged(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ? WHERE id = ?`,
		model.StatusPurged, id)
	if err != nil {
		return fmt.Errorf("marking document purged: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListPurgeEligible(ctx context.Context, asOf time.Time) ([]*model.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE status = ? AND purge_eligible_at <= ?`,
		model.StatusSoftDeleted, asOf)
	if err != nil {
		return nil, fmt.Errorf("listing purge-eligible documents: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func (s *SQLiteStore) ListVersionsOverCap(ctx context.Context, maxRetained int) ([]*model.DocumentRecord, error) {
	// A SUPERSEDED version is over the cap when at least maxRetained
	// newer non-purged versions exist in its lineage.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents d
		 WHERE d.status = ?
		 AND (SELECT COUNT(*) FROM documents n
		      WHERE n.owner_id = d.owner_id
		      AND n.document_type = d.document_type
		      AND n.version > d.version
		      AND n.status != ?) >= ?`,
		model.StatusSuperseded, model.StatusPurged, maxRetained)
	if err != nil {
		return nil, fmt.Errorf("listing over-cap versions: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func (s *SQLiteStore) UpdateOCR(ctx context.Context, id string, status model.OCRStatus, fields *model.OCRFields) error {
	ocrResult, err := marshalOCRResult(fields)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE documents SET ocr_status = ?, ocr_result = ? WHERE id = ?`,
		status, ocrResult, id)
	if err != nil {
		return fmt.Errorf("updating ocr result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordOrphan(ctx context.Context, storagePath, reason string, recordedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orphan_blobs (storage_path, reason, recorded_at) VALUES (?, ?, ?)
		 ON CONFLICT (storage_path) DO UPDATE SET reason = excluded.reason`,
		storagePath, reason, recordedAt)
	if err != nil {
		return fmt.Errorf("recording orphan blob: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListOrphans(ctx context.Context) ([]*model.OrphanBlob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT storage_path, reason, recorded_at FROM orphan_blobs`)
	if err != nil {
		return nil, fmt.Errorf("listing orphan blobs: %w", err)
	}
	defer rows.Close()

	var orphans []*model.OrphanBlob
	for rows.Next() {
		var o model.OrphanBlob
		if err := rows.Scan(&o.StoragePath, &o.Reason, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning orphan blob: %w", err)
		}
		orphans = append(orphans, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orphan blobs: %w", err)
	}
	return orphans, nil
}

func (s *SQLiteStore) DeleteOrphan(ctx context.Context, storagePath string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM orphan_blobs WHERE storage_path = ?`, storagePath)
	if err != nil {
		return fmt.Errorf("deleting orphan blob: %w", err)
	}
	return nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the database schema to the latest version.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*model.DocumentRecord, error) {
	var rec model.DocumentRecord
	var ocrResult sql.NullString
	var deletedAt, purgeEligibleAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.DocumentType, &rec.StoragePath, &rec.EncryptionKeyID,
		&rec.Checksum, &rec.SizeBytes, &rec.ContentType, &rec.Version, &rec.Status,
		&rec.OCRStatus, &ocrResult, &rec.UploadedAt, &deletedAt, &purgeEligibleAt,
	)
	if err != nil {
		return nil, err
	}

	if ocrResult.Valid {
		var fields model.OCRFields
		if err := json.Unmarshal([]byte(ocrResult.String), &fields); err != nil {
			return nil, fmt.Errorf("decoding ocr result: %w", err)
		}
		rec.OCRResult = &fields
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	if purgeEligibleAt.Valid {
		t := purgeEligibleAt.Time
		rec.PurgeEligibleAt = &t
	}

	return &rec, nil
}

func collectDocuments(rows *sql.Rows) ([]*model.DocumentRecord, error) {
	var recs []*model.DocumentRecord
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return recs, nil
}

func marshalOCRResult(fields *model.OCRFields) (sql.NullString, error) {
	if fields == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding ocr result: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time check that SQLiteStore implements docs.MetadataStore
var _ docs.MetadataStore = (*SQLiteStore)(nil)
