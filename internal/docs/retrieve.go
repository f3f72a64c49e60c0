package docs

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"docvault/internal/crypto"
	"docvault/internal/model"
)

// Retrieve returns a document's metadata and decrypted content by id.
// Purged records fail with ErrPurged, distinct from ErrNotFound.
func (s *Service) Retrieve(ctx context.Context, documentID string) (*model.DocumentRecord, []byte, error) {
	rec, err := callFor(ctx, func(ctx context.Context) (*model.DocumentRecord, error) {
		return s.store.GetDocument(ctx, documentID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("looking up document: %w: %w", ErrUnavailable, err)
	}
	if rec == nil {
		return nil, nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	return s.fetch(ctx, rec)
}

// RetrieveCurrent returns the current ACTIVE version for a lineage.
// There is no fallback: if the active version was deleted, callers get
// ErrNotFound until a new version is uploaded.
func (s *Service) RetrieveCurrent(ctx context.Context, ownerID, documentType string) (*model.DocumentRecord, []byte, error) {
	rec, err := callFor(ctx, func(ctx context.Context) (*model.DocumentRecord, error) {
		return s.store.GetCurrentActive(ctx, ownerID, documentType)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("looking up current document: %w: %w", ErrUnavailable, err)
	}
	if rec == nil {
		return nil, nil, fmt.Errorf("no active document for %s/%s: %w", ownerID, documentType, ErrNotFound)
	}
	return s.fetch(ctx, rec)
}

// RetrieveVersion returns a specific historical version for a lineage.
func (s *Service) RetrieveVersion(ctx context.Context, ownerID, documentType string, version int64) (*model.DocumentRecord, []byte, error) {
	rec, err := callFor(ctx, func(ctx context.Context) (*model.DocumentRecord, error) {
		return s.store.GetVersion(ctx, ownerID, documentType, version)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("looking up document version: %w: %w", ErrUnavailable, err)
	}
	if rec == nil {
		return nil, nil, fmt.Errorf("version %d of %s/%s: %w", version, ownerID, documentType, ErrNotFound)
	}
	return s.fetch(ctx, rec)
}

// GetRecord returns metadata only, without touching the object store.
func (s *Service) GetRecord(ctx context.Context, documentID string) (*model.DocumentRecord, error) {
	rec, err := callFor(ctx, func(ctx context.Context) (*model.DocumentRecord, error) {
		return s.store.GetDocument(ctx, documentID)
	})
	if err != nil {
		return nil, fmt.Errorf("looking up document: %w: %w", ErrUnavailable, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	return rec, nil
}

// ListVersions returns all non-purged versions for a lineage, newest
// first, for audit and history views.
func (s *Service) ListVersions(ctx context.Context, ownerID, documentType string) ([]*model.DocumentRecord, error) {
	recs, err := callFor(ctx, func(ctx context.Context) ([]*model.DocumentRecord, error) {
		return s.store.ListVersions(ctx, ownerID, documentType)
	})
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w: %w", ErrUnavailable, err)
	}
	return recs, nil
}

// fetch loads, decrypts, and verifies a record's content.
//
// The checksum verification after decryption is deliberate
// defense-in-depth on top of the AEAD tag: the two failures carry
// different diagnostics (auth fault vs. integrity fault) and are logged
// as security-relevant events. Neither ever returns plaintext.
func (s *Service) fetch(ctx context.Context, rec *model.DocumentRecord) (*model.DocumentRecord, []byte, error) {
	if rec.Status == model.StatusPurged {
		return nil, nil, fmt.Errorf("document %s: %w", rec.ID, ErrPurged)
	}

	var buf bytes.Buffer
	err := call(ctx, func(ctx context.Context) error {
		// A failed attempt may have written partial data.
		buf.Reset()
		return s.blobs.Get(ctx, rec.StoragePath, &buf)
	}, ErrBlobNotFound)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			// Metadata exists but the blob is gone: data loss, not a
			// routine miss.
			s.logger.Error("consistency fault: blob missing for existing metadata",
				"document_id", rec.ID,
				"storage_path", rec.StoragePath,
			)
			return nil, nil, fmt.Errorf("blob for document %s: %w: %w", rec.ID, ErrStorageRead, err)
		}
		return nil, nil, fmt.Errorf("fetching blob: %w: %w", ErrUnavailable, err)
	}

	key, err := callFor(ctx, func(ctx context.Context) ([]byte, error) {
		return s.keys.GetKey(ctx, rec.EncryptionKeyID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fetching key %s: %w: %w", rec.EncryptionKeyID, ErrKeyUnavailable, err)
	}
	defer crypto.ZeroKey(key)

	plaintext, err := s.engine.Decrypt(buf.Bytes(), key)
	if err != nil {
		s.logger.Error("security fault: ciphertext failed authentication",
			"document_id", rec.ID,
			"storage_path", rec.StoragePath,
		)
		return nil, nil, fmt.Errorf("document %s: %w", rec.ID, ErrDecryptionFailed)
	}

	if !crypto.Verify(plaintext, rec.Checksum) {
		s.logger.Error("security fault: plaintext checksum mismatch",
			"document_id", rec.ID,
			"storage_path", rec.StoragePath,
		)
		return nil, nil, fmt.Errorf("document %s: %w", rec.ID, ErrIntegrityCheckFailed)
	}

	s.logger.Info("document retrieved", "document_id", rec.ID, "version", rec.Version)
	return rec, plaintext, nil
}
