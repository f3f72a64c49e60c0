// Package docs implements the document lifecycle: encrypted upload,
// retrieval with integrity verification, soft deletion, and the
// retention sweep. It orchestrates the metadata store, object store,
// key provider, encryption engine, and OCR queue, and is the sole
// boundary translating their failures into the caller-facing error
// taxonomy.
package docs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"docvault/internal/crypto"
	"docvault/internal/model"
)

// versionRetries bounds retry-on-conflict for version assignment.
const versionRetries = 5

// Limits are the upload validation parameters.
type Limits struct {
	// MaxSizeBytes rejects larger payloads before any side effect.
	MaxSizeBytes int64

	// AllowedContentTypes is the MIME allow-list for uploads.
	AllowedContentTypes []string

	// StoragePrefix namespaces generated object store paths.
	StoragePrefix string
}

// Service coordinates all components to perform document operations.
// It is safe for concurrent use; operations on distinct documents never
// block each other.
type Service struct {
	store  MetadataStore
	blobs  ObjectStore
	keys   KeyProvider
	engine crypto.Engine
	queue  OCRQueue
	policy Policy
	limits Limits
	logger Logger
	clock  Clock
	idgen  IDGenerator
}

// NewService creates a Service with the provided dependencies.
// queue may be nil, in which case uploads complete with ocrStatus FAILED
// rather than PENDING.
func NewService(store MetadataStore, blobs ObjectStore, keys KeyProvider, queue OCRQueue, policy Policy, limits Limits, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		store:  store,
		blobs:  blobs,
		keys:   keys,
		queue:  queue,
		policy: policy,
		limits: limits,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
	}
}

// Upload validates, encrypts, and stores a new document version.
//
// The blob is written before the metadata row so a ciphertext blob is
// never referenced by a committed row that cannot be served. If the
// metadata write fails after the blob write, the blob is deleted as a
// compensating action; if that delete fails too, the orphan is recorded
// for the sweep rather than leaked silently.
func (s *Service) Upload(ctx context.Context, ownerID, documentType string, content io.Reader, contentType string) (*model.DocumentRecord, error) {
	if ownerID == "" {
		return nil, ErrMissingOwner
	}
	if !model.IsKnownDocumentType(documentType) {
		return nil, fmt.Errorf("document type %q: %w", documentType, ErrUnknownDocumentType)
	}
	if !s.contentTypeAllowed(contentType) {
		return nil, fmt.Errorf("content type %q: %w", contentType, ErrUnsupportedMediaType)
	}

	// Read at most one byte past the limit so oversized payloads are
	// rejected without buffering the whole stream.
	plaintext, err := io.ReadAll(io.LimitReader(content, s.limits.MaxSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(plaintext)) > s.limits.MaxSizeBytes {
		return nil, fmt.Errorf("payload exceeds %d bytes: %w", s.limits.MaxSizeBytes, ErrPayloadTooLarge)
	}

	checksum := crypto.Checksum(plaintext)

	var keyID string
	var key []byte
	err = call(ctx, func(ctx context.Context) error {
		var err error
		keyID, key, err = s.keys.GetOrCreateKey(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("requesting data key: %w: %w", ErrKeyUnavailable, err)
	}
	defer crypto.ZeroKey(key)

	blob, err := s.engine.Encrypt(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("encrypting content: %w", err)
	}

	storagePath := path.Join(s.limits.StoragePrefix, s.idgen.New())
	err = call(ctx, func(ctx context.Context) error {
		return s.blobs.Put(ctx, storagePath, bytes.NewReader(blob), int64(len(blob)))
	})
	if err != nil {
		return nil, fmt.Errorf("writing blob: %w: %w", ErrStorageWrite, err)
	}

	rec := &model.DocumentRecord{
		ID:              s.idgen.New(),
		OwnerID:         ownerID,
		DocumentType:    documentType,
		StoragePath:     storagePath,
		EncryptionKeyID: keyID,
		Checksum:        checksum,
		SizeBytes:       int64(len(plaintext)),
		ContentType:     contentType,
		Status:          model.StatusActive,
		OCRStatus:       model.OCRPending,
		UploadedAt:      s.clock.Now().UTC(),
	}

	if err := s.createVersionWithRetry(ctx, rec); err != nil {
		s.compensateBlob(ctx, storagePath, err)
		return nil, fmt.Errorf("recording document metadata: %w: %w", ErrUnavailable, err)
	}

	s.enqueueOCR(ctx, rec, plaintext, contentType)

	s.logger.Info("document uploaded",
		"document_id", rec.ID,
		"owner_id", ownerID,
		"document_type", documentType,
		"version", rec.Version,
		"size_bytes", rec.SizeBytes,
	)
	return rec, nil
}

// createVersionWithRetry serializes version assignment per lineage.
// The store enforces uniqueness on (owner, type, version); a lost race
// surfaces as ErrVersionConflict and is retried with a fresh read after
// a short backoff. Transient store failures are retried by call before
// they count against the conflict budget.
func (s *Service) createVersionWithRetry(ctx context.Context, rec *model.DocumentRecord) error {
	var err error
	for attempt := 0; attempt < versionRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * callBackoff)
		}
		err = call(ctx, func(ctx context.Context) error {
			return s.store.CreateVersion(ctx, rec)
		}, ErrVersionConflict)
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		s.logger.Debug("version conflict, retrying",
			"owner_id", rec.OwnerID,
			"document_type", rec.DocumentType,
			"attempt", attempt+1,
		)
	}
	return err
}

// compensateBlob deletes a blob whose metadata write failed. A failed
// delete is recorded so the sweep can reclaim the orphan later.
func (s *Service) compensateBlob(ctx context.Context, storagePath string, cause error) {
	delErr := call(ctx, func(ctx context.Context) error {
		return s.blobs.Delete(ctx, storagePath)
	})
	if delErr != nil {
		s.logger.Error("orphaned blob: compensating delete failed",
			"storage_path", storagePath,
			"cause", cause,
			"delete_error", delErr,
		)
		recErr := call(ctx, func(ctx context.Context) error {
			return s.store.RecordOrphan(ctx, storagePath, cause.Error(), s.clock.Now().UTC())
		})
		if recErr != nil {
			s.logger.Error("orphaned blob could not be recorded for sweep",
				"storage_path", storagePath,
				"error", recErr,
			)
		}
		return
	}
	s.logger.Warn("deleted orphaned blob after metadata failure",
		"storage_path", storagePath,
		"cause", cause,
	)
}

// enqueueOCR hands the plaintext to the OCR queue. Failure to enqueue
// marks the record FAILED but never fails the upload.
func (s *Service) enqueueOCR(ctx context.Context, rec *model.DocumentRecord, plaintext []byte, contentType string) {
	var err error
	if s.queue == nil {
		err = errors.New("no OCR queue configured")
	} else {
		err = s.queue.Enqueue(rec.ID, plaintext, contentType, rec.DocumentType)
	}
	if err == nil {
		return
	}

	s.logger.Warn("OCR enqueue failed", "document_id", rec.ID, "error", err)
	rec.OCRStatus = model.OCRFailed
	updErr := call(ctx, func(ctx context.Context) error {
		return s.store.UpdateOCR(ctx, rec.ID, model.OCRFailed, nil)
	})
	if updErr != nil {
		s.logger.Warn("marking OCR failed", "document_id", rec.ID, "error", updErr)
	}
}

func (s *Service) contentTypeAllowed(contentType string) bool {
	for _, allowed := range s.limits.AllowedContentTypes {
		if contentType == allowed {
			return true
		}
	}
	return false
}
