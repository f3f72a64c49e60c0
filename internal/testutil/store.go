package testutil

import (
	"context"
	"sync"
	"time"

	"docvault/internal/docs"
	"docvault/internal/model"
)

// MemoryMetadataStore is an in-memory MetadataStore for tests. The
// error slices and fields, when set, are consumed before the real
// behavior so tests can script failures.
type MemoryMetadataStore struct {
	mu      sync.Mutex
	docs    map[string]*model.DocumentRecord
	orphans map[string]*model.OrphanBlob

	// CreateVersionErrs is consumed one element per CreateVersion call;
	// a nil element means that call succeeds.
	CreateVersionErrs []error
	SoftDeleteErr     error
	UpdateOCRErr      error
	RecordOrphanErr   error
	MarkPurgedErr     error
}

func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{
		docs:    make(map[string]*model.DocumentRecord),
		orphans: make(map[string]*model.OrphanBlob),
	}
}

func (s *MemoryMetadataStore) CreateVersion(_ context.Context, rec *model.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.CreateVersionErrs) > 0 {
		err := s.CreateVersionErrs[0]
		s.CreateVersionErrs = s.CreateVersionErrs[1:]
		if err != nil {
			return err
		}
	}

	var maxVersion int64
	for _, d := range s.docs {
		if d.OwnerID != rec.OwnerID || d.DocumentType != rec.DocumentType {
			continue
		}
		if d.Version > maxVersion {
			maxVersion = d.Version
		}
		if d.Status == model.StatusActive {
			d.Status = model.StatusSuperseded
		}
	}

	rec.Version = maxVersion + 1
	clone := *rec
	s.docs[rec.ID] = &clone
	return nil
}

func (s *MemoryMetadataStore) GetDocument(_ context.Context, id string) (*model.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

func (s *MemoryMetadataStore) GetCurrentActive(_ context.Context, ownerID, documentType string) (*model.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.docs {
		if d.OwnerID == ownerID && d.DocumentType == documentType && d.Status == model.StatusActive {
			clone := *d
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *MemoryMetadataStore) GetVersion(_ context.Context, ownerID, documentType string, version int64) (*model.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.docs {
		if d.OwnerID == ownerID && d.DocumentType == documentType && d.Version == version {
			clone := *d
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *MemoryMetadataStore) ListVersions(_ context.Context, ownerID, documentType string) ([]*model.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []*model.DocumentRecord
	for _, d := range s.docs {
		if d.OwnerID == ownerID && d.DocumentType == documentType && d.Status != model.StatusPurged {
			clone := *d
			recs = append(recs, &clone)
		}
	}
	// Newest first
	for i := 0; i < len(recs); i++ {
		for j := i + 1; j < len(recs); j++ {
			if recs[j].Version > recs[i].Version {
				recs[i], recs[j] = recs[j], recs[i]
			}
		}
	}
	return recs, nil
}

func (s *MemoryMetadataStore) SoftDelete(_ context.Context, id string, deletedAt, purgeEligibleAt time.Time) error {
	if s.SoftDeleteErr != nil {
		return s.SoftDeleteErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.docs[id]; ok {
		rec.Status = model.StatusSoftDeleted
		rec.DeletedAt = &deletedAt
		rec.PurgeEligibleAt = &purgeEligibleAt
	}
	return nil
}

func (s *MemoryMetadataStore) MarkPurged(_ context.Context, id string) error {
	if s.MarkPurgedErr != nil {
		return s.MarkPurgedErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.docs[id]; ok {
		rec.Status = model.StatusPurged
	}
	return nil
}

func (s *MemoryMetadataStore) ListPurgeEligible(_ context.Context, asOf time.Time) ([]*model.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []*model.DocumentRecord
	for _, d := range s.docs {
		if d.Status == model.StatusSoftDeleted && d.PurgeEligibleAt != nil && !d.PurgeEligibleAt.After(asOf) {
			clone := *d
			recs = append(recs, &clone)
		}
	}
	return recs, nil
}

func (s *MemoryMetadataStore) ListVersionsOverCap(_ context.Context, maxRetained int) ([]*model.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []*model.DocumentRecord
	for _, d := range s.docs {
		if d.Status != model.StatusSuperseded {
			continue
		}
		newer := 0
		for _, n := range s.docs {
			if n.OwnerID == d.OwnerID && n.DocumentType == d.DocumentType &&
				n.Version > d.Version && n.Status != model.StatusPurged {
				newer++
			}
		}
		if newer >= maxRetained {
			clone := *d
			recs = append(recs, &clone)
		}
	}
	return recs, nil
}

func (s *MemoryMetadataStore) UpdateOCR(_ context.Context, id string, status model.OCRStatus, fields *model.OCRFields) error {
	if s.UpdateOCRErr != nil {
		return s.UpdateOCRErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.docs[id]; ok {
		rec.OCRStatus = status
		rec.OCRResult = fields
	}
	return nil
}

func (s *MemoryMetadataStore) RecordOrphan(_ context.Context, storagePath, reason string, recordedAt time.Time) error {
	if s.RecordOrphanErr != nil {
		return s.RecordOrphanErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.orphans[storagePath] = &model.OrphanBlob{
		StoragePath: storagePath,
		Reason:      reason,
		RecordedAt:  recordedAt,
	}
	return nil
}

func (s *MemoryMetadataStore) ListOrphans(context.Context) ([]*model.OrphanBlob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orphans []*model.OrphanBlob
	for _, o := range s.orphans {
		clone := *o
		orphans = append(orphans, &clone)
	}
	return orphans, nil
}

func (s *MemoryMetadataStore) DeleteOrphan(_ context.Context, storagePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.orphans, storagePath)
	return nil
}

func (s *MemoryMetadataStore) Close() error {
	return nil
}

// Tamper overwrites fields of a stored record. Test hook for exercising
// integrity verification downstream.
func (s *MemoryMetadataStore) Tamper(id string, mutate func(*model.DocumentRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[id]
	if !ok {
		return false
	}
	mutate(rec)
	return true
}

// Len returns the number of stored records.
func (s *MemoryMetadataStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Compile-time check that MemoryMetadataStore implements docs.MetadataStore
var _ docs.MetadataStore = (*MemoryMetadataStore)(nil)
