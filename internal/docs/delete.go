package docs

import (
	"context"
	"fmt"

	"docvault/internal/model"
)

// Delete soft-deletes a document version. The blob stays in place until
// the retention window elapses and the sweep purges it.
//
// Deleting the current ACTIVE version leaves the lineage with no active
// document; no older version is auto-promoted. Callers must upload again
// to restore an active document.
//
// Delete is idempotent: deleting an already soft-deleted or purged
// record succeeds without side effects.
func (s *Service) Delete(ctx context.Context, documentID string) error {
	rec, err := callFor(ctx, func(ctx context.Context) (*model.DocumentRecord, error) {
		return s.store.GetDocument(ctx, documentID)
	})
	if err != nil {
		return fmt.Errorf("looking up document: %w: %w", ErrUnavailable, err)
	}
	if rec == nil {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}

	if rec.Status == model.StatusSoftDeleted || rec.Status == model.StatusPurged {
		return nil
	}

	deletedAt := s.clock.Now().UTC()
	purgeAt := s.policy.PurgeEligibleAt(deletedAt)
	err = call(ctx, func(ctx context.Context) error {
		return s.store.SoftDelete(ctx, documentID, deletedAt, purgeAt)
	})
	if err != nil {
		return fmt.Errorf("soft deleting document: %w: %w", ErrUnavailable, err)
	}

	s.logger.Info("document soft-deleted",
		"document_id", documentID,
		"owner_id", rec.OwnerID,
		"document_type", rec.DocumentType,
		"version", rec.Version,
		"purge_eligible_at", purgeAt,
	)
	return nil
}
