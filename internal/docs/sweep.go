package docs

import (
	"context"
	"fmt"

	"docvault/internal/model"
)

// Sweep performs the periodic hard-delete pass. It is the only code
// path that deletes blobs from the object store. Three classes of work:
//
//  1. SOFT_DELETED records past their purgeEligibleAt are purged.
//  2. When a version cap is configured, SUPERSEDED records with at
//     least that many newer retained versions are purged early. The
//     ACTIVE version is never purged.
//  3. Orphan blobs recorded by failed compensating deletes are retried.
//
// Failures on individual records are logged and skipped; the next sweep
// picks them up again. Returns the number of records purged.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()
	purged := 0

	eligible, err := callFor(ctx, func(ctx context.Context) ([]*model.DocumentRecord, error) {
		return s.store.ListPurgeEligible(ctx, now)
	})
	if err != nil {
		return 0, fmt.Errorf("listing purge-eligible records: %w: %w", ErrUnavailable, err)
	}
	purged += s.purgeRecords(ctx, eligible, "retention expired")

	if s.policy.MaxVersionsRetained > 0 {
		overCap, err := callFor(ctx, func(ctx context.Context) ([]*model.DocumentRecord, error) {
			return s.store.ListVersionsOverCap(ctx, s.policy.MaxVersionsRetained)
		})
		if err != nil {
			return purged, fmt.Errorf("listing over-cap versions: %w: %w", ErrUnavailable, err)
		}
		purged += s.purgeRecords(ctx, overCap, "version cap exceeded")
	}

	s.sweepOrphans(ctx)

	if purged > 0 {
		s.logger.Info("sweep complete", "purged", purged)
	}
	return purged, nil
}

func (s *Service) purgeRecords(ctx context.Context, recs []*model.DocumentRecord, reason string) int {
	purged := 0
	for _, rec := range recs {
		err := call(ctx, func(ctx context.Context) error {
			return s.blobs.Delete(ctx, rec.StoragePath)
		})
		if err != nil {
			s.logger.Warn("purge: blob delete failed, will retry next sweep",
				"document_id", rec.ID,
				"storage_path", rec.StoragePath,
				"error", err,
			)
			continue
		}
		err = call(ctx, func(ctx context.Context) error {
			return s.store.MarkPurged(ctx, rec.ID)
		})
		if err != nil {
			// Blob is gone but the row still says otherwise; the next
			// sweep re-selects it and Delete is idempotent.
			s.logger.Warn("purge: marking record failed",
				"document_id", rec.ID,
				"error", err,
			)
			continue
		}
		s.logger.Info("document purged",
			"document_id", rec.ID,
			"owner_id", rec.OwnerID,
			"document_type", rec.DocumentType,
			"version", rec.Version,
			"reason", reason,
		)
		purged++
	}
	return purged
}

func (s *Service) sweepOrphans(ctx context.Context) {
	orphans, err := callFor(ctx, func(ctx context.Context) ([]*model.OrphanBlob, error) {
		return s.store.ListOrphans(ctx)
	})
	if err != nil {
		s.logger.Warn("listing orphan blobs", "error", err)
		return
	}
	for _, o := range orphans {
		err := call(ctx, func(ctx context.Context) error {
			return s.blobs.Delete(ctx, o.StoragePath)
		})
		if err != nil {
			s.logger.Warn("orphan sweep: blob delete failed",
				"storage_path", o.StoragePath,
				"error", err,
			)
			continue
		}
		err = call(ctx, func(ctx context.Context) error {
			return s.store.DeleteOrphan(ctx, o.StoragePath)
		})
		if err != nil {
			s.logger.Warn("orphan sweep: removing orphan record failed",
				"storage_path", o.StoragePath,
				"error", err,
			)
			continue
		}
		s.logger.Info("orphan blob reclaimed", "storage_path", o.StoragePath)
	}
}
