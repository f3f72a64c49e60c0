package docs

import "time"

// Policy holds the retention and versioning parameters. Both are
// deployment configuration, not constants of the design: regulatory
// minimums vary by jurisdiction.
type Policy struct {
	// RetentionWindow is how long a soft-deleted version is kept before
	// it becomes eligible for purge.
	RetentionWindow time.Duration

	// MaxVersionsRetained caps retained versions per lineage, counting
	// the active one. Superseded versions beyond the cap are purged by
	// the sweep, oldest first. Zero means unlimited. The ACTIVE version
	// is never purged regardless of the cap or its age.
	MaxVersionsRetained int
}

// PurgeEligibleAt returns the instant at which a version deleted at the
// given time may be hard-deleted.
func (p Policy) PurgeEligibleAt(deletedAt time.Time) time.Time {
	return deletedAt.Add(p.RetentionWindow)
}
