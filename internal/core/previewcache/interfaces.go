package previewcache

import (
	"context"
	"time"
)

// Repository defines persistence for preview cache metadata.
type Repository interface {
	// Get returns the record for cacheKey.
	// Returns nil, nil if no row exists; expired rows are returned as-is and
	// the caller decides whether they count as a hit.
	Get(ctx context.Context, cacheKey string) (*Record, error)

	// Upsert inserts the record or overwrites the row with the same cache key.
	// The stored hit count is reset to 1.
	Upsert(ctx context.Context, record *Record) error

	// RecordHit atomically increments the hit count and refreshes the
	// last-accessed timestamp.
	RecordHit(ctx context.Context, cacheKey string) error

	// DeleteExpired removes rows whose TTL expired before the given time.
	// Returns the number of rows removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// HotCache is the first cache tier, consulted before the repository.
type HotCache interface {
	// Get returns the artifact for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) (*Artifact, bool, error)

	// Set stores the artifact for ttl.
	Set(ctx context.Context, key string, artifact *Artifact, ttl time.Duration) error

	// Delete invalidates key.
	Delete(ctx context.Context, key string) error

	// Clear drops every entry owned by this tier.
	Clear(ctx context.Context) error
}
