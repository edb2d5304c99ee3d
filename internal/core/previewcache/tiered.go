package previewcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"Artframe/internal/metrics"
)

// Tier identifies which cache tier served a lookup.
type Tier string

const (
	TierNone       Tier = ""
	TierHot        Tier = "hot"
	TierPersistent Tier = "persistent"
)

// Tiered combines the hot tier with the persistent metadata store.
type Tiered struct {
	hot    HotCache
	repo   Repository
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewTiered creates a two-tier cache. Both tiers are required.
func NewTiered(hot HotCache, repo Repository, config Config, logger *slog.Logger) (*Tiered, error) {
	if hot == nil {
		return nil, fmt.Errorf("%w: hot cache", ErrNilDependency)
	}
	if repo == nil {
		return nil, fmt.Errorf("%w: repository", ErrNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered{
		hot:    hot,
		repo:   repo,
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Lookup resolves key through the hot tier, then the repository.
// Every hit is recorded once on the repository. Repository failures are
// logged and reported as a miss so a broken cache never blocks generation.
func (t *Tiered) Lookup(ctx context.Context, key string) (*Artifact, Tier, bool) {
	artifact, found, err := t.hot.Get(ctx, key)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues(string(TierHot), "error").Inc()
		t.logger.Warn("[PREVIEW-CACHE] hot tier read error, falling back to persistent store",
			"cache_key", key,
			"error", err,
		)
	}
	if found && artifact != nil {
		metrics.CacheLookupsTotal.WithLabelValues(string(TierHot), "hit").Inc()
		t.recordHit(ctx, key)
		return artifact, TierHot, true
	}
	metrics.CacheLookupsTotal.WithLabelValues(string(TierHot), "miss").Inc()

	record, err := t.repo.Get(ctx, key)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues(string(TierPersistent), "error").Inc()
		t.logger.Warn("[PREVIEW-CACHE] persistent store unavailable, treating as miss",
			"cache_key", key,
			"error", err,
		)
		return nil, TierNone, false
	}
	if record == nil {
		metrics.CacheLookupsTotal.WithLabelValues(string(TierPersistent), "miss").Inc()
		return nil, TierNone, false
	}

	now := t.now()
	if record.Expired(now) {
		metrics.CacheLookupsTotal.WithLabelValues(string(TierPersistent), "expired").Inc()
		t.logger.Debug("[PREVIEW-CACHE] persistent record expired",
			"cache_key", key,
			"ttl_expires_at", record.TTLExpiresAt,
		)
		return nil, TierNone, false
	}

	metrics.CacheLookupsTotal.WithLabelValues(string(TierPersistent), "hit").Inc()
	t.recordHit(ctx, key)

	artifact = record.Artifact()
	t.backfill(ctx, key, artifact, record.TTLExpiresAt.Sub(now))
	return artifact, TierPersistent, true
}

// Store writes a freshly produced artifact through both tiers. The record is
// upserted first; the hot tier is written even if the upsert fails, since the
// blob already exists. The upsert error is returned for the caller to log.
func (t *Tiered) Store(ctx context.Context, record *Record) error {
	if record.TTLExpiresAt.IsZero() {
		record.TTLExpiresAt = t.now().Add(t.config.PersistentTTL)
	}

	upsertErr := t.repo.Upsert(ctx, record)
	if upsertErr != nil {
		upsertErr = fmt.Errorf("%w: upsert %s: %w", ErrPersistence, record.CacheKey, upsertErr)
	}

	t.backfill(ctx, record.CacheKey, record.Artifact(), record.TTLExpiresAt.Sub(t.now()))
	return upsertErr
}

// Invalidate drops key from the hot tier. The persistent row is left to expire.
func (t *Tiered) Invalidate(ctx context.Context, key string) error {
	return t.hot.Delete(ctx, key)
}

// backfill writes artifact to the hot tier for at most the remaining
// persistent lifetime.
func (t *Tiered) backfill(ctx context.Context, key string, artifact *Artifact, remaining time.Duration) {
	ttl := t.config.HotTTL
	if remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	if err := t.hot.Set(ctx, key, artifact, ttl); err != nil {
		t.logger.Warn("[PREVIEW-CACHE] failed to write hot tier",
			"cache_key", key,
			"error", err,
		)
	}
}

func (t *Tiered) recordHit(ctx context.Context, key string) {
	if err := t.repo.RecordHit(ctx, key); err != nil {
		t.logger.Warn("[PREVIEW-CACHE] failed to record cache hit",
			"cache_key", key,
			"error", err,
		)
	}
}
