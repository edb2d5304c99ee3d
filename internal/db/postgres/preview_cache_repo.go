package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"Artframe/internal/core/previewcache"
)

type postgresPreviewCacheRepo struct {
	db *sql.DB
}

// NewPreviewCacheRepository creates a new PostgreSQL preview cache metadata repository
func NewPreviewCacheRepository(db *sql.DB) previewcache.Repository {
	return &postgresPreviewCacheRepo{db: db}
}

// Get retrieves the metadata row for cacheKey.
// Returns nil, nil if not found (not an error condition).
// Expired rows are returned; TTL is enforced by the caller.
func (r *postgresPreviewCacheRepo) Get(ctx context.Context, cacheKey string) (*previewcache.Record, error) {
	query := `
		SELECT cache_key, style_id, style_version, image_digest, aspect_ratio, quality,
		       watermarked, storage_path, preview_url, ttl_expires_at, created_at,
		       last_accessed_at, hit_count, source_request_id, created_by, tier
		FROM preview_cache
		WHERE cache_key = $1
	`

	rec := &previewcache.Record{}
	var sourceRequestID, createdBy, tier sql.NullString

	err := r.db.QueryRowContext(ctx, query, cacheKey).Scan(
		&rec.CacheKey, &rec.StyleID, &rec.StyleVersion, &rec.ImageDigest, &rec.AspectRatio, &rec.Quality,
		&rec.Watermarked, &rec.StoragePath, &rec.PreviewURL, &rec.TTLExpiresAt, &rec.CreatedAt,
		&rec.LastAccessedAt, &rec.HitCount, &sourceRequestID, &createdBy, &tier,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get preview cache entry: %w", previewcache.ErrPersistence, err)
	}

	rec.SourceRequestID = sourceRequestID.String
	rec.CreatedBy = createdBy.String
	rec.Tier = tier.String

	return rec, nil
}

// Upsert stores the record, overwriting any row with the same cache key.
// created_at, last_accessed_at and hit_count are reset so the row describes
// the freshly produced artifact.
func (r *postgresPreviewCacheRepo) Upsert(ctx context.Context, rec *previewcache.Record) error {
	query := `
		INSERT INTO preview_cache (
			cache_key, style_id, style_version, image_digest, aspect_ratio, quality,
			watermarked, storage_path, preview_url, ttl_expires_at,
			created_at, last_accessed_at, hit_count,
			source_request_id, created_by, tier
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW(), 1, $11, $12, $13)
		ON CONFLICT (cache_key) DO UPDATE
		SET style_id = EXCLUDED.style_id,
		    style_version = EXCLUDED.style_version,
		    image_digest = EXCLUDED.image_digest,
		    aspect_ratio = EXCLUDED.aspect_ratio,
		    quality = EXCLUDED.quality,
		    watermarked = EXCLUDED.watermarked,
		    storage_path = EXCLUDED.storage_path,
		    preview_url = EXCLUDED.preview_url,
		    ttl_expires_at = EXCLUDED.ttl_expires_at,
		    created_at = NOW(),
		    last_accessed_at = NOW(),
		    hit_count = 1,
		    source_request_id = EXCLUDED.source_request_id,
		    created_by = EXCLUDED.created_by,
		    tier = EXCLUDED.tier
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.CacheKey, rec.StyleID, rec.StyleVersion, rec.ImageDigest, rec.AspectRatio, rec.Quality,
		rec.Watermarked, rec.StoragePath, rec.PreviewURL, rec.TTLExpiresAt,
		nullString(rec.SourceRequestID), nullString(rec.CreatedBy), nullString(rec.Tier),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert preview cache entry: %w", previewcache.ErrPersistence, err)
	}

	return nil
}

// RecordHit increments hit_count and refreshes last_accessed_at in one statement.
// A missing row is not an error.
func (r *postgresPreviewCacheRepo) RecordHit(ctx context.Context, cacheKey string) error {
	query := `
		UPDATE preview_cache
		SET hit_count = hit_count + 1,
		    last_accessed_at = NOW()
		WHERE cache_key = $1
	`

	if _, err := r.db.ExecContext(ctx, query, cacheKey); err != nil {
		return fmt.Errorf("%w: failed to record preview cache hit: %w", previewcache.ErrPersistence, err)
	}
	return nil
}

// DeleteExpired removes rows whose TTL expired before the given time.
func (r *postgresPreviewCacheRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM preview_cache WHERE ttl_expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete expired preview cache entries: %w", previewcache.ErrPersistence, err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return removed, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
