package previewcache

import "time"

// Artifact is the cached reference to a generated preview. It is what both
// cache tiers resolve a cache key to.
type Artifact struct {
	CacheKey    string    `json:"cacheKey"`
	PreviewURL  string    `json:"previewUrl"`
	StoragePath string    `json:"storagePath,omitempty"`
	Watermarked bool      `json:"watermarked"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Record is a row of the persistent preview cache metadata table.
type Record struct {
	CacheKey     string
	StyleID      string
	StyleVersion string
	ImageDigest  string
	AspectRatio  string
	Quality      string
	Watermarked  bool

	StoragePath string
	PreviewURL  string

	TTLExpiresAt   time.Time
	CreatedAt      time.Time
	LastAccessedAt time.Time
	HitCount       int64

	// Optional attribution, stored as NULL when empty
	SourceRequestID string
	CreatedBy       string
	Tier            string
}

// Expired reports whether the record's TTL has elapsed at now.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.TTLExpiresAt)
}

// Artifact converts the record into the artifact reference served to callers.
func (r *Record) Artifact() *Artifact {
	return &Artifact{
		CacheKey:    r.CacheKey,
		PreviewURL:  r.PreviewURL,
		StoragePath: r.StoragePath,
		Watermarked: r.Watermarked,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.TTLExpiresAt,
	}
}
