package previewcache

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

const (
	// BackendMemory keeps the hot tier in process.
	BackendMemory = "memory"
	// BackendRedis shares the hot tier between replicas through Redis.
	BackendRedis = "redis"
)

// Config holds the configuration for both preview cache tiers.
type Config struct {
	// Backend selects the hot tier implementation: "memory" or "redis".
	Backend string

	// MemoryCapacity is the maximum number of entries in the in-process tier.
	// 0 disables the in-process tier (every Set is a no-op).
	MemoryCapacity int

	// HotTTL is how long an artifact reference stays in the hot tier.
	HotTTL time.Duration

	// PersistentTTL is written to ttl_expires_at on upsert.
	PersistentTTL time.Duration

	// RedisPrefix namespaces hot tier keys when Backend is "redis".
	RedisPrefix string

	// CleanupInterval is how often expired metadata rows are deleted.
	// Set to 0 to disable the housekeeping job.
	CleanupInterval time.Duration

	// CleanupGrace keeps expired rows around this long before deletion.
	CleanupGrace time.Duration
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.Backend != BackendMemory && c.Backend != BackendRedis {
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Backend)
	}
	if c.MemoryCapacity < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCapacity, c.MemoryCapacity)
	}
	if c.HotTTL <= 0 {
		return fmt.Errorf("%w: hot TTL %v", ErrInvalidTTL, c.HotTTL)
	}
	if c.PersistentTTL <= 0 {
		return fmt.Errorf("%w: persistent TTL %v", ErrInvalidTTL, c.PersistentTTL)
	}
	return nil
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Backend:         BackendMemory,
		MemoryCapacity:  500,
		HotTTL:          15 * time.Minute,
		PersistentTTL:   7 * 24 * time.Hour,
		RedisPrefix:     "artframe:preview",
		CleanupInterval: 6 * time.Hour,
		CleanupGrace:    24 * time.Hour,
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Uses defaults for any missing environment variables.
//
// Environment variables:
//   - CACHE_BACKEND: "memory" or "redis" (default: memory)
//   - CACHE_MEMORY_CAPACITY: max in-process entries (default: 500)
//   - CACHE_HOT_TTL_SECONDS: hot tier TTL (default: 900)
//   - CACHE_PERSISTENT_TTL_HOURS: metadata row TTL (default: 168)
//   - CACHE_REDIS_PREFIX: Redis key prefix (default: "artframe:preview")
//   - CACHE_CLEANUP_INTERVAL_MINUTES: housekeeping interval, 0 to disable (default: 360)
//   - CACHE_CLEANUP_GRACE_HOURS: age past expiry before deletion (default: 24)
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Backend = v
	}

	if v := os.Getenv("CACHE_MEMORY_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MemoryCapacity = n
		} else {
			slog.Warn("[PREVIEW-CACHE] invalid CACHE_MEMORY_CAPACITY value, using default",
				"value", v,
				"default", cfg.MemoryCapacity,
				"error", err,
			)
		}
	}

	if v := os.Getenv("CACHE_HOT_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HotTTL = time.Duration(n) * time.Second
		} else {
			slog.Warn("[PREVIEW-CACHE] invalid CACHE_HOT_TTL_SECONDS value, using default",
				"value", v,
				"default_seconds", int(cfg.HotTTL.Seconds()),
				"error", err,
			)
		}
	}

	if v := os.Getenv("CACHE_PERSISTENT_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PersistentTTL = time.Duration(n) * time.Hour
		} else {
			slog.Warn("[PREVIEW-CACHE] invalid CACHE_PERSISTENT_TTL_HOURS value, using default",
				"value", v,
				"default_hours", int(cfg.PersistentTTL.Hours()),
				"error", err,
			)
		}
	}

	if v := os.Getenv("CACHE_REDIS_PREFIX"); v != "" {
		cfg.RedisPrefix = v
	}

	if v := os.Getenv("CACHE_CLEANUP_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.CleanupInterval = time.Duration(n) * time.Minute
		} else {
			slog.Warn("[PREVIEW-CACHE] invalid CACHE_CLEANUP_INTERVAL_MINUTES value, using default",
				"value", v,
				"default_minutes", int(cfg.CleanupInterval.Minutes()),
				"error", err,
			)
		}
	}

	if v := os.Getenv("CACHE_CLEANUP_GRACE_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.CleanupGrace = time.Duration(n) * time.Hour
		} else {
			slog.Warn("[PREVIEW-CACHE] invalid CACHE_CLEANUP_GRACE_HOURS value, using default",
				"value", v,
				"default_hours", int(cfg.CleanupGrace.Hours()),
				"error", err,
			)
		}
	}

	return cfg
}
