package previews

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds preview pipeline settings.
type Config struct {
	// GenerationTimeout bounds a shared generation call from submit to upload.
	GenerationTimeout time.Duration

	// Quality is the quality tier requested from the generation service.
	Quality string

	// StoragePrefix is the directory artifacts are uploaded under.
	StoragePrefix string

	// CropMaxDimension caps the longest side of cropped sources.
	CropMaxDimension int
	CropJPEGQuality  int

	// StylesFile is an optional YAML style catalog. Empty uses the built-in catalog.
	StylesFile string

	// MaxSessions and SessionTTL bound the per-session orchestrator registry.
	MaxSessions int
	SessionTTL  time.Duration
}

// DefaultQuality is the quality tier used for previews.
const DefaultQuality = "preview"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		GenerationTimeout: 3 * time.Minute,
		Quality:           DefaultQuality,
		StoragePrefix:     "previews",
		CropMaxDimension:  1024,
		CropJPEGQuality:   85,
		MaxSessions:       10000,
		SessionTTL:        2 * time.Hour,
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Uses defaults for any missing or invalid environment variables.
//
// Environment variables:
//   - PREVIEW_GENERATION_TIMEOUT_SECONDS: shared call timeout (default: 180)
//   - PREVIEW_QUALITY: quality tier (default: preview)
//   - PREVIEW_STORAGE_PREFIX: upload directory (default: previews)
//   - PREVIEW_CROP_MAX_DIMENSION: longest crop side in pixels (default: 1024)
//   - PREVIEW_STYLES_FILE: YAML style catalog path
//   - PREVIEW_MAX_SESSIONS: session registry size (default: 10000)
//   - PREVIEW_SESSION_TTL_MINUTES: idle session lifetime (default: 120)
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("PREVIEW_GENERATION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GenerationTimeout = time.Duration(n) * time.Second
		} else {
			slog.Warn("[PREVIEW] invalid PREVIEW_GENERATION_TIMEOUT_SECONDS, using default",
				"value", v, "default", cfg.GenerationTimeout)
		}
	}
	if v := os.Getenv("PREVIEW_QUALITY"); v != "" {
		cfg.Quality = v
	}
	if v := os.Getenv("PREVIEW_STORAGE_PREFIX"); v != "" {
		cfg.StoragePrefix = v
	}
	if v := os.Getenv("PREVIEW_CROP_MAX_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 64 {
			cfg.CropMaxDimension = n
		} else {
			slog.Warn("[PREVIEW] invalid PREVIEW_CROP_MAX_DIMENSION, using default",
				"value", v, "default", cfg.CropMaxDimension)
		}
	}
	cfg.StylesFile = os.Getenv("PREVIEW_STYLES_FILE")
	if v := os.Getenv("PREVIEW_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSessions = n
		} else {
			slog.Warn("[PREVIEW] invalid PREVIEW_MAX_SESSIONS, using default",
				"value", v, "default", cfg.MaxSessions)
		}
	}
	if v := os.Getenv("PREVIEW_SESSION_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTL = time.Duration(n) * time.Minute
		} else {
			slog.Warn("[PREVIEW] invalid PREVIEW_SESSION_TTL_MINUTES, using default",
				"value", v, "default", cfg.SessionTTL)
		}
	}

	return cfg
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("%w: generation timeout must be positive", ErrConfiguration)
	}
	if c.Quality == "" {
		return fmt.Errorf("%w: quality is required", ErrConfiguration)
	}
	if c.StoragePrefix == "" {
		return fmt.Errorf("%w: storage prefix is required", ErrConfiguration)
	}
	if c.MaxSessions <= 0 || c.SessionTTL <= 0 {
		return fmt.Errorf("%w: session limits must be positive", ErrConfiguration)
	}
	return nil
}
