package generation

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds settings for the generation and watermark clients.
type Config struct {
	// BaseURL is the generation API root; predictions live under {BaseURL}/predictions.
	BaseURL string

	// WatermarkURL is the watermark API root. Defaults to BaseURL when empty.
	WatermarkURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds a whole generation, including polling.
	Timeout time.Duration

	// PollInterval is the delay between prediction status checks.
	PollInterval time.Duration

	// RatePerSecond and Burst configure the outbound request limiter.
	RatePerSecond float64
	Burst         int

	// BreakerThreshold consecutive failures open the circuit for BreakerOpenDuration.
	BreakerThreshold    int
	BreakerOpenDuration time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:             "http://localhost:9090",
		Timeout:             120 * time.Second,
		PollInterval:        time.Second,
		RatePerSecond:       5,
		Burst:               10,
		BreakerThreshold:    3,
		BreakerOpenDuration: time.Minute,
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Uses defaults for any missing or invalid environment variables.
//
// Environment variables:
//   - GENERATION_BASE_URL: generation API root
//   - GENERATION_WATERMARK_URL: watermark API root (default: GENERATION_BASE_URL)
//   - GENERATION_API_KEY: bearer token
//   - GENERATION_TIMEOUT_SECONDS: whole-generation timeout (default: 120)
//   - GENERATION_POLL_INTERVAL_MS: poll interval (default: 1000)
//   - GENERATION_RATE_PER_SECOND: outbound request rate (default: 5)
//   - GENERATION_BURST: outbound burst (default: 10)
//   - GENERATION_BREAKER_THRESHOLD: failures before opening the circuit (default: 3)
//   - GENERATION_BREAKER_OPEN_SECONDS: open circuit duration (default: 60)
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("GENERATION_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	cfg.WatermarkURL = os.Getenv("GENERATION_WATERMARK_URL")
	cfg.APIKey = os.Getenv("GENERATION_API_KEY")

	if v := os.Getenv("GENERATION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Timeout = time.Duration(n) * time.Second
		} else {
			slog.Warn("[GENERATION] invalid GENERATION_TIMEOUT_SECONDS, using default",
				"value", v, "default", cfg.Timeout)
		}
	}
	if v := os.Getenv("GENERATION_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollInterval = time.Duration(n) * time.Millisecond
		} else {
			slog.Warn("[GENERATION] invalid GENERATION_POLL_INTERVAL_MS, using default",
				"value", v, "default", cfg.PollInterval)
		}
	}
	if v := os.Getenv("GENERATION_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RatePerSecond = f
		} else {
			slog.Warn("[GENERATION] invalid GENERATION_RATE_PER_SECOND, using default",
				"value", v, "default", cfg.RatePerSecond)
		}
	}
	if v := os.Getenv("GENERATION_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Burst = n
		} else {
			slog.Warn("[GENERATION] invalid GENERATION_BURST, using default",
				"value", v, "default", cfg.Burst)
		}
	}
	if v := os.Getenv("GENERATION_BREAKER_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BreakerThreshold = n
		} else {
			slog.Warn("[GENERATION] invalid GENERATION_BREAKER_THRESHOLD, using default",
				"value", v, "default", cfg.BreakerThreshold)
		}
	}
	if v := os.Getenv("GENERATION_BREAKER_OPEN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BreakerOpenDuration = time.Duration(n) * time.Second
		} else {
			slog.Warn("[GENERATION] invalid GENERATION_BREAKER_OPEN_SECONDS, using default",
				"value", v, "default", cfg.BreakerOpenDuration)
		}
	}

	return cfg
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL is required", ErrConfiguration)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrConfiguration)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrConfiguration)
	}
	if c.RatePerSecond <= 0 || c.Burst <= 0 {
		return fmt.Errorf("%w: rate and burst must be positive", ErrConfiguration)
	}
	return nil
}

func (c Config) watermarkURL() string {
	if c.WatermarkURL != "" {
		return c.WatermarkURL
	}
	return c.BaseURL
}
