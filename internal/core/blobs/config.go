package blobs

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend identifiers accepted by BLOB_BACKEND.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendAzure = "azure"
)

// Config holds artifact storage settings.
type Config struct {
	// Backend selects where artifacts are written: local, s3, gcs or azure.
	Backend string

	// PublicBaseURL is prepended to storage paths to build public URLs.
	// Required for the local backend; optional for cloud backends, which
	// otherwise fall back to the provider's canonical object URL.
	PublicBaseURL string

	// CacheControl is the default Cache-Control header for uploads.
	CacheControl string

	// FetchTimeout bounds downloading the source of an upload.
	FetchTimeout time.Duration

	// MaxSourceSizeMB bounds the size of an upload source.
	MaxSourceSizeMB int

	// LocalPath is the root directory of the local backend.
	LocalPath string

	S3    S3Config
	GCS   GCSConfig
	Azure AzureConfig
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
}

// AzureConfig configures the Azure Blob Storage backend.
type AzureConfig struct {
	StorageAccount string
	Container      string
	AccountKey     string
}

// DefaultConfig returns a Config for the local backend.
func DefaultConfig() Config {
	return Config{
		Backend:         BackendLocal,
		PublicBaseURL:   "http://localhost:8080/artifacts",
		CacheControl:    DefaultCacheControl,
		FetchTimeout:    30 * time.Second,
		MaxSourceSizeMB: DefaultMaxSourceSizeMB,
		LocalPath:       "/var/cache/artframe/artifacts",
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Uses defaults for any missing or invalid environment variables.
//
// Environment variables:
//   - BLOB_BACKEND: local, s3, gcs or azure (default: local)
//   - BLOB_PUBLIC_BASE_URL: base URL for public artifact links
//   - BLOB_CACHE_CONTROL: Cache-Control header for uploads
//   - BLOB_FETCH_TIMEOUT_SECONDS: source fetch timeout (default: 30)
//   - BLOB_MAX_SOURCE_SIZE_MB: maximum source size (default: 20)
//   - BLOB_LOCAL_PATH: local backend root directory
//   - BLOB_S3_BUCKET, BLOB_S3_REGION, BLOB_S3_ENDPOINT, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY
//   - BLOB_GCS_BUCKET, GOOGLE_APPLICATION_CREDENTIALS
//   - BLOB_AZURE_ACCOUNT, BLOB_AZURE_CONTAINER, AZURE_STORAGE_KEY
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("BLOB_BACKEND"); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv("BLOB_PUBLIC_BASE_URL"); ok {
		cfg.PublicBaseURL = v
	}
	if v := os.Getenv("BLOB_CACHE_CONTROL"); v != "" {
		cfg.CacheControl = v
	}
	if v := os.Getenv("BLOB_FETCH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FetchTimeout = time.Duration(n) * time.Second
		} else {
			slog.Warn("[BLOB] invalid BLOB_FETCH_TIMEOUT_SECONDS, using default",
				"value", v, "default", cfg.FetchTimeout)
		}
	}
	if v := os.Getenv("BLOB_MAX_SOURCE_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSourceSizeMB = n
		} else {
			slog.Warn("[BLOB] invalid BLOB_MAX_SOURCE_SIZE_MB, using default",
				"value", v, "default", cfg.MaxSourceSizeMB)
		}
	}
	if v := os.Getenv("BLOB_LOCAL_PATH"); v != "" {
		cfg.LocalPath = v
	}

	cfg.S3 = S3Config{
		Bucket:    os.Getenv("BLOB_S3_BUCKET"),
		Region:    os.Getenv("BLOB_S3_REGION"),
		Endpoint:  os.Getenv("BLOB_S3_ENDPOINT"),
		AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	}
	cfg.GCS = GCSConfig{
		Bucket:          os.Getenv("BLOB_GCS_BUCKET"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
	}
	cfg.Azure = AzureConfig{
		StorageAccount: os.Getenv("BLOB_AZURE_ACCOUNT"),
		Container:      os.Getenv("BLOB_AZURE_CONTAINER"),
		AccountKey:     os.Getenv("AZURE_STORAGE_KEY"),
	}

	return cfg
}

// Validate checks the configuration for the selected backend.
func (c Config) Validate() error {
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: fetch timeout must be positive", ErrConfiguration)
	}
	if c.MaxSourceSizeMB <= 0 {
		return fmt.Errorf("%w: max source size must be positive", ErrConfiguration)
	}

	switch c.Backend {
	case BackendLocal:
		if c.LocalPath == "" {
			return fmt.Errorf("%w: local path is required", ErrConfiguration)
		}
		if c.PublicBaseURL == "" {
			return fmt.Errorf("%w: public base URL is required for the local backend", ErrConfiguration)
		}
	case BackendS3:
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fmt.Errorf("%w: S3 bucket and region are required", ErrConfiguration)
		}
	case BackendGCS:
		if c.GCS.Bucket == "" {
			return fmt.Errorf("%w: GCS bucket is required", ErrConfiguration)
		}
	case BackendAzure:
		if c.Azure.StorageAccount == "" || c.Azure.Container == "" {
			return fmt.Errorf("%w: Azure storage account and container are required", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrConfiguration, c.Backend)
	}
	return nil
}
