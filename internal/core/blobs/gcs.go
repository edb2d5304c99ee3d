package blobs

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSBackend stores artifacts in a Google Cloud Storage bucket.
type GCSBackend struct {
	client        *gcs.Client
	bucket        string
	publicBaseURL string
}

// NewGCSBackend creates a GCS backend. A credentials file is used when set;
// otherwise application default credentials apply.
func NewGCSBackend(ctx context.Context, cfg GCSConfig, publicBaseURL string) (*GCSBackend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: GCS bucket is required", ErrConfiguration)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCS client: %v", ErrConfiguration, err)
	}

	return &GCSBackend{client: client, bucket: cfg.Bucket, publicBaseURL: publicBaseURL}, nil
}

// Put writes the object. The upload is committed when the writer closes.
func (b *GCSBackend) Put(ctx context.Context, storagePath string, data []byte, contentType, cacheControl string) error {
	writer := b.client.Bucket(b.bucket).Object(storagePath).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = cacheControl

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to upload %s to gcs: %w", storagePath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s upload to gcs: %w", storagePath, err)
	}
	return nil
}

// PublicURL prefers the configured base URL, then storage.googleapis.com.
func (b *GCSBackend) PublicURL(storagePath string) (string, error) {
	if b.publicBaseURL != "" {
		return joinPublicURL(b.publicBaseURL, storagePath), nil
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.bucket, storagePath), nil
}

// Close releases the underlying client.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
