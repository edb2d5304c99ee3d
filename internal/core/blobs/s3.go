package blobs

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Backend stores artifacts in an S3 (or S3-compatible) bucket.
type S3Backend struct {
	uploader      *s3manager.Uploader
	bucket        string
	region        string
	endpoint      string
	publicBaseURL string
}

// NewS3Backend creates an S3 backend. Static credentials are used when both
// keys are set; otherwise the default AWS credential chain applies.
func NewS3Backend(cfg S3Config, publicBaseURL string) (*S3Backend, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: S3 bucket and region are required", ErrConfiguration)
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create AWS session: %v", ErrConfiguration, err)
	}

	return &S3Backend{
		uploader:      s3manager.NewUploader(sess),
		bucket:        cfg.Bucket,
		region:        cfg.Region,
		endpoint:      cfg.Endpoint,
		publicBaseURL: publicBaseURL,
	}, nil
}

// Put uploads the object with its content type and cache headers.
func (b *S3Backend) Put(ctx context.Context, storagePath string, data []byte, contentType, cacheControl string) error {
	_, err := b.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:       aws.String(b.bucket),
		Key:          aws.String(storagePath),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3: %w", storagePath, err)
	}
	return nil
}

// PublicURL prefers the configured base URL, then the custom endpoint,
// then the virtual-hosted bucket URL.
func (b *S3Backend) PublicURL(storagePath string) (string, error) {
	if b.publicBaseURL != "" {
		return joinPublicURL(b.publicBaseURL, storagePath), nil
	}
	if b.endpoint != "" {
		u, err := url.Parse(b.endpoint)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("%w: cannot derive public URL from endpoint %q", ErrConfiguration, b.endpoint)
		}
		return joinPublicURL(u.String(), b.bucket+"/"+storagePath), nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.bucket, b.region, storagePath), nil
}
