package blobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Service uploads artifacts to durable storage and resolves their public URLs.
type Service interface {
	// UploadFromURL stores the bytes behind sourceURL at storagePath.
	// sourceURL may be an inline data URI, which is decoded without a network fetch.
	// Existing objects at the same path are overwritten.
	UploadFromURL(ctx context.Context, sourceURL, storagePath string, opts *UploadOptions) (*UploadResult, error)
}

type blobService struct {
	backend      Backend
	fetcher      Fetcher
	cacheControl string
}

// NewService creates a blob service. An empty cacheControl uses DefaultCacheControl.
func NewService(backend Backend, fetcher Fetcher, cacheControl string) (Service, error) {
	if backend == nil || fetcher == nil {
		return nil, ErrNilDependency
	}
	if cacheControl == "" {
		cacheControl = DefaultCacheControl
	}
	return &blobService{
		backend:      backend,
		fetcher:      fetcher,
		cacheControl: cacheControl,
	}, nil
}

// NewBackend builds the backend selected by cfg.Backend.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case BackendLocal:
		return NewLocalBackend(cfg.LocalPath, cfg.PublicBaseURL)
	case BackendS3:
		return NewS3Backend(cfg.S3, cfg.PublicBaseURL)
	case BackendGCS:
		return NewGCSBackend(ctx, cfg.GCS, cfg.PublicBaseURL)
	case BackendAzure:
		return NewAzureBackend(cfg.Azure, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrConfiguration, cfg.Backend)
	}
}

// UploadFromURL fetches or decodes the source, uploads it and resolves its public URL.
// Flow:
//  1. Decode data URIs inline, otherwise fetch over HTTP
//  2. Validate the content type (image/jpeg, image/png, image/webp)
//  3. Put the object with the configured Cache-Control
//  4. Resolve the public URL; failure here is a configuration error
//
// Source and upload failures wrap ErrStorage.
func (s *blobService) UploadFromURL(ctx context.Context, sourceURL, storagePath string, opts *UploadOptions) (*UploadResult, error) {
	if sourceURL == "" {
		return nil, fmt.Errorf("%w: source URL cannot be empty", ErrStorage)
	}

	storagePath, err := cleanStoragePath(storagePath)
	if err != nil {
		return nil, err
	}

	if opts == nil {
		opts = &UploadOptions{}
	}
	cacheControl := opts.CacheControl
	if cacheControl == "" {
		cacheControl = s.cacheControl
	}

	data, contentType, err := s.readSource(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	if opts.AppendExtension {
		if ext := extensionFor(contentType); ext != "" && !strings.HasSuffix(storagePath, ext) {
			storagePath += ext
		}
	}

	if err := s.backend.Put(ctx, storagePath, data, contentType, cacheControl); err != nil {
		slog.Error("[BLOB] upload failed", "path", storagePath, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	publicURL, err := s.backend.PublicURL(storagePath)
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if publicURL == "" {
		return nil, fmt.Errorf("%w: empty public URL for %s", ErrConfiguration, storagePath)
	}

	slog.Debug("[BLOB] uploaded artifact",
		"path", storagePath, "content_type", contentType, "size", len(data))

	return &UploadResult{
		StoragePath: storagePath,
		PublicURL:   publicURL,
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

func (s *blobService) readSource(ctx context.Context, sourceURL string) ([]byte, string, error) {
	var (
		data        []byte
		contentType string
		err         error
	)

	if IsDataURI(sourceURL) {
		data, contentType, err = DecodeDataURI(sourceURL)
	} else {
		data, contentType, err = s.fetcher.Fetch(ctx, sourceURL)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrStorage, err)
	}

	contentType = normalizeMimeType(contentType)
	if !isValidMimeType(contentType) {
		// Origins frequently send application/octet-stream for generated images
		contentType = normalizeMimeType(http.DetectContentType(data))
	}
	if !isValidMimeType(contentType) {
		return nil, "", fmt.Errorf("%w: %w: %s", ErrStorage, ErrUnsupportedType, contentType)
	}

	return data, contentType, nil
}
