package blobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalBackend writes artifacts under a directory served at PublicBaseURL.
type LocalBackend struct {
	basePath      string
	publicBaseURL string
}

// NewLocalBackend creates the base directory if needed.
func NewLocalBackend(basePath, publicBaseURL string) (*LocalBackend, error) {
	if basePath == "" {
		return nil, fmt.Errorf("%w: local path is required", ErrConfiguration)
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create artifact directory: %v", ErrConfiguration, err)
	}
	return &LocalBackend{basePath: basePath, publicBaseURL: publicBaseURL}, nil
}

// BasePath returns the directory artifacts are written to.
func (b *LocalBackend) BasePath() string {
	return b.basePath
}

// Put writes the object atomically via a temp file and rename.
// contentType and cacheControl are applied by the file server, not stored.
func (b *LocalBackend) Put(ctx context.Context, storagePath string, data []byte, contentType, cacheControl string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(b.basePath, filepath.FromSlash(storagePath))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}

// PublicURL joins the configured base URL with storagePath.
func (b *LocalBackend) PublicURL(storagePath string) (string, error) {
	if b.publicBaseURL == "" {
		return "", fmt.Errorf("%w: no public base URL configured", ErrConfiguration)
	}
	return joinPublicURL(b.publicBaseURL, storagePath), nil
}
