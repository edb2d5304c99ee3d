package blobs

import (
	"fmt"
	"path"
	"strings"
)

// DefaultCacheControl is applied to uploaded artifacts unless overridden.
// Artifacts are content-addressed, so they never change once written.
const DefaultCacheControl = "public, max-age=31536000, immutable"

// UploadOptions tunes a single upload.
type UploadOptions struct {
	// CacheControl overrides the configured Cache-Control header.
	CacheControl string

	// AppendExtension adds the file extension matching the detected content
	// type (".jpg", ".png", ".webp") to the storage path.
	AppendExtension bool
}

// UploadResult describes a stored artifact.
type UploadResult struct {
	StoragePath string
	PublicURL   string
	ContentType string
	Size        int
}

// normalizeMimeType converts non-standard MIME types to their standard equivalents
// and strips parameters such as "; charset=binary".
func normalizeMimeType(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch mimeType {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	default:
		return mimeType
	}
}

// isValidMimeType checks if the MIME type is allowed for artifact uploads
func isValidMimeType(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/png", "image/webp":
		return true
	default:
		return false
	}
}

// extensionFor returns the file extension for an allowed MIME type.
func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

// cleanStoragePath validates a storage path and returns it in canonical form.
// Paths must be relative and may not traverse outside the store root.
func cleanStoragePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.Contains(p, "\x00") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: must be relative: %q", ErrInvalidPath, p)
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: traversal in %q", ErrInvalidPath, p)
		}
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// joinPublicURL joins a public base URL and a storage path.
func joinPublicURL(baseURL, storagePath string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + storagePath
}
