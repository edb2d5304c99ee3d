package blobs

import "context"

// Backend writes objects to a public bucket-like store.
type Backend interface {
	// Put writes data at storagePath, overwriting any existing object.
	Put(ctx context.Context, storagePath string, data []byte, contentType, cacheControl string) error

	// PublicURL resolves the public URL for storagePath.
	// Returns ErrConfiguration when no URL can be resolved.
	PublicURL(storagePath string) (string, error)
}
