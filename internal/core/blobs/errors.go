package blobs

import "errors"

var (
	// ErrStorage is returned when fetching source bytes or writing the object fails.
	ErrStorage = errors.New("artifact storage failure")

	// ErrConfiguration is returned when the storage client is misconfigured,
	// including when no public URL can be resolved for a stored object.
	ErrConfiguration = errors.New("artifact storage misconfigured")

	// ErrFetchFailed is returned when the source URL could not be fetched.
	ErrFetchFailed = errors.New("failed to fetch artifact source")

	// ErrFetchTimeout is returned when fetching the source URL timed out.
	ErrFetchTimeout = errors.New("artifact source fetch timed out")

	// ErrTooLarge is returned when the source exceeds the configured size limit.
	ErrTooLarge = errors.New("artifact source exceeds size limit")

	// ErrUnsupportedType is returned for non-image content types.
	ErrUnsupportedType = errors.New("unsupported artifact content type")

	// ErrInvalidDataURI is returned when an inline data URI cannot be decoded.
	ErrInvalidDataURI = errors.New("invalid data URI")

	// ErrInvalidPath is returned when a storage path is empty or escapes the store root.
	ErrInvalidPath = errors.New("invalid storage path")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)
