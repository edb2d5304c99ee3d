package previewcache

import "errors"

var (
	// ErrPersistence is returned when the metadata store fails for a reason
	// other than a missing row.
	ErrPersistence = errors.New("preview cache persistence failure")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")

	// ErrInvalidBackend is returned when CACHE_BACKEND names an unknown tier.
	ErrInvalidBackend = errors.New("invalid cache backend")

	// ErrInvalidCapacity is returned when the memory tier capacity is negative.
	ErrInvalidCapacity = errors.New("memory cache capacity cannot be negative")

	// ErrInvalidTTL is returned when a cache TTL is not positive.
	ErrInvalidTTL = errors.New("cache TTL must be positive")
)
