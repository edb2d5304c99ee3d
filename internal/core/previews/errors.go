package previews

import "errors"

var (
	// ErrConfiguration is returned when a collaborator is misconfigured,
	// for example when storage cannot resolve a public URL.
	ErrConfiguration = errors.New("preview pipeline misconfigured")

	// ErrUpstream is returned when the generation or watermark service fails.
	ErrUpstream = errors.New("preview generation failed")

	// ErrStorage is returned when the generated artifact could not be stored.
	ErrStorage = errors.New("preview storage failed")

	// ErrPersistence is returned when cache metadata could not be read or written.
	ErrPersistence = errors.New("preview cache persistence failed")

	// ErrIllegalTransition is returned when a lifecycle transition is not permitted.
	ErrIllegalTransition = errors.New("illegal preview state transition")

	// ErrUnknownStyle is returned for style ids missing from the catalog.
	ErrUnknownStyle = errors.New("unknown style")

	// ErrInvalidOrientation is returned for unrecognised orientations.
	ErrInvalidOrientation = errors.New("invalid orientation")

	// ErrNoSource is returned when a preview is requested before a source image exists.
	ErrNoSource = errors.New("no source image")

	// ErrInvalidSource is returned when the source image cannot be decoded.
	ErrInvalidSource = errors.New("invalid source image")

	// ErrClosed is returned after the orchestrator has been closed.
	ErrClosed = errors.New("preview orchestrator closed")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)
