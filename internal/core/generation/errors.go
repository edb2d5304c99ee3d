package generation

import "errors"

var (
	// ErrUpstream is returned when the generation or watermark API rejects a
	// request or reports a failed prediction.
	ErrUpstream = errors.New("generation upstream failure")

	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("generation timed out")

	// ErrCircuitOpen is returned while the circuit for an endpoint is open.
	ErrCircuitOpen = errors.New("generation circuit open")

	// ErrConfiguration is returned for an unusable client configuration.
	ErrConfiguration = errors.New("generation client misconfigured")
)
