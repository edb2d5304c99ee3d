package generation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type circuitState int

const (
	stateClosed   circuitState = iota // Normal operation
	stateOpen                         // Endpoint failing, calls rejected
	stateHalfOpen                     // Probing whether the endpoint recovered
)

func (s circuitState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// circuitBreaker tracks consecutive failures per upstream endpoint and stops
// calling an endpoint once it has failed failureThreshold times in a row.
type circuitBreaker struct {
	failures         map[string]int
	lastFailure      map[string]time.Time
	state            map[string]circuitState
	failureThreshold int
	openDuration     time.Duration
	now              func() time.Time
	mu               sync.Mutex
}

func newCircuitBreaker(failureThreshold int, openDuration time.Duration) *circuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if openDuration <= 0 {
		openDuration = time.Minute
	}
	return &circuitBreaker{
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		failures:         make(map[string]int),
		lastFailure:      make(map[string]time.Time),
		state:            make(map[string]circuitState),
		now:              time.Now,
	}
}

// canAttempt returns nil when a call to endpoint may proceed.
// An open circuit moves to half-open once openDuration has elapsed.
func (cb *circuitBreaker) canAttempt(endpoint string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state[endpoint] != stateOpen {
		return nil
	}

	lastFail := cb.lastFailure[endpoint]
	if cb.now().Sub(lastFail) > cb.openDuration {
		cb.state[endpoint] = stateHalfOpen
		slog.Info("[GENERATION-CIRCUIT] circuit half-open", "endpoint", endpoint)
		return nil
	}

	return fmt.Errorf("%w: endpoint %q (failures: %d, next retry: %s)",
		ErrCircuitOpen, endpoint, cb.failures[endpoint],
		lastFail.Add(cb.openDuration).Format("15:04:05"))
}

func (cb *circuitBreaker) recordSuccess(endpoint string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if old := cb.state[endpoint]; old != stateClosed {
		slog.Info("[GENERATION-CIRCUIT] circuit closed", "endpoint", endpoint, "previous", old.String())
	}
	delete(cb.failures, endpoint)
	delete(cb.lastFailure, endpoint)
	cb.state[endpoint] = stateClosed
}

func (cb *circuitBreaker) recordFailure(endpoint string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures[endpoint]++
	cb.lastFailure[endpoint] = cb.now()
	failCount := cb.failures[endpoint]

	// A failed probe reopens immediately
	if failCount >= cb.failureThreshold || cb.state[endpoint] == stateHalfOpen {
		if cb.state[endpoint] != stateOpen {
			slog.Warn("[GENERATION-CIRCUIT] opening circuit",
				"endpoint", endpoint, "failures", failCount, "error", err)
		}
		cb.state[endpoint] = stateOpen
		return
	}

	slog.Warn("[GENERATION-CIRCUIT] upstream failure",
		"endpoint", endpoint, "failures", failCount, "threshold", cb.failureThreshold, "error", err)
}

func (cb *circuitBreaker) currentState(endpoint string) circuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state[endpoint]
}
