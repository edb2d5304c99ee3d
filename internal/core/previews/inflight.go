package previews

import (
	"context"
	"sync"
	"time"

	"Artframe/internal/metrics"
)

// sharedFunc is the work behind an in-flight entry. stage reports progress to
// every caller attached to the entry.
type sharedFunc func(ctx context.Context, stage func(Status)) (*ArtifactRef, error)

type inflightCall struct {
	done chan struct{}
	ref  *ArtifactRef
	err  error

	mu        sync.Mutex
	stage     Status
	observers map[int]func(Status)
	nextID    int
}

func (c *inflightCall) observe(fn func(Status)) (id int, current Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id = c.nextID
	c.nextID++
	if fn != nil {
		c.observers[id] = fn
	}
	return id, c.stage
}

func (c *inflightCall) unobserve(id int) {
	c.mu.Lock()
	delete(c.observers, id)
	c.mu.Unlock()
}

func (c *inflightCall) broadcast(s Status) {
	c.mu.Lock()
	c.stage = s
	fns := make([]func(Status), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// inflightRegistry collapses concurrent identical requests onto one shared call.
type inflightRegistry struct {
	mu      sync.Mutex
	calls   map[IdempotencyKey]*inflightCall
	timeout time.Duration
}

func newInflightRegistry(timeout time.Duration) *inflightRegistry {
	return &inflightRegistry{
		calls:   make(map[IdempotencyKey]*inflightCall),
		timeout: timeout,
	}
}

// Do runs fn once per key among concurrent callers and returns its result to
// all of them. joined is true when the caller attached to an existing call.
//
// The shared call runs detached from every caller's cancellation, bounded by
// the registry timeout. A caller whose ctx ends stops waiting; the call keeps
// running for the others. The entry is removed once fn returns.
func (r *inflightRegistry) Do(ctx context.Context, key IdempotencyKey, fn sharedFunc, progress func(Status)) (*ArtifactRef, bool, error) {
	r.mu.Lock()
	call, joined := r.calls[key]
	if !joined {
		call = &inflightCall{
			done:      make(chan struct{}),
			observers: make(map[int]func(Status)),
		}
		r.calls[key] = call
	}
	id, current := call.observe(progress)
	r.mu.Unlock()
	defer call.unobserve(id)

	if joined {
		metrics.InflightJoinsTotal.Inc()
		if progress != nil && current != "" {
			progress(current)
		}
	} else {
		go r.run(ctx, key, call, fn)
	}

	select {
	case <-call.done:
		return call.ref, joined, call.err
	case <-ctx.Done():
		return nil, joined, ctx.Err()
	}
}

func (r *inflightRegistry) run(parent context.Context, key IdempotencyKey, call *inflightCall, fn sharedFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.timeout)
	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.calls, key)
		r.mu.Unlock()
		close(call.done)
	}()

	call.ref, call.err = fn(ctx, call.broadcast)
}

// Len returns the number of calls in flight.
func (r *inflightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
