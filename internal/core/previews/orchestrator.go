package previews

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"Artframe/internal/core/generation"
	"Artframe/internal/metrics"
)

// Identity is the requester a session previews for.
type Identity struct {
	UserID  string
	Premium bool
}

// Tier returns the entitlement label recorded with produced artifacts.
func (i Identity) Tier() string {
	if i.Premium {
		return "premium"
	}
	return "free"
}

type styleEntry struct {
	state PreviewState
	// token identifies the current run; results carrying an older token are dropped.
	token uint64
}

// Orchestrator drives the preview lifecycle of every style in one session.
// Runs execute in the background; callers observe them through
// GetPreviewState, Subscribe or Await.
type Orchestrator struct {
	producer Producer
	catalog  *Catalog
	cropper  *Cropper
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	identity    Identity
	orientation Orientation
	source      *SourceImage
	styles      map[string]*styleEntry
	subscribers map[string]map[int]chan PreviewState
	nextSubID   int
	closed      bool
}

// NewOrchestrator creates an orchestrator for one session.
func NewOrchestrator(producer Producer, catalog *Catalog, cropper *Cropper, identity Identity, logger *slog.Logger) (*Orchestrator, error) {
	if producer == nil || catalog == nil || cropper == nil {
		return nil, ErrNilDependency
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		producer:    producer,
		catalog:     catalog,
		cropper:     cropper,
		logger:      logger,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		identity:    identity,
		orientation: DefaultOrientation,
		styles:      make(map[string]*styleEntry),
		subscribers: make(map[string]map[int]chan PreviewState),
	}, nil
}

// RequestPreview starts a preview of styleID and returns the resulting state,
// which is pending for generative styles and settled for the pass-through style.
//
// A non-nil source replaces the session's source image when its digest
// differs. A non-empty orientation different from the live one changes the
// live orientation first, exactly like SetOrientation.
func (o *Orchestrator) RequestPreview(ctx context.Context, styleID string, orientation Orientation, source *SourceImage) (PreviewState, error) {
	if err := ctx.Err(); err != nil {
		return PreviewState{}, err
	}
	style, err := o.catalog.Get(styleID)
	if err != nil {
		return PreviewState{}, err
	}
	if orientation != "" && !orientation.Valid() {
		return PreviewState{}, fmt.Errorf("%w: %q", ErrInvalidOrientation, orientation)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return PreviewState{}, ErrClosed
	}
	if source != nil && (o.source == nil || o.source.Digest != source.Digest) {
		o.replaceSourceLocked(source)
	}
	if o.source == nil {
		return PreviewState{}, ErrNoSource
	}
	if orientation != "" && orientation != o.orientation {
		o.setOrientationLocked(orientation)
	}

	entry := o.entryLocked(style.ID)
	if entry.state.Status.InFlight() && entry.state.Orientation == o.orientation {
		// Already running for the live orientation
		return o.snapshotLocked(entry), nil
	}

	o.startLocked(style, entry)
	return o.snapshotLocked(entry), nil
}

// GetPreviewState returns the current state of styleID.
func (o *Orchestrator) GetPreviewState(styleID string) PreviewState {
	o.mu.Lock()
	defer o.mu.Unlock()

	if entry, ok := o.styles[styleID]; ok {
		return o.snapshotLocked(entry)
	}
	return PreviewState{StyleID: styleID, Status: StatusIdle}
}

// States returns the state of every style the session has touched, by style id.
func (o *Orchestrator) States() []PreviewState {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]PreviewState, 0, len(o.styles))
	for _, entry := range o.styles {
		out = append(out, o.snapshotLocked(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StyleID < out[j].StyleID })
	return out
}

// Orientation returns the live orientation.
func (o *Orchestrator) Orientation() Orientation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.orientation
}

// SetOrientation changes the live orientation. In-flight styles restart for
// the new orientation; settled generative styles become stale until
// requested again; the pass-through style is re-derived immediately.
func (o *Orchestrator) SetOrientation(orientation Orientation) error {
	if !orientation.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOrientation, orientation)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if orientation == o.orientation {
		return nil
	}
	o.setOrientationLocked(orientation)
	return nil
}

// Reset returns every style to idle and drops the source image.
// Results of runs started before the reset are discarded.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
}

// SetIdentity switches the session to another requester. A changed identity
// is a sign-in or sign-out and hard-resets the session.
func (o *Orchestrator) SetIdentity(identity Identity) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if identity == o.identity {
		return
	}
	o.resetLocked()
	o.identity = identity
}

// Identity returns the session's requester.
func (o *Orchestrator) Identity() Identity {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.identity
}

// Subscribe streams the states of styleID, starting with the current one.
// Slow subscribers only miss intermediate states; the latest is always kept.
func (o *Orchestrator) Subscribe(styleID string) (<-chan PreviewState, func()) {
	ch := make(chan PreviewState, 16)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := o.nextSubID
	o.nextSubID++
	if o.subscribers[styleID] == nil {
		o.subscribers[styleID] = make(map[int]chan PreviewState)
	}
	o.subscribers[styleID][id] = ch

	current := PreviewState{StyleID: styleID, Status: StatusIdle}
	if entry, ok := o.styles[styleID]; ok {
		current = o.snapshotLocked(entry)
	}
	ch <- current
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if subs, ok := o.subscribers[styleID]; ok {
				if _, live := subs[id]; live {
					delete(subs, id)
					close(ch)
				}
			}
		})
	}
}

// Await blocks until styleID is idle or settled for the live orientation.
func (o *Orchestrator) Await(ctx context.Context, styleID string) (PreviewState, error) {
	ch, cancel := o.Subscribe(styleID)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return PreviewState{}, ctx.Err()
		case state, ok := <-ch:
			if !ok {
				return PreviewState{}, ErrClosed
			}
			if state.Status == StatusIdle || (state.Status.Settled() && !state.Stale) {
				return state, nil
			}
		}
	}
}

// Close stops accepting requests, ends subscriptions and waits for background runs.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for _, subs := range o.subscribers {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
	}
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) entryLocked(styleID string) *styleEntry {
	entry, ok := o.styles[styleID]
	if !ok {
		entry = &styleEntry{state: PreviewState{StyleID: styleID, Status: StatusIdle}}
		o.styles[styleID] = entry
	}
	return entry
}

// startLocked begins a new run of style for the live orientation.
func (o *Orchestrator) startLocked(style Style, entry *styleEntry) {
	entry.token++
	token := entry.token
	orientation := o.orientation
	source := o.source

	err := o.applyLocked(entry, StatusPending, func(s *PreviewState) {
		s.Orientation = orientation
		s.Artifact = nil
		s.Error = ""
	})
	if err != nil {
		return
	}

	if style.Passthrough {
		cropped, err := o.cropper.Crop(source, orientation)
		if err != nil {
			o.failLocked(entry, err)
			return
		}
		_ = o.applyLocked(entry, StatusReady, func(s *PreviewState) {
			s.Artifact = &ArtifactRef{
				PreviewURL: cropped.DataURI,
				CreatedAt:  o.now(),
				Crop: &CropInfo{
					Orientation: cropped.Orientation,
					Width:       cropped.Width,
					Height:      cropped.Height,
				},
			}
		})
		return
	}

	o.wg.Add(1)
	go o.run(style, token, orientation, source, o.identity)
}

func (o *Orchestrator) run(style Style, token uint64, orientation Orientation, source *SourceImage, identity Identity) {
	defer o.wg.Done()

	cropped, err := o.cropper.Crop(source, orientation)
	if err != nil {
		o.finish(style, token, orientation, nil, err)
		return
	}

	ref, err := o.producer.Produce(o.ctx, ProduceRequest{
		Style:       style,
		Orientation: orientation,
		ImageDigest: source.Digest,
		Image:       cropped.DataURI,
		UserID:      identity.UserID,
		Premium:     identity.Premium,
		Tier:        identity.Tier(),
	}, func(stage Status) {
		o.advance(style.ID, token, orientation, stage)
	})

	o.finish(style, token, orientation, ref, err)
}

// advance applies an intermediate stage reported by the producer.
func (o *Orchestrator) advance(styleID string, token uint64, orientation Orientation, to Status) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.styles[styleID]
	if !ok || o.closed || entry.token != token || orientation != o.orientation {
		return
	}
	if entry.state.Status == to {
		return
	}

	// A request that joined a shared call late may skip stages it never saw
	if entry.state.Status == StatusPending && (to == StatusPolling || to == StatusWatermarking) {
		if err := o.applyLocked(entry, StatusGenerating, nil); err != nil {
			return
		}
	}
	_ = o.applyLocked(entry, to, nil)
}

// finish settles a run. Results of superseded runs are dropped, and a result
// computed for an orientation that is no longer live is never presented:
// the style is re-evaluated for the live orientation instead.
func (o *Orchestrator) finish(style Style, token uint64, orientation Orientation, ref *ArtifactRef, runErr error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.styles[style.ID]
	if !ok || o.closed {
		return
	}
	if entry.token != token {
		o.logger.Debug("[PREVIEW] discarding superseded result",
			"style", style.ID,
			"orientation", string(orientation),
		)
		return
	}
	if orientation != o.orientation {
		o.logger.Info("[PREVIEW] discarding stale-orientation result, re-evaluating",
			"style", style.ID,
			"computed_for", string(orientation),
			"live", string(o.orientation),
		)
		if o.source != nil {
			o.startLocked(style, entry)
		}
		return
	}

	if runErr != nil {
		o.failLocked(entry, runErr)
		return
	}
	_ = o.applyLocked(entry, StatusReady, func(s *PreviewState) {
		s.Artifact = ref
		s.Error = ""
	})
}

func (o *Orchestrator) failLocked(entry *styleEntry, err error) {
	o.logger.Warn("[PREVIEW] preview failed",
		"style", entry.state.StyleID,
		"orientation", string(entry.state.Orientation),
		"error", err,
	)
	_ = o.applyLocked(entry, StatusError, func(s *PreviewState) {
		s.Artifact = nil
		s.Error = errorMessage(err)
	})
}

func (o *Orchestrator) setOrientationLocked(orientation Orientation) {
	o.logger.Debug("[PREVIEW] orientation changed",
		"from", string(o.orientation),
		"to", string(orientation),
	)
	o.orientation = orientation

	for id, entry := range o.styles {
		status := entry.state.Status
		if !status.InFlight() && !status.Settled() {
			continue
		}
		style, err := o.catalog.Get(id)
		if err != nil {
			continue
		}

		switch {
		case status.InFlight() && o.source != nil:
			o.startLocked(style, entry)
		case status.Settled() && style.Passthrough && o.source != nil:
			o.startLocked(style, entry)
		default:
			// Settled for the old orientation: republish so observers see it as stale
			o.publishLocked(id, o.snapshotLocked(entry))
		}
	}
}

func (o *Orchestrator) replaceSourceLocked(source *SourceImage) {
	for _, entry := range o.styles {
		entry.token++
		if entry.state.Status != StatusIdle {
			_ = o.applyLocked(entry, StatusIdle, clearState)
		}
	}
	o.source = source
}

func (o *Orchestrator) resetLocked() {
	for _, entry := range o.styles {
		entry.token++
		if entry.state.Status != StatusIdle {
			_ = o.applyLocked(entry, StatusIdle, clearState)
		}
	}
	o.source = nil
}

func clearState(s *PreviewState) {
	s.Orientation = ""
	s.Artifact = nil
	s.Error = ""
}

// applyLocked moves entry to status to, rejecting transitions outside the table.
func (o *Orchestrator) applyLocked(entry *styleEntry, to Status, mutate func(*PreviewState)) error {
	from := entry.state.Status
	if !CanTransition(from, to) {
		o.logger.Warn("[PREVIEW] rejected illegal transition",
			"style", entry.state.StyleID,
			"from", string(from),
			"to", string(to),
		)
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	entry.state.Status = to
	if mutate != nil {
		mutate(&entry.state)
	}
	entry.state.UpdatedAt = o.now()
	metrics.StateTransitionsTotal.WithLabelValues(string(to)).Inc()

	o.publishLocked(entry.state.StyleID, o.snapshotLocked(entry))
	return nil
}

func (o *Orchestrator) snapshotLocked(entry *styleEntry) PreviewState {
	s := entry.state
	s.Stale = s.Status.Settled() && s.Orientation != o.orientation
	return s
}

func (o *Orchestrator) publishLocked(styleID string, state PreviewState) {
	for _, ch := range o.subscribers[styleID] {
		select {
		case ch <- state:
		default:
			// Drop the oldest queued state so the latest always lands
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}

// errorMessage turns a pipeline error into the message shown to the customer.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, generation.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Generating this preview took too long. Please try again."
	case errors.Is(err, generation.ErrCircuitOpen):
		return "The style generator is temporarily unavailable. Please try again in a minute."
	case errors.Is(err, ErrInvalidSource), errors.Is(err, ErrNoSource):
		return "We couldn't read your photo. Please upload a JPEG, PNG or WebP image."
	case errors.Is(err, ErrUpstream):
		return "We couldn't generate this style for your photo. Please try again."
	case errors.Is(err, ErrStorage), errors.Is(err, ErrConfiguration):
		return "We couldn't save your preview. Please try again."
	case errors.Is(err, context.Canceled):
		return "The preview request was cancelled."
	default:
		return "Something went wrong while creating your preview."
	}
}
