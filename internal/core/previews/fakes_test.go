package previews

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"Artframe/internal/core/blobs"
	"Artframe/internal/core/previewcache"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeRepository is an in-memory previewcache.Repository that counts calls.
type fakeRepository struct {
	mu        sync.Mutex
	rows      map[string]*previewcache.Record
	upserts   int
	hits      int
	upsertErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{rows: make(map[string]*previewcache.Record)}
}

func (r *fakeRepository) Get(_ context.Context, key string) (*previewcache.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRepository) Upsert(_ context.Context, rec *previewcache.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if r.upsertErr != nil {
		return r.upsertErr
	}
	cp := *rec
	cp.HitCount = 1
	r.rows[rec.CacheKey] = &cp
	return nil
}

func (r *fakeRepository) RecordHit(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
	if rec, ok := r.rows[key]; ok {
		rec.HitCount++
	}
	return nil
}

func (r *fakeRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeRepository) rowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *fakeRepository) counts() (upserts, hits int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts, r.hits
}

// fakeGenerator returns "https://gen.test/{style}/{aspect}.png". Calls for an
// aspect ratio with a gate block until the gate is closed.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   []GenerationRequest
	gates   map[string]chan struct{}
	started chan GenerationRequest
	err     error
	poll    bool
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		gates:   make(map[string]chan struct{}),
		started: make(chan GenerationRequest, 16),
	}
}

func (g *fakeGenerator) gate(aspectRatio string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.gates[aspectRatio] = ch
	return ch
}

func (g *fakeGenerator) Generate(ctx context.Context, req GenerationRequest, onPolling func()) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	gate := g.gates[req.AspectRatio]
	err := g.err
	poll := g.poll
	g.mu.Unlock()

	g.started <- req

	if poll {
		onPolling()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "https://gen.test/" + req.StyleID + "/" + req.AspectRatio + ".png", nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeWatermark struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (w *fakeWatermark) Apply(_ context.Context, artifactURL string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return "", w.err
	}
	return artifactURL + "?wm=1", nil
}

func (w *fakeWatermark) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

type fakeUploader struct {
	mu      sync.Mutex
	sources []string
	err     error
}

func (u *fakeUploader) UploadFromURL(_ context.Context, sourceURL, storagePath string, opts *blobs.UploadOptions) (*blobs.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sources = append(u.sources, sourceURL)
	if u.err != nil {
		return nil, u.err
	}
	if opts != nil && opts.AppendExtension {
		storagePath += ".png"
	}
	return &blobs.UploadResult{
		StoragePath: storagePath,
		PublicURL:   "https://cdn.test/" + storagePath,
		ContentType: "image/png",
	}, nil
}

func (u *fakeUploader) uploadCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.sources)
}

// pipeline bundles a Service with its fakes.
type pipeline struct {
	repo      *fakeRepository
	generator *fakeGenerator
	watermark *fakeWatermark
	uploader  *fakeUploader
	cache     *previewcache.Tiered
	service   *Service
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	p := &pipeline{
		repo:      newFakeRepository(),
		generator: newFakeGenerator(),
		watermark: &fakeWatermark{},
		uploader:  &fakeUploader{},
	}

	cacheCfg := previewcache.DefaultConfig()
	hot := previewcache.NewMemoryHotCache(previewcache.NewMemoryCache[previewcache.Artifact](cacheCfg.MemoryCapacity))
	tiered, err := previewcache.NewTiered(hot, p.repo, cacheCfg, discardLogger)
	require.NoError(t, err)
	p.cache = tiered

	cfg := DefaultConfig()
	cfg.GenerationTimeout = 5 * time.Second
	svc, err := NewService(tiered, p.generator, p.watermark, p.uploader, cfg, discardLogger)
	require.NoError(t, err)
	p.service = svc

	return p
}

func newTestOrchestrator(t *testing.T, producer Producer, identity Identity) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(producer, DefaultCatalog(), NewCropper(256, 80), identity, discardLogger)
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

// testImage encodes a w x h PNG with a gradient so crops differ by orientation.
func testImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testSource(t *testing.T) *SourceImage {
	t.Helper()
	src, err := NewSourceImage(testImage(t, 300, 200))
	require.NoError(t, err)
	return src
}

// waitStatus reads ch until a state with the given status arrives.
func waitStatus(t *testing.T, ch <-chan PreviewState, want Status) PreviewState {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed while waiting for %s", want)
			}
			if s.Status == want {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for status %s", want)
		}
	}
}

// collectUntilSettled returns every status observed until a settled one.
func collectUntilSettled(t *testing.T, ch <-chan PreviewState) []Status {
	t.Helper()
	var seen []Status
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				t.Fatal("subscription closed before settling")
			}
			seen = append(seen, s.Status)
			if s.Status.Settled() {
				return seen
			}
		case <-timeout:
			t.Fatalf("timed out; saw %v", seen)
		}
	}
}

func awaitState(t *testing.T, o *Orchestrator, styleID string) PreviewState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := o.Await(ctx, styleID)
	require.NoError(t, err)
	return state
}

var errGenerationRejected = errors.New("model rejected input")
