package previews

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Artframe/internal/api/middleware"
	"Artframe/internal/core/blobs"
	"Artframe/internal/core/previews"
)

// stubProducer produces https://cdn.test/{style}-{orientation}.png, blocking
// until release is closed when set.
type stubProducer struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (p *stubProducer) Produce(ctx context.Context, req previews.ProduceRequest, progress func(previews.Status)) (*previews.ArtifactRef, error) {
	p.mu.Lock()
	p.calls++
	release := p.release
	p.mu.Unlock()

	progress(previews.StatusGenerating)
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &previews.ArtifactRef{
		PreviewURL:  "https://cdn.test/" + req.Style.ID + "-" + string(req.Orientation) + ".png",
		Watermarked: req.Watermark(),
		CreatedAt:   time.Now(),
	}, nil
}

type testServer struct {
	router   http.Handler
	producer *stubProducer
	registry *previews.SessionRegistry
}

func newTestServer(t *testing.T, limiter *middleware.RateLimiter) *testServer {
	t.Helper()

	producer := &stubProducer{}
	catalog := previews.DefaultCatalog()
	registry := previews.NewSessionRegistry(100, time.Hour, func(identity previews.Identity) (*previews.Orchestrator, error) {
		return previews.NewOrchestrator(producer, catalog, previews.NewCropper(128, 80), identity, nil)
	})
	t.Cleanup(registry.Close)

	h := NewHandler(registry, catalog, blobs.NewHTTPFetcher(5*time.Second, 5), 0)
	h.eventInterval = 50 * time.Millisecond

	r := chi.NewRouter()
	r.Get("/api/styles", h.HandleListStyles)
	r.Route("/api/previews", func(r chi.Router) {
		r.Use(middleware.RequireSession)
		r.Get("/", h.HandleListPreviews)
		r.Delete("/", h.HandleReset)
		r.Put("/orientation", h.HandleSetOrientation)
		r.Get("/{styleID}", h.HandleGetPreview)
		r.Get("/{styleID}/events", h.HandleEvents)
		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Middleware)
			}
			r.Post("/{styleID}", h.HandleRequestPreview)
		})
	})

	return &testServer{router: r, producer: producer, registry: registry}
}

func (s *testServer) do(t *testing.T, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if session != "" {
		req.Header.Set(middleware.SessionIDHeader, session)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pngDataURI(t *testing.T) string {
	t.Helper()
	return blobs.EncodeDataURI("image/png", pngBytes(t, 200, 150))
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) previews.PreviewState {
	t.Helper()
	var state previews.PreviewState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	return state
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func waitReady(t *testing.T, s *testServer, session, styleID string) previews.PreviewState {
	t.Helper()
	var state previews.PreviewState
	require.Eventually(t, func() bool {
		w := s.do(t, http.MethodGet, "/api/previews/"+styleID, session, nil)
		if w.Code != http.StatusOK {
			return false
		}
		state = decodeState(t, w)
		return state.Status == previews.StatusReady
	}, 5*time.Second, 10*time.Millisecond)
	return state
}

func TestHandleListStyles(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/styles", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StylesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, previews.PassthroughStyleID, resp.Styles[0].ID)
	assert.True(t, resp.Styles[0].Passthrough)
	assert.Len(t, resp.Orientations, 3)
}

func TestPreviewRoutes_RequireSession(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/previews/watercolor", "", PreviewRequest{Image: pngDataURI(t)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "SessionRequired", decodeError(t, w))
}

func TestHandleRequestPreview_Passthrough(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/previews/original", "s1", PreviewRequest{
		Orientation: "horizontal",
		Image:       pngDataURI(t),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	state := decodeState(t, w)
	assert.Equal(t, previews.StatusReady, state.Status)
	assert.Equal(t, previews.OrientationHorizontal, state.Orientation)
	require.NotNil(t, state.Artifact)
	assert.True(t, strings.HasPrefix(state.Artifact.PreviewURL, "data:image/jpeg;base64,"))
	assert.Equal(t, 0, s.producer.calls)
}

func TestHandleRequestPreview_Generative(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/previews/watercolor", "s1", PreviewRequest{Image: pngDataURI(t)})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, previews.StatusPending, decodeState(t, w).Status)

	state := waitReady(t, s, "s1", "watercolor")
	assert.Equal(t, "https://cdn.test/watercolor-square.png", state.Artifact.PreviewURL)
	assert.True(t, state.Artifact.Watermarked)

	// The photo is remembered for later requests in the session
	w = s.do(t, http.MethodPost, "/api/previews/pop-art", "s1", PreviewRequest{})
	assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
}

func TestHandleRequestPreview_PremiumHeader(t *testing.T) {
	s := newTestServer(t, nil)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(PreviewRequest{Image: pngDataURI(t)}))
	req := httptest.NewRequest(http.MethodPost, "/api/previews/charcoal", &buf)
	req.Header.Set(middleware.SessionIDHeader, "vip-session")
	req.Header.Set(middleware.UserIDHeader, "user-1")
	req.Header.Set(middleware.UserTierHeader, "premium")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	state := waitReady(t, s, "vip-session", "charcoal")
	assert.False(t, state.Artifact.Watermarked)
}

func TestHandleRequestPreview_ImageURL(t *testing.T) {
	data := pngBytes(t, 120, 90)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer origin.Close()

	s := newTestServer(t, nil)
	w := s.do(t, http.MethodPost, "/api/previews/original", "s1", PreviewRequest{Image: origin.URL + "/photo.png"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, previews.StatusReady, decodeState(t, w).Status)
}

func TestHandleRequestPreview_Errors(t *testing.T) {
	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	tests := []struct {
		name      string
		path      string
		body      any
		wantCode  int
		wantError string
	}{
		{"unknown style", "/api/previews/cubism", PreviewRequest{Image: "x"}, http.StatusNotFound, "UnknownStyle"},
		{"no photo yet", "/api/previews/watercolor", PreviewRequest{}, http.StatusBadRequest, "ImageRequired"},
		{"bad orientation", "/api/previews/watercolor", PreviewRequest{Orientation: "round"}, http.StatusBadRequest, "InvalidOrientation"},
		{"not an image", "/api/previews/watercolor", PreviewRequest{Image: blobs.EncodeDataURI("image/png", []byte("nope"))}, http.StatusBadRequest, "InvalidImage"},
		{"not a URL", "/api/previews/watercolor", PreviewRequest{Image: "ftp://example.com/a.png"}, http.StatusBadRequest, "InvalidImage"},
		{"fetch fails", "/api/previews/watercolor", PreviewRequest{Image: missing.URL + "/a.png"}, http.StatusBadGateway, "ImageFetchFailed"},
		{"malformed body", "/api/previews/watercolor", "{", http.StatusBadRequest, "InvalidRequest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			w := s.do(t, http.MethodPost, tt.path, "s1", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantError, decodeError(t, w))
		})
	}
}

func TestHandleRequestPreview_BodyTooLarge(t *testing.T) {
	s := newTestServer(t, nil)
	h := NewHandler(s.registry, previews.DefaultCatalog(), nil, 64)

	req := httptest.NewRequest(http.MethodPost, "/api/previews/watercolor", strings.NewReader(`{"image":"`+strings.Repeat("a", 200)+`"}`))
	req = req.WithContext(middleware.SetTestSession(req.Context(), "s1", previews.Identity{}))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("styleID", "watercolor")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	h.HandleRequestPreview(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandleSetOrientation(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/previews/watercolor", "s1", PreviewRequest{Image: pngDataURI(t)})
	require.Equal(t, http.StatusAccepted, w.Code)
	waitReady(t, s, "s1", "watercolor")

	w = s.do(t, http.MethodPut, "/api/previews/orientation", "s1", OrientationRequest{Orientation: "vertical"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, previews.OrientationVertical, resp.Orientation)
	require.Len(t, resp.Previews, 1)
	assert.True(t, resp.Previews[0].Stale, "ready preview for the old orientation is stale")

	w = s.do(t, http.MethodPut, "/api/previews/orientation", "s1", OrientationRequest{Orientation: "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListAndReset(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/previews/original", "s1", PreviewRequest{Image: pngDataURI(t)})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/previews", "s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, previews.OrientationSquare, resp.Orientation)
	require.Len(t, resp.Previews, 1)

	w = s.do(t, http.MethodDelete, "/api/previews", "s1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/previews/original", "s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, previews.StatusIdle, decodeState(t, w).Status)

	w = s.do(t, http.MethodPost, "/api/previews/original", "s1", PreviewRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetPreview_SessionsAreIsolated(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/previews/original", "s1", PreviewRequest{Image: pngDataURI(t)})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/previews/original", "s2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, previews.StatusIdle, decodeState(t, w).Status)
}

func TestHandleRequestPreview_RateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, time.Minute)
	defer limiter.Stop()
	s := newTestServer(t, limiter)

	w := s.do(t, http.MethodPost, "/api/previews/original", "s1", PreviewRequest{Image: pngDataURI(t)})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/previews/original", "s1", PreviewRequest{})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Reads are not limited
	w = s.do(t, http.MethodGet, "/api/previews/original", "s1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleEvents(t *testing.T) {
	s := newTestServer(t, nil)
	s.producer.release = make(chan struct{})
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/previews/watercolor/events", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.SessionIDHeader, "s1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	w := s.do(t, http.MethodPost, "/api/previews/watercolor", "s1", PreviewRequest{Image: pngDataURI(t)})
	require.Equal(t, http.StatusAccepted, w.Code)
	close(s.producer.release)

	var statuses []previews.Status
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var state previews.PreviewState
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &state))
		statuses = append(statuses, state.Status)
		if state.Status == previews.StatusReady {
			break
		}
	}

	require.NotEmpty(t, statuses)
	assert.Equal(t, previews.StatusIdle, statuses[0])
	assert.Contains(t, statuses, previews.StatusPending)
	assert.Equal(t, previews.StatusReady, statuses[len(statuses)-1])
}

func TestHandleEvents_UnknownStyle(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/api/previews/cubism/events", "s1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
