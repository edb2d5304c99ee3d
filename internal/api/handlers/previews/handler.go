// Package previews provides the HTTP handlers of the preview API.
// Every handler runs behind middleware.RequireSession.
package previews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"Artframe/internal/api/handlers"
	"Artframe/internal/api/middleware"
	"Artframe/internal/core/blobs"
	"Artframe/internal/core/previews"
)

// SessionStore resolves the orchestrator of a session.
// Implemented by *previews.SessionRegistry.
type SessionStore interface {
	Get(sessionID string, identity previews.Identity) (*previews.Orchestrator, error)
}

// Handler serves the preview endpoints.
type Handler struct {
	sessions      SessionStore
	catalog       *previews.Catalog
	fetcher       blobs.Fetcher
	maxBodyBytes  int64
	eventInterval time.Duration
}

// NewHandler creates a preview handler. fetcher downloads image URLs posted
// instead of data URIs; maxBodyBytes bounds request bodies.
func NewHandler(sessions SessionStore, catalog *previews.Catalog, fetcher blobs.Fetcher, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 32 << 20
	}
	return &Handler{
		sessions:      sessions,
		catalog:       catalog,
		fetcher:       fetcher,
		maxBodyBytes:  maxBodyBytes,
		eventInterval: 15 * time.Second,
	}
}

// PreviewRequest is the body of POST /api/previews/{styleID}.
// Image is a data URI or an http(s) URL; it may be omitted once the session
// has a photo.
type PreviewRequest struct {
	Orientation string `json:"orientation,omitempty"`
	Image       string `json:"image,omitempty"`
}

// OrientationRequest is the body of PUT /api/previews/orientation.
type OrientationRequest struct {
	Orientation string `json:"orientation"`
}

// SessionResponse describes every preview of a session.
type SessionResponse struct {
	Orientation previews.Orientation    `json:"orientation"`
	Previews    []previews.PreviewState `json:"previews"`
}

// StylesResponse is the body of GET /api/styles.
type StylesResponse struct {
	Styles       []previews.Style       `json:"styles"`
	Orientations []previews.Orientation `json:"orientations"`
}

// HandleListStyles returns the style catalog.
// GET /api/styles
func (h *Handler) HandleListStyles(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, StylesResponse{
		Styles:       h.catalog.List(),
		Orientations: previews.Orientations(),
	})
}

// HandleRequestPreview starts or joins the preview of a style.
// POST /api/previews/{styleID}
//
// Responds 202 while the preview is being produced and 200 when the returned
// state is already settled.
func (h *Handler) HandleRequestPreview(w http.ResponseWriter, r *http.Request) {
	styleID := chi.URLParam(r, "styleID")
	if _, err := h.catalog.Get(styleID); err != nil {
		handleServiceError(w, err)
		return
	}

	var req PreviewRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}

	var orientation previews.Orientation
	if req.Orientation != "" {
		o, err := previews.ParseOrientation(req.Orientation)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		orientation = o
	}

	var source *previews.SourceImage
	if req.Image != "" {
		src, err := h.loadSource(r.Context(), req.Image)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		source = src
	}

	session, err := h.session(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	state, err := session.RequestPreview(r.Context(), styleID, orientation, source)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusAccepted
	if state.Status.Settled() {
		status = http.StatusOK
	}
	handlers.WriteJSON(w, status, state)
}

// HandleGetPreview returns the state snapshot of a style.
// GET /api/previews/{styleID}
func (h *Handler) HandleGetPreview(w http.ResponseWriter, r *http.Request) {
	styleID := chi.URLParam(r, "styleID")
	if _, err := h.catalog.Get(styleID); err != nil {
		handleServiceError(w, err)
		return
	}

	session, err := h.session(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, session.GetPreviewState(styleID))
}

// HandleListPreviews returns every preview the session has touched.
// GET /api/previews
func (h *Handler) HandleListPreviews(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, SessionResponse{
		Orientation: session.Orientation(),
		Previews:    session.States(),
	})
}

// HandleSetOrientation changes the live orientation of the session.
// PUT /api/previews/orientation
func (h *Handler) HandleSetOrientation(w http.ResponseWriter, r *http.Request) {
	var req OrientationRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}
	orientation, err := previews.ParseOrientation(req.Orientation)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	session, err := h.session(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if err := session.SetOrientation(orientation); err != nil {
		handleServiceError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, SessionResponse{
		Orientation: session.Orientation(),
		Previews:    session.States(),
	})
}

// HandleReset returns every style of the session to idle and drops its photo.
// DELETE /api/previews
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	session.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// HandleEvents streams the state transitions of a style as server-sent events.
// GET /api/previews/{styleID}/events
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	styleID := chi.URLParam(r, "styleID")
	if _, err := h.catalog.Get(styleID); err != nil {
		handleServiceError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		handlers.WriteError(w, http.StatusInternalServerError, "StreamingUnsupported", "Streaming is not supported")
		return
	}

	session, err := h.session(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	states, unsubscribe := session.Subscribe(styleID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(h.eventInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case state, ok := <-states:
			if !ok {
				// Session closed
				_, _ = io.WriteString(w, "event: closed\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, err := json.Marshal(state)
			if err != nil {
				slog.Warn("[API] failed to encode preview event", "style", styleID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) session(r *http.Request) (*previews.Orchestrator, error) {
	return h.sessions.Get(middleware.GetSessionID(r), middleware.GetIdentity(r))
}

// decodeBody decodes a JSON body into v, writing the error response itself.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.WriteError(w, http.StatusRequestEntityTooLarge, "ImageTooLarge", "Request body is too large")
			return err
		}
		if errors.Is(err, io.EOF) {
			// Empty body is an empty request
			return nil
		}
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "Invalid JSON body")
		return err
	}
	return nil
}

// loadSource decodes a data URI or downloads an http(s) image URL.
func (h *Handler) loadSource(ctx context.Context, image string) (*previews.SourceImage, error) {
	var data []byte
	switch {
	case blobs.IsDataURI(image):
		decoded, _, err := blobs.DecodeDataURI(image)
		if err != nil {
			return nil, err
		}
		data = decoded
	case isHTTPURL(image):
		if h.fetcher == nil {
			return nil, fmt.Errorf("%w: image URLs are not accepted", previews.ErrInvalidSource)
		}
		fetched, _, err := h.fetcher.Fetch(ctx, image)
		if err != nil {
			return nil, err
		}
		data = fetched
	default:
		return nil, fmt.Errorf("%w: image must be a data URI or an http(s) URL", previews.ErrInvalidSource)
	}
	return previews.NewSourceImage(data)
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
