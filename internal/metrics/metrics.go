// Package metrics holds the Prometheus collectors for the preview pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheLookupsTotal counts cache lookups by tier ("hot", "persistent")
	// and result ("hit", "miss", "expired", "error").
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_cache_lookups_total",
			Help: "Preview cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)

	// GenerationCallsTotal counts calls to the external generation service.
	GenerationCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_generation_calls_total",
			Help: "Calls to the external generation service by result.",
		},
		[]string{"result"},
	)

	// InflightJoinsTotal counts requests collapsed onto an already running call.
	InflightJoinsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "preview_inflight_joins_total",
			Help: "Preview requests that joined an identical in-flight request.",
		},
	)

	// StateTransitionsTotal counts orchestrator transitions by target status.
	StateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_state_transitions_total",
			Help: "Preview lifecycle transitions by target status.",
		},
		[]string{"to"},
	)

	// HTTPRequestDuration measures API latency in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method", "status_code"},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheLookupsTotal,
			GenerationCallsTotal,
			InflightJoinsTotal,
			StateTransitionsTotal,
			HTTPRequestDuration,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures latency for each HTTP request. The chi route pattern is
// used as the label so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		HTTPRequestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush lets server-sent event handlers flush through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
