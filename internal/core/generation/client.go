package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Prediction statuses reported by the generation API.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Request describes one generation call. Image is the cropped source, usually
// an inline data URI. RequestID is generated when empty and sent as X-Request-ID.
type Request struct {
	StyleID      string `json:"style_id"`
	StyleVersion string `json:"style_version"`
	Image        string `json:"image"`
	AspectRatio  string `json:"aspect_ratio"`
	Quality      string `json:"quality"`
	RequestID    string `json:"request_id"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// outputURL accepts either a single URL or a list of URLs and returns the first.
func (p *prediction) outputURL() (string, error) {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return "", fmt.Errorf("%w: prediction %s succeeded without output", ErrUpstream, p.ID)
	}

	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil && single != "" {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}

	return "", fmt.Errorf("%w: prediction %s has unrecognized output", ErrUpstream, p.ID)
}

// upstream is the HTTP plumbing shared by the generation and watermark clients.
type upstream struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitBreaker
	apiKey     string
}

func newUpstream(cfg Config) *upstream {
	return &upstream{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker:    newCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerOpenDuration),
		apiKey:     cfg.APIKey,
	}
}

// call sends one JSON request and decodes a 2xx response into out.
// endpoint names the circuit; transport errors and 5xx responses count as failures.
func (u *upstream) call(ctx context.Context, endpoint, method, url, requestID string, body, out any) error {
	if err := u.breaker.canAttempt(endpoint); err != nil {
		return err
	}

	// Wait fails early when the next token lands past the deadline.
	if err := u.limiter.Wait(ctx); err != nil {
		if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
			return fmt.Errorf("%w: rate limiter: %v", ErrTimeout, err)
		}
		return timeoutOr(ctx, fmt.Errorf("%w: rate limiter: %v", ErrUpstream, err))
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrConfiguration, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			u.breaker.recordFailure(endpoint, err)
		}
		return timeoutOr(ctx, fmt.Errorf("%w: %s %s: %v", ErrUpstream, method, endpoint, err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		u.breaker.recordFailure(endpoint, err)
		return timeoutOr(ctx, fmt.Errorf("%w: failed to read response: %v", ErrUpstream, err))
	}

	if resp.StatusCode >= 500 {
		err := fmt.Errorf("%w: %s returned status %d", ErrUpstream, endpoint, resp.StatusCode)
		u.breaker.recordFailure(endpoint, err)
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned status %d: %s",
			ErrUpstream, endpoint, resp.StatusCode, truncate(string(respBody), 200))
	}

	u.breaker.recordSuccess(endpoint)

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: invalid %s response: %v", ErrUpstream, endpoint, err)
		}
	}
	return nil
}

// Client drives the external generation API.
type Client struct {
	up           *upstream
	baseURL      string
	timeout      time.Duration
	pollInterval time.Duration
}

// NewClient creates a generation client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		up:           newUpstream(cfg),
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:      cfg.Timeout,
		pollInterval: cfg.PollInterval,
	}, nil
}

// Generate submits a prediction and returns the artifact URL.
// A prediction that is not finished on submit is polled; onPolling is called
// once before the first poll.
func (c *Client) Generate(ctx context.Context, req Request, onPolling func()) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	var pred prediction
	if err := c.up.call(ctx, "predictions", http.MethodPost, c.baseURL+"/predictions", req.RequestID, req, &pred); err != nil {
		return "", err
	}

	slog.Debug("[GENERATION] prediction submitted",
		"prediction_id", pred.ID, "status", pred.Status, "style", req.StyleID, "request_id", req.RequestID)

	if done, url, err := settle(&pred); done {
		return url, err
	}
	if pred.ID == "" {
		return "", fmt.Errorf("%w: pending prediction without id", ErrUpstream)
	}

	if onPolling != nil {
		onPolling()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	pollURL := c.baseURL + "/predictions/" + pred.ID
	for {
		select {
		case <-ctx.Done():
			return "", timeoutOr(ctx, ctx.Err())
		case <-ticker.C:
		}

		if err := c.up.call(ctx, "predictions", http.MethodGet, pollURL, req.RequestID, nil, &pred); err != nil {
			return "", err
		}
		if done, url, err := settle(&pred); done {
			slog.Debug("[GENERATION] prediction settled",
				"prediction_id", pred.ID, "status", pred.Status, "request_id", req.RequestID)
			return url, err
		}
	}
}

// settle reports whether the prediction reached a terminal status.
func settle(p *prediction) (bool, string, error) {
	switch p.Status {
	case StatusSucceeded:
		url, err := p.outputURL()
		return true, url, err
	case StatusFailed, StatusCanceled:
		msg := p.Error
		if msg == "" {
			msg = "no error detail"
		}
		return true, "", fmt.Errorf("%w: prediction %s %s: %s", ErrUpstream, p.ID, p.Status, msg)
	default:
		return false, "", nil
	}
}

// timeoutOr maps a deadline on ctx to ErrTimeout and otherwise returns err.
func timeoutOr(ctx context.Context, err error) error {
	deadline, ok := ctx.Deadline()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (ok && !time.Now().Before(deadline)) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
