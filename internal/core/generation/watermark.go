package generation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WatermarkClient applies the storefront watermark through the external API.
type WatermarkClient struct {
	up      *upstream
	baseURL string
	timeout time.Duration
}

// NewWatermarkClient creates a watermark client. It has its own limiter and
// circuit so watermark outages do not block generation.
func NewWatermarkClient(cfg Config) (*WatermarkClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &WatermarkClient{
		up:      newUpstream(cfg),
		baseURL: strings.TrimSuffix(cfg.watermarkURL(), "/"),
		timeout: cfg.Timeout,
	}, nil
}

type watermarkRequest struct {
	ImageURL string `json:"image_url"`
}

type watermarkResponse struct {
	URL string `json:"url"`
}

// Apply returns the URL of the watermarked copy of artifactURL.
func (w *WatermarkClient) Apply(ctx context.Context, artifactURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var resp watermarkResponse
	if err := w.up.call(ctx, "watermark", http.MethodPost, w.baseURL+"/watermark", "",
		watermarkRequest{ImageURL: artifactURL}, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", fmt.Errorf("%w: watermark response without url", ErrUpstream)
	}
	return resp.URL, nil
}
