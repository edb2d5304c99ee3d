package blobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher retrieves source bytes for an upload.
type Fetcher interface {
	// Fetch returns the bytes and the Content-Type reported by the origin.
	Fetch(ctx context.Context, sourceURL string) ([]byte, string, error)
}

// HTTPFetcher fetches artifact sources over HTTP(S).
type HTTPFetcher struct {
	client       *http.Client
	maxSizeBytes int64
}

// DefaultMaxSourceSizeMB is the default maximum source size if not configured.
const DefaultMaxSourceSizeMB = 20

// NewHTTPFetcher creates a fetcher with the given timeout.
// maxSizeMB of 0 uses DefaultMaxSourceSizeMB.
func NewHTTPFetcher(timeout time.Duration, maxSizeMB int) *HTTPFetcher {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSourceSizeMB
	}
	return &HTTPFetcher{
		client:       &http.Client{Timeout: timeout},
		maxSizeBytes: int64(maxSizeMB) * 1024 * 1024,
	}
}

// Fetch downloads sourceURL.
// Returns:
//   - ErrFetchTimeout if the request times out or the context is cancelled
//   - ErrTooLarge if the body exceeds the size limit
//   - ErrFetchFailed for non-2xx responses and any other error
func (f *HTTPFetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to create request: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", "Artframe-Storage/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrFetchTimeout, ctx.Err())
		}
		if isTimeoutError(err) {
			return nil, "", fmt.Errorf("%w: request timed out", ErrFetchTimeout)
		}
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: unexpected status code %d", ErrFetchFailed, resp.StatusCode)
	}

	if resp.ContentLength > f.maxSizeBytes {
		return nil, "", fmt.Errorf("%w: content length %d exceeds maximum %d bytes",
			ErrTooLarge, resp.ContentLength, f.maxSizeBytes)
	}

	// Read one byte past the limit to detect oversize bodies without Content-Length.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSizeBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read response body: %v", ErrFetchFailed, err)
	}
	if int64(len(data)) > f.maxSizeBytes {
		return nil, "", fmt.Errorf("%w: response body exceeds maximum %d bytes", ErrTooLarge, f.maxSizeBytes)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

func isTimeoutError(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}
