package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = 2 * time.Second
	cfg.PollInterval = 5 * time.Millisecond
	cfg.RatePerSecond = 1000
	cfg.Burst = 100
	return cfg
}

func TestGenerate_SynchronousSuccess(t *testing.T) {
	var got Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predictions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":"https://gen.example.com/p1.png"}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.APIKey = "secret"
	client, err := NewClient(cfg)
	require.NoError(t, err)

	polled := false
	url, err := client.Generate(context.Background(), Request{
		StyleID:     "watercolor",
		Image:       "data:image/jpeg;base64,AAAA",
		AspectRatio: "1:1",
		Quality:     "preview",
	}, func() { polled = true })

	require.NoError(t, err)
	assert.Equal(t, "https://gen.example.com/p1.png", url)
	assert.False(t, polled, "a synchronous result never enters polling")
	assert.Equal(t, "watercolor", got.StyleID)
	assert.NotEmpty(t, got.RequestID)
}

func TestGenerate_PollsUntilSucceeded(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"id":"p2","status":"starting"}`))
		case r.URL.Path == "/predictions/p2":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"id":"p2","status":"processing"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"p2","status":"succeeded","output":["https://gen.example.com/p2.png"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	var pollingCalls int
	url, err := client.Generate(context.Background(), Request{StyleID: "oil"}, func() { pollingCalls++ })
	require.NoError(t, err)
	assert.Equal(t, "https://gen.example.com/p2.png", url)
	assert.Equal(t, 1, pollingCalls)
	assert.Equal(t, int32(3), polls.Load())
}

func TestGenerate_FailedPrediction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p3","status":"failed","error":"NSFW content detected"}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{StyleID: "oil"}, nil)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "NSFW content detected")
}

func TestGenerate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p4","status":"processing"}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Timeout = 50 * time.Millisecond
	client, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{StyleID: "oil"}, nil)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGenerate_RateLimitedPastDeadlineIsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p5","status":"succeeded","output":"https://gen.test/p5.png"}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Timeout = 100 * time.Millisecond
	cfg.RatePerSecond = 1
	cfg.Burst = 1
	client, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{StyleID: "oil"}, nil)
	require.NoError(t, err)

	// The next token is a second away, well past the deadline.
	start := time.Now()
	_, err = client.Generate(context.Background(), Request{StyleID: "oil"}, nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrUpstream)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGenerate_ClientErrorDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"bad aspect ratio"}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = client.Generate(context.Background(), Request{StyleID: "oil"}, nil)
		assert.ErrorIs(t, err, ErrUpstream)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
}

func TestGenerate_ServerErrorsOpenCircuit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = client.Generate(context.Background(), Request{StyleID: "oil"}, nil)
		assert.ErrorIs(t, err, ErrUpstream)
	}

	_, err = client.Generate(context.Background(), Request{StyleID: "oil"}, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), calls.Load(), "open circuit must not reach the upstream")
}

func TestGenerate_SucceededWithoutOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p5","status":"succeeded","output":null}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{StyleID: "oil"}, nil)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestWatermark_Apply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/watermark", r.URL.Path)
		var body watermarkRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"url":"` + body.ImageURL + `?wm=1"}`))
	}))
	defer server.Close()

	cfg := testConfig("http://unused.invalid")
	cfg.WatermarkURL = server.URL + "/"
	client, err := NewWatermarkClient(cfg)
	require.NoError(t, err)

	url, err := client.Apply(context.Background(), "https://gen.example.com/p1.png")
	require.NoError(t, err)
	assert.Equal(t, "https://gen.example.com/p1.png?wm=1", url)
}

func TestWatermark_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := NewWatermarkClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Apply(context.Background(), "https://gen.example.com/p1.png")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.BaseURL = ""
	assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)

	_, err := NewClient(cfg)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GENERATION_BASE_URL", "https://gen.example.com")
	t.Setenv("GENERATION_POLL_INTERVAL_MS", "250")
	t.Setenv("GENERATION_TIMEOUT_SECONDS", "-4")

	cfg := ConfigFromEnv()
	assert.Equal(t, "https://gen.example.com", cfg.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.Equal(t, "https://gen.example.com", cfg.watermarkURL())
}
