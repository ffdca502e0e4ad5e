package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/hubenschmidt/xinqing-companion/internal/httpclient"
	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
)

// ClassifyResult holds a response from the face expression sidecar.
type ClassifyResult struct {
	Face      bool               `json:"face"`
	Scores    map[string]float64 `json:"scores"`
	LatencyMs float64            `json:"latency_ms"`
}

// FaceClient calls the face expression sidecar. Calls go through a circuit
// breaker so a dead sidecar fails fast instead of stalling every tick.
type FaceClient struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// FaceClientConfig configures FaceClient.
type FaceClientConfig struct {
	URL             string
	Timeout         time.Duration
	PoolSize        int
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
}

// NewFaceClient creates a client for the face expression HTTP sidecar.
func NewFaceClient(cfg FaceClientConfig) *FaceClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	failures := cfg.BreakerFailures

	return &FaceClient{
		url:    cfg.URL,
		client: httpclient.NewPooled(cfg.PoolSize, cfg.Timeout),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "face-classifier",
			MaxRequests: 1,
			Timeout:     cfg.BreakerOpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Classify posts one JPEG frame to /expressions.
func (c *FaceClient) Classify(ctx context.Context, jpeg []byte) (Distribution, bool, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, jpeg)
	})
	if err != nil {
		return nil, false, err
	}
	result := out.(*ClassifyResult)
	if !result.Face || len(result.Scores) == 0 {
		return nil, false, nil
	}
	return Distribution(result.Scores), true, nil
}

func (c *FaceClient) post(ctx context.Context, jpeg []byte) (*ClassifyResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/expressions", bytes.NewReader(jpeg))
	if err != nil {
		return nil, fmt.Errorf("classify request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("classify", "http").Inc()
		return nil, fmt.Errorf("classify http: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("classify", "status").Inc()
		return nil, fmt.Errorf("classify status %d: %s", resp.StatusCode, string(body))
	}

	var result ClassifyResult
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("classify decode: %w", err)
	}
	metrics.ClassifyDuration.Observe(time.Since(start).Seconds())
	return &result, nil
}
