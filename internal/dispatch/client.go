package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hubenschmidt/xinqing-companion/internal/httpclient"
	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
	Emotion string `json:"emotion"`
}

// ChatResponse carries exactly one of Response or Error.
type ChatResponse struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ClientConfig configures Client.
type ClientConfig struct {
	URL      string
	APIKey   string
	Timeout  time.Duration
	PoolSize int
}

// Client is the HTTP Backend for the chat service.
type Client struct {
	url    string
	apiKey string
	client *http.Client
}

// NewClient creates a chat backend client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: httpclient.NewPooled(cfg.PoolSize, cfg.Timeout),
	}
}

var errEmptyReply = errors.New("empty response from backend")

func (c *Client) Chat(ctx context.Context, turn Turn) Outcome {
	body, err := json.Marshal(ChatRequest{Message: turn.Text, Emotion: string(turn.Emotion.Category)})
	if err != nil {
		return Outcome{Kind: TransportFailure, Err: fmt.Errorf("marshal chat request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/chat", bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: TransportFailure, Err: fmt.Errorf("create chat request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("dispatch", "http").Inc()
		return Outcome{Kind: TransportFailure, Err: fmt.Errorf("chat request: %w", err)}
	}
	defer resp.Body.Close()

	var result ChatResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.Errors.WithLabelValues("dispatch", "decode").Inc()
		return Outcome{Kind: TransportFailure, Err: fmt.Errorf("chat status %d: decode: %w", resp.StatusCode, err)}
	}

	switch {
	case result.Response != "":
		return Outcome{Kind: Reply, Text: result.Response}
	case result.Error != "":
		return Outcome{Kind: BackendError, Text: result.Error}
	case resp.StatusCode != http.StatusOK:
		return Outcome{Kind: BackendError, Text: fmt.Sprintf("status %d", resp.StatusCode)}
	default:
		return Outcome{Kind: BackendError, Text: errEmptyReply.Error(), Err: errEmptyReply}
	}
}
