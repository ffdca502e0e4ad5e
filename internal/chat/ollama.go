package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubenschmidt/xinqing-companion/internal/httpclient"
	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
)

// OllamaResponder calls Ollama's /api/chat without streaming.
type OllamaResponder struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaResponder creates an Ollama HTTP client.
func NewOllamaResponder(url, model string, poolSize int, timeout time.Duration) *OllamaResponder {
	return &OllamaResponder{
		url:    strings.TrimRight(url, "/"),
		model:  model,
		client: httpclient.NewPooled(poolSize, timeout),
	}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

func (o *OllamaResponder) Reply(ctx context.Context, c Completion) (string, error) {
	start := time.Now()

	body, err := json.Marshal(ollamaRequest{
		Model: o.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: c.System},
			{Role: "user", Content: c.User},
		},
		Options: ollamaOptions{Temperature: c.Temperature, NumPredict: c.MaxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, errBody)
	}

	var result ollamaResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama: %s", result.Error)
	}
	metrics.LLMDuration.WithLabelValues("ollama").Observe(time.Since(start).Seconds())
	return result.Message.Content, nil
}
