package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/hubenschmidt/xinqing-companion/internal/httpclient"
	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
)

var errNoChoices = errors.New("completion returned no choices")

// OpenAIResponder calls chat completions on any OpenAI-compatible endpoint,
// such as Volcano Ark.
type OpenAIResponder struct {
	client openai.Client
	model  string
}

// NewOpenAIResponder creates a responder for baseURL. An empty baseURL uses
// the OpenAI default.
func NewOpenAIResponder(baseURL, apiKey, model string, timeout time.Duration) *OpenAIResponder {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpclient.NewPooled(10, timeout)),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &OpenAIResponder{client: openai.NewClient(opts...), model: model}
}

func (r *OpenAIResponder) Reply(ctx context.Context, c Completion) (string, error) {
	start := time.Now()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.System),
			openai.UserMessage(c.User),
		},
		Temperature: openai.Float(c.Temperature),
	}
	if c.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.MaxTokens))
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "openai").Inc()
		return "", fmt.Errorf("openai completion: %w", err)
	}
	metrics.LLMDuration.WithLabelValues("openai").Observe(time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
