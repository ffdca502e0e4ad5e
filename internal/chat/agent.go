package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
)

// AgentResponder runs a single-turn agent through the openai-agents-go
// runner against an OpenAI-compatible provider.
type AgentResponder struct {
	provider agents.ModelProvider
	model    string
}

// NewAgentResponder creates a responder that talks to baseURL through the
// chat completions API.
func NewAgentResponder(baseURL, apiKey, model string) *AgentResponder {
	params := agents.OpenAIProviderParams{
		APIKey:       param.NewOpt(apiKey),
		UseResponses: param.NewOpt(false),
	}
	if baseURL != "" {
		params.BaseURL = param.NewOpt(strings.TrimRight(baseURL, "/") + "/")
	}
	return &AgentResponder{provider: agents.NewOpenAIProvider(params), model: model}
}

func (a *AgentResponder) Reply(ctx context.Context, c Completion) (string, error) {
	settings := modelsettings.ModelSettings{Temperature: param.NewOpt(c.Temperature)}
	if c.MaxTokens > 0 {
		settings.MaxTokens = param.NewOpt(int64(c.MaxTokens))
	}
	agent := agents.New("companion").
		WithInstructions(c.System).
		WithModel(a.model).
		WithModelSettings(settings)

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   a.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	start := time.Now()
	events, errCh, err := runner.RunStreamedChan(ctx, agent, c.User)
	if err != nil {
		return "", fmt.Errorf("agent stream start: %w", err)
	}

	var text strings.Builder
	for ev := range events {
		appendDelta(ev, &text)
	}
	if streamErr := <-errCh; streamErr != nil {
		metrics.Errors.WithLabelValues("llm", "agent").Inc()
		return "", fmt.Errorf("agent stream: %w", streamErr)
	}
	metrics.LLMDuration.WithLabelValues("agent").Observe(time.Since(start).Seconds())
	return text.String(), nil
}

func appendDelta(ev agents.StreamEvent, text *strings.Builder) {
	raw, ok := ev.(agents.RawResponsesStreamEvent)
	if !ok || raw.Data.Type != "response.output_text.delta" {
		return
	}
	text.WriteString(raw.Data.Delta)
}
