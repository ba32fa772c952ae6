package enrich

import (
	"context"
	"errors"

	"github.com/sells-group/healthmap/internal/resilience"
	"github.com/sells-group/healthmap/pkg/anthropic"
	"github.com/sells-group/healthmap/pkg/perplexity"
)

// Request is one single-turn completion.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// Phase labels the call in cost logs.
	Phase string
}

// Completer turns a prompt into raw model text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Provider names a supported LLM backend.
type Provider string

const (
	ProviderAnthropic  Provider = "anthropic"
	ProviderPerplexity Provider = "perplexity"
)

type anthropicCompleter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicCompleter adapts an Anthropic client. Rate limits, overload,
// and server errors are marked transient.
func NewAnthropicCompleter(client anthropic.Client, model string) Completer {
	return &anthropicCompleter{client: client, model: model}
}

func (c *anthropicCompleter) Complete(ctx context.Context, req Request) (string, error) {
	temp := req.Temperature
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   int64(req.MaxTokens),
		System:      []anthropic.SystemBlock{{Text: req.System}},
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		code := anthropic.StatusCode(err)
		return "", resilience.MarkTransient(err, code, anthropic.IsRetryable(err))
	}
	resp.Usage.LogCost(c.model, req.Phase)
	return resp.Text(), nil
}

type chatCompleter struct {
	client perplexity.Client
	model  string
}

// NewPerplexityCompleter adapts an OpenAI-compatible chat completion client.
func NewPerplexityCompleter(client perplexity.Client, model string) Completer {
	return &chatCompleter{client: client, model: model}
}

func (c *chatCompleter) Complete(ctx context.Context, req Request) (string, error) {
	temp, maxTokens := req.Temperature, req.MaxTokens
	resp, err := c.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: c.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		var se *perplexity.StatusError
		if errors.As(err, &se) {
			return "", resilience.MarkTransient(err, se.Code, se.Retryable())
		}
		return "", err
	}
	return resp.Text(), nil
}
