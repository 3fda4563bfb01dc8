// Package openai adapts the OpenAI chat completions API to the llm.Client
// contract. When the active model is rejected for quota or rate-limit
// reasons the adapter walks an ordered fallback list before surfacing the
// failure.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	sdk "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sells-group/a11y-audit/internal/resilience"
	"github.com/sells-group/a11y-audit/pkg/llm"
)

const (
	defaultModel       = "gpt-4o"
	defaultMaxTokens   = 4000
	defaultTemperature = 0.1
	defaultPromptLimit = 100_000
)

// defaultFallbacks are tried in order when a model is rejected for quota
// or rate-limit reasons.
var defaultFallbacks = []string{"gpt-4o-mini", "gpt-3.5-turbo"}

// completions is the slice of the SDK the adapter needs.
type completions interface {
	CreateChatCompletion(ctx context.Context, req sdk.ChatCompletionRequest) (sdk.ChatCompletionResponse, error)
}

// Adapter implements llm.Client for OpenAI.
type Adapter struct {
	api         completions
	baseURL     string
	model       string
	fallbacks   []string
	maxTokens   int
	promptLimit int
	timeout     time.Duration
}

// Option configures the adapter.
type Option func(*Adapter)

// WithModel overrides the primary model.
func WithModel(model string) Option {
	return func(a *Adapter) {
		a.model = model
	}
}

// WithFallbacks replaces the fallback model list.
func WithFallbacks(models []string) Option {
	return func(a *Adapter) {
		a.fallbacks = models
	}
}

// WithMaxTokens caps response length.
func WithMaxTokens(n int) Option {
	return func(a *Adapter) {
		a.maxTokens = n
	}
}

// WithPromptLimit overrides the safe prompt size in characters.
func WithPromptLimit(n int) Option {
	return func(a *Adapter) {
		a.promptLimit = n
	}
}

// WithBaseURL points the SDK at a different endpoint.
func WithBaseURL(url string) Option {
	return func(a *Adapter) {
		a.baseURL = url
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// WithAPI replaces the SDK client.
func WithAPI(api completions) Option {
	return func(a *Adapter) {
		a.api = api
	}
}

// New creates an OpenAI adapter.
func New(apiKey string, opts ...Option) *Adapter {
	a := &Adapter{
		model:       defaultModel,
		fallbacks:   append([]string(nil), defaultFallbacks...),
		maxTokens:   defaultMaxTokens,
		promptLimit: defaultPromptLimit,
		timeout:     llm.CallTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.api == nil {
		if a.baseURL != "" {
			cfg := sdk.DefaultConfig(apiKey)
			cfg.BaseURL = a.baseURL
			a.api = sdk.NewClientWithConfig(cfg)
		} else {
			a.api = sdk.NewClient(apiKey)
		}
	}
	return a
}

// Provider implements llm.Client.
func (a *Adapter) Provider() llm.Provider { return llm.ProviderOpenAI }

// PromptLimit implements llm.Client.
func (a *Adapter) PromptLimit() int { return a.promptLimit }

// Call implements llm.Client. The hinted (or primary) model is tried
// first; quota and rate-limit rejections move on to the next model in
// the ladder, anything else surfaces immediately.
func (a *Adapter) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	start := time.Now()
	var lastErr error
	for _, model := range a.ladder(req.ModelHint) {
		resp, err := a.api.CreateChatCompletion(ctx, chatRequest(model, maxTokens, req))
		if err != nil {
			lastErr = classify(err)
			if resilience.IsRateLimited(lastErr) {
				zap.L().Warn("openai model rejected, trying next",
					zap.String("model", model),
					zap.Error(err))
				continue
			}
			return nil, eris.Wrap(lastErr, "openai: chat completion")
		}
		if len(resp.Choices) == 0 {
			return nil, eris.Errorf("openai: model %s returned no choices", model)
		}

		usedModel := resp.Model
		if usedModel == "" {
			usedModel = model
		}
		return &llm.Response{
			Text:     resp.Choices[0].Message.Content,
			Provider: llm.ProviderOpenAI,
			Model:    usedModel,
			Usage: llm.Usage{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
			},
			Latency: time.Since(start),
		}, nil
	}

	return nil, eris.Wrap(lastErr, "openai: all models exhausted")
}

// ladder returns the models to try in order, the hint (or primary)
// first, without duplicates.
func (a *Adapter) ladder(hint string) []string {
	first := a.model
	if hint != "" {
		first = hint
	}
	out := []string{first}
	for _, m := range a.fallbacks {
		if m != first {
			out = append(out, m)
		}
	}
	return out
}

func chatRequest(model string, maxTokens int, req llm.Request) sdk.ChatCompletionRequest {
	var msgs []sdk.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, sdk.ChatCompletionMessage{
			Role:    sdk.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	msgs = append(msgs, sdk.ChatCompletionMessage{
		Role:    sdk.ChatMessageRoleUser,
		Content: req.Prompt,
	})
	return sdk.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: defaultTemperature,
		MaxTokens:   maxTokens,
	}
}

// classify maps SDK errors onto the resilience taxonomy so the retry
// layer and the fallback ladder can tell rejection kinds apart.
func classify(err error) error {
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		switch {
		case quotaShaped(apiErr):
			return resilience.NewRateLimitError(err, apiErr.HTTPStatusCode, true)
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return resilience.NewRateLimitError(err, apiErr.HTTPStatusCode, false)
		case resilience.IsTransientHTTPStatus(apiErr.HTTPStatusCode):
			return resilience.NewTransientError(err, apiErr.HTTPStatusCode)
		}
		return err
	}

	var reqErr *sdk.RequestError
	if errors.As(err, &reqErr) && resilience.IsTransientHTTPStatus(reqErr.HTTPStatusCode) {
		return resilience.NewTransientError(err, reqErr.HTTPStatusCode)
	}

	// Some proxies and older SDK paths surface plain-text errors.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "insufficient_quota") {
		return resilience.NewRateLimitError(err, 0, true)
	}
	if strings.Contains(msg, "rate_limit") || strings.Contains(msg, "rate limit") {
		return resilience.NewRateLimitError(err, 0, false)
	}
	return err
}

func quotaShaped(apiErr *sdk.APIError) bool {
	if apiErr.Type == "insufficient_quota" {
		return true
	}
	if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "quota")
}
