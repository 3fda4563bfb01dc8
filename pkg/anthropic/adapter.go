package anthropic

import (
	"context"
	"errors"
	"net/http"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/sells-group/a11y-audit/internal/resilience"
	"github.com/sells-group/a11y-audit/pkg/llm"
)

const (
	defaultModel            = "claude-haiku-4-5-20251001"
	defaultLargeModel       = "claude-sonnet-4-5-20250929"
	defaultMaxTokens        = 4000
	defaultTemperature      = 0.1
	defaultPromptLimit      = 200_000
	defaultLargePromptLimit = 800_000

	// statusOverloaded is Anthropic's capacity rejection, retryable
	// like any other 5xx.
	statusOverloaded = 529
)

// Adapter implements llm.Client for Anthropic.
type Adapter struct {
	api              Messages
	model            string
	largeModel       string
	maxTokens        int
	promptLimit      int
	largePromptLimit int
	timeout          time.Duration
}

// Option configures the adapter.
type Option func(*Adapter)

// WithModels sets the standard and large-context models.
func WithModels(model, largeModel string) Option {
	return func(a *Adapter) {
		a.model = model
		a.largeModel = largeModel
	}
}

// WithMaxTokens caps response length.
func WithMaxTokens(n int) Option {
	return func(a *Adapter) {
		a.maxTokens = n
	}
}

// WithPromptLimits sets the character windows for the standard and
// large-context models.
func WithPromptLimits(standard, large int) Option {
	return func(a *Adapter) {
		a.promptLimit = standard
		a.largePromptLimit = large
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// WithMessages replaces the SDK-backed Messages client.
func WithMessages(m Messages) Option {
	return func(a *Adapter) {
		a.api = m
	}
}

// New creates an Anthropic adapter.
func New(apiKey string, opts ...Option) *Adapter {
	a := &Adapter{
		model:            defaultModel,
		largeModel:       defaultLargeModel,
		maxTokens:        defaultMaxTokens,
		promptLimit:      defaultPromptLimit,
		largePromptLimit: defaultLargePromptLimit,
		timeout:          llm.CallTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.api == nil {
		a.api = NewClient(apiKey)
	}
	return a
}

// Provider implements llm.Client.
func (a *Adapter) Provider() llm.Provider { return llm.ProviderAnthropic }

// PromptLimit implements llm.Client. The large window is the real
// ceiling since the adapter switches models itself.
func (a *Adapter) PromptLimit() int { return a.largePromptLimit }

// Call implements llm.Client. Model choice follows prompt size; a
// prompt beyond every window is rejected before any network traffic.
func (a *Adapter) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	model, err := a.selectModel(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}
	temp := defaultTemperature

	start := time.Now()
	resp, err := a.api.CreateMessage(ctx, MessageRequest{
		Model:       model,
		MaxTokens:   int64(maxTokens),
		System:      req.System,
		Messages:    []Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, classify(err)
	}

	return &llm.Response{
		Text:     resp.Text(),
		Provider: llm.ProviderAnthropic,
		Model:    resp.Model,
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
		Latency: time.Since(start),
	}, nil
}

// selectModel returns the model whose window fits the prompt. ModelHint
// wins when it fits the standard window.
func (a *Adapter) selectModel(req llm.Request) (string, error) {
	size := len(req.Prompt) + len(req.System)
	switch {
	case size <= a.promptLimit:
		if req.ModelHint != "" {
			return req.ModelHint, nil
		}
		return a.model, nil
	case size <= a.largePromptLimit:
		zap.L().Debug("prompt exceeds standard window, using large-context model",
			zap.Int("prompt_chars", size),
			zap.String("model", a.largeModel))
		return a.largeModel, nil
	default:
		return "", &resilience.PromptTooLargeError{
			Provider:    string(llm.ProviderAnthropic),
			PromptChars: size,
			LimitChars:  a.largePromptLimit,
		}
	}
}

// classify maps SDK errors onto the resilience taxonomy.
func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return resilience.NewRateLimitError(err, apiErr.StatusCode, false)
		case apiErr.StatusCode == statusOverloaded:
			return resilience.NewTransientError(err, apiErr.StatusCode)
		case resilience.IsTransientHTTPStatus(apiErr.StatusCode):
			return resilience.NewTransientError(err, apiErr.StatusCode)
		}
	}
	return err
}
