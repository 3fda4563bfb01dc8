// Package deepseek adapts the DeepSeek chat completions API, an
// OpenAI-compatible wire format served at api.deepseek.com, to the
// llm.Client contract.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/a11y-audit/internal/resilience"
	"github.com/sells-group/a11y-audit/pkg/llm"
)

const (
	defaultBaseURL     = "https://api.deepseek.com"
	defaultModel       = "deepseek-chat"
	defaultTemperature = 0.1
	defaultMaxTokens   = 4000
	defaultPromptLimit = 24_000
)

// ChatCompletionRequest is the request body for POST /chat/completions.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message represents a single message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the response from POST /chat/completions.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Option configures the adapter.
type Option func(*Adapter)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(a *Adapter) {
		a.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(a *Adapter) {
		a.model = model
	}
}

// WithTemperature overrides the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(a *Adapter) {
		a.temperature = t
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

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Adapter) {
		a.http = hc
	}
}

// Adapter implements llm.Client for DeepSeek.
type Adapter struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	promptLimit int
	timeout     time.Duration
	http        *http.Client
}

// New creates a DeepSeek adapter.
func New(apiKey string, opts ...Option) *Adapter {
	a := &Adapter{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		model:       defaultModel,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		promptLimit: defaultPromptLimit,
		timeout:     llm.CallTimeout,
		http: &http.Client{
			Timeout: llm.CallTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Provider implements llm.Client.
func (a *Adapter) Provider() llm.Provider { return llm.ProviderDeepSeek }

// PromptLimit implements llm.Client.
func (a *Adapter) PromptLimit() int { return a.promptLimit }

// Call implements llm.Client.
func (a *Adapter) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	model := a.model
	if req.ModelHint != "" {
		model = req.ModelHint
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	var msgs []Message
	if req.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, Message{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: a.temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, eris.Wrap(err, "deepseek: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "deepseek: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "deepseek: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "deepseek: read response")
	}

	if err := statusError(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "deepseek: unmarshal response")
	}
	if len(result.Choices) == 0 {
		return nil, eris.Errorf("deepseek: model %s returned no choices", model)
	}

	usedModel := result.Model
	if usedModel == "" {
		usedModel = model
	}
	return &llm.Response{
		Text:     result.Choices[0].Message.Content,
		Provider: llm.ProviderDeepSeek,
		Model:    usedModel,
		Usage: llm.Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
		},
		Latency: time.Since(start),
	}, nil
}

// statusError maps non-200 statuses onto the resilience taxonomy.
// DeepSeek signals an empty balance with 402 and momentary pressure
// with 429.
func statusError(status int, body []byte) error {
	if status == http.StatusOK {
		return nil
	}
	base := eris.Errorf("deepseek: unexpected status %d: %s", status, excerpt(body))
	switch {
	case status == http.StatusPaymentRequired:
		return resilience.NewRateLimitError(base, status, true)
	case status == http.StatusTooManyRequests:
		quota := strings.Contains(strings.ToLower(string(body)), "insufficient")
		return resilience.NewRateLimitError(base, status, quota)
	case resilience.IsTransientHTTPStatus(status):
		return resilience.NewTransientError(base, status)
	default:
		return base
	}
}

func excerpt(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
