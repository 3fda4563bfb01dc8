// Package llm defines the uniform call contract every provider adapter
// implements, plus the registry and rate governor the analyzer uses to
// reach them. Adapters return raw text and metadata only; parsing belongs
// to the caller.
package llm

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// Provider identifies an external LLM service.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderReplicate Provider = "replicate"
)

// CallTimeout bounds one provider call, independent of any retry delays
// around it.
const CallTimeout = 3 * time.Minute

// AllProviders lists every known provider in stable order.
func AllProviders() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek, ProviderReplicate}
}

// ParseProvider resolves a provider name from config or CLI input.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek, ProviderReplicate:
		return p, nil
	}
	return "", eris.Errorf("unknown provider %q", s)
}

// Request is one prompt submission to a provider.
type Request struct {
	// Prompt is the user-role content.
	Prompt string
	// System is the system-role instruction, empty for providers that
	// take none.
	System string
	// ModelHint requests a specific model; adapters may override it for
	// fallback or size reasons.
	ModelHint string
	// MaxTokens caps the response length; zero means the adapter default.
	MaxTokens int
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is raw provider output plus call metadata.
type Response struct {
	Text     string
	Provider Provider
	Model    string
	Usage    Usage
	Latency  time.Duration
}

// Client is the uniform adapter contract: one request, one text response.
// Implementations own their provider's quirks: model fallback lists,
// fragment draining, size-aware model selection, and the per-call
// timeout.
type Client interface {
	// Call submits the prompt and returns the drained text response.
	Call(ctx context.Context, req Request) (*Response, error)
	// Provider identifies which service this adapter fronts.
	Provider() Provider
	// PromptLimit is the adapter's safe prompt size in characters;
	// larger sources are chunked before submission.
	PromptLimit() int
}

// Registry resolves providers to registered adapters.
type Registry struct {
	mu      sync.RWMutex
	clients map[Provider]Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[Provider]Client)}
}

// Register adds an adapter, replacing any previous registration for the
// same provider.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Provider()] = c
}

// Get returns the adapter for a provider.
func (r *Registry) Get(p Provider) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[p]
	if !ok {
		return nil, eris.Errorf("no adapter registered for provider %q", p)
	}
	return c, nil
}

// Providers lists registered providers in stable order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
