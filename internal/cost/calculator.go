package cost

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	OpenAI    map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	DeepSeek  map[string]ModelRate `yaml:"deepseek" mapstructure:"deepseek"`
	// ReplicatePerSecond prices Replicate predictions, which bill by
	// runtime rather than tokens.
	ReplicatePerSecond float64 `yaml:"replicate_per_second" mapstructure:"replicate_per_second"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for LLM API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens computes the cost of one call. Unknown provider/model pairs
// cost zero rather than erroring; accounting never blocks analysis.
func (c *Calculator) Tokens(provider, model string, input, output int) float64 {
	var table map[string]ModelRate
	switch provider {
	case "openai":
		table = c.rates.OpenAI
	case "anthropic":
		table = c.rates.Anthropic
	case "deepseek":
		table = c.rates.DeepSeek
	default:
		return 0
	}
	rate, ok := table[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// PredictionSeconds computes the cost of a Replicate prediction by
// runtime.
func (c *Calculator) PredictionSeconds(secs float64) float64 {
	if secs < 0 {
		return 0
	}
	return secs * c.rates.ReplicatePerSecond
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		OpenAI: map[string]ModelRate{
			"gpt-4o":        {Input: 2.50, Output: 10.00},
			"gpt-4o-mini":   {Input: 0.15, Output: 0.60},
			"gpt-3.5-turbo": {Input: 0.50, Output: 1.50},
		},
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		DeepSeek: map[string]ModelRate{
			"deepseek-chat": {Input: 0.27, Output: 1.10},
		},
		ReplicatePerSecond: 0.0014,
	}
}

// Line is one provider/model row in a usage summary.
type Line struct {
	Provider     string
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	USD          float64
}

// Tracker accumulates usage and cost across the calls of one run. Safe
// for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	calc  *Calculator
	lines map[string]*Line
}

// NewTracker creates a Tracker backed by the given calculator.
func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{calc: calc, lines: make(map[string]*Line)}
}

// Record adds one token-billed call to the running totals.
func (t *Tracker) Record(provider, model string, input, output int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.line(provider, model)
	l.Calls++
	l.InputTokens += input
	l.OutputTokens += output
	l.USD += t.calc.Tokens(provider, model, input, output)
}

// RecordPrediction adds one runtime-billed call to the running totals.
func (t *Tracker) RecordPrediction(provider, model string, secs float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.line(provider, model)
	l.Calls++
	l.USD += t.calc.PredictionSeconds(secs)
}

func (t *Tracker) line(provider, model string) *Line {
	key := provider + "/" + model
	l, ok := t.lines[key]
	if !ok {
		l = &Line{Provider: provider, Model: model}
		t.lines[key] = l
	}
	return l
}

// Total returns the accumulated USD cost across all lines.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum float64
	for _, l := range t.lines {
		sum += l.USD
	}
	return sum
}

// Summary returns per-model lines sorted by provider then model.
func (t *Tracker) Summary() []Line {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Line, 0, len(t.lines))
	for _, l := range t.lines {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Log writes the run summary to the global logger.
func (t *Tracker) Log() {
	for _, l := range t.Summary() {
		zap.L().Info("llm usage",
			zap.String("provider", l.Provider),
			zap.String("model", l.Model),
			zap.Int("calls", l.Calls),
			zap.Int("input_tokens", l.InputTokens),
			zap.Int("output_tokens", l.OutputTokens),
			zap.Float64("usd", l.USD))
	}
	zap.L().Info("llm usage total", zap.Float64("usd", t.Total()))
}
