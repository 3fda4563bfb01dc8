package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	OpenAI      OpenAIConfig      `yaml:"openai" mapstructure:"openai"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	DeepSeek    DeepSeekConfig    `yaml:"deepseek" mapstructure:"deepseek"`
	Replicate   ReplicateConfig   `yaml:"replicate" mapstructure:"replicate"`
	Resilience  ResilienceConfig  `yaml:"resilience" mapstructure:"resilience"`
	Chunk       ChunkConfig       `yaml:"chunk" mapstructure:"chunk"`
	Validation  ValidationConfig  `yaml:"validation" mapstructure:"validation"`
	Remediation RemediationConfig `yaml:"remediation" mapstructure:"remediation"`
	Analyzer    AnalyzerConfig    `yaml:"analyzer" mapstructure:"analyzer"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Pricing     PricingConfig     `yaml:"pricing" mapstructure:"pricing"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
	// Model is tried first; FallbackModels are tried in order when a
	// call fails on quota or rate-limit errors.
	Model          string   `yaml:"model" mapstructure:"model"`
	FallbackModels []string `yaml:"fallback_models" mapstructure:"fallback_models"`
	MaxTokens      int      `yaml:"max_tokens" mapstructure:"max_tokens"`
	PromptLimit    int      `yaml:"prompt_limit" mapstructure:"prompt_limit"`
}

// AnthropicConfig holds Anthropic API settings. Model serves prompts up
// to PromptLimit characters; larger prompts switch to LargeModel up to
// LargePromptLimit.
type AnthropicConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	Model            string `yaml:"model" mapstructure:"model"`
	LargeModel       string `yaml:"large_model" mapstructure:"large_model"`
	MaxTokens        int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	PromptLimit      int    `yaml:"prompt_limit" mapstructure:"prompt_limit"`
	LargePromptLimit int    `yaml:"large_prompt_limit" mapstructure:"large_prompt_limit"`
}

// DeepSeekConfig holds DeepSeek API settings.
type DeepSeekConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	PromptLimit int     `yaml:"prompt_limit" mapstructure:"prompt_limit"`
}

// ReplicateConfig holds Replicate predictions API settings.
type ReplicateConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Version is the pinned model version hash passed to the
	// predictions endpoint.
	Version      string `yaml:"version" mapstructure:"version"`
	MaxTokens    int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	PromptLimit  int    `yaml:"prompt_limit" mapstructure:"prompt_limit"`
	PollMaxSecs  int    `yaml:"poll_max_secs" mapstructure:"poll_max_secs"`
	PollStepSecs int    `yaml:"poll_step_secs" mapstructure:"poll_step_secs"`
}

// ResilienceConfig configures retry and circuit-breaker behavior shared
// by every provider adapter.
type ResilienceConfig struct {
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Breaker BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
	// SharedBreakers keys breakers by provider in a process-wide
	// registry instead of per-analyzer instances.
	SharedBreakers bool `yaml:"shared_breakers" mapstructure:"shared_breakers"`
}

// RetryConfig configures the retry orchestrator.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialDelayMS int     `yaml:"initial_delay_ms" mapstructure:"initial_delay_ms"`
	MaxDelayMS     int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	BackoffBase    float64 `yaml:"backoff_base" mapstructure:"backoff_base"`
	Strategy       string  `yaml:"strategy" mapstructure:"strategy"`
	Jitter         bool    `yaml:"jitter" mapstructure:"jitter"`
}

// InitialDelay returns the configured initial delay as a duration.
func (r RetryConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMS) * time.Millisecond
}

// MaxDelay returns the configured delay cap as a duration.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// BreakerConfig configures per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold  int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryTimeoutS  int `yaml:"recovery_timeout_secs" mapstructure:"recovery_timeout_secs"`
	HalfOpenSuccesses int `yaml:"half_open_successes" mapstructure:"half_open_successes"`
}

// RecoveryTimeout returns the configured recovery timeout as a duration.
func (b BreakerConfig) RecoveryTimeout() time.Duration {
	return time.Duration(b.RecoveryTimeoutS) * time.Second
}

// ChunkConfig configures source splitting for small context windows.
type ChunkConfig struct {
	Lines          int `yaml:"lines" mapstructure:"lines"`
	ThresholdChars int `yaml:"threshold_chars" mapstructure:"threshold_chars"`
}

// ValidationConfig configures finding validation thresholds.
type ValidationConfig struct {
	// SurfaceThreshold drops findings below it before they are
	// reported at all.
	SurfaceThreshold float64 `yaml:"surface_threshold" mapstructure:"surface_threshold"`
	// ValidThreshold marks findings at or above it valid and
	// fix-eligible.
	ValidThreshold float64 `yaml:"valid_threshold" mapstructure:"valid_threshold"`
	// PatternFile optionally overrides the compiled-in guideline
	// pattern table.
	PatternFile string `yaml:"pattern_file" mapstructure:"pattern_file"`
}

// RemediationConfig configures fix generation and application.
type RemediationConfig struct {
	ApplyThreshold float64 `yaml:"apply_threshold" mapstructure:"apply_threshold"`
}

// AnalyzerConfig configures orchestration behavior.
type AnalyzerConfig struct {
	MaxConcurrentChunks int     `yaml:"max_concurrent_chunks" mapstructure:"max_concurrent_chunks"`
	StaticSweep         bool    `yaml:"static_sweep" mapstructure:"static_sweep"`
	RateRPS             float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
	RateBurst           int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// CacheConfig configures the provider response cache.
type CacheConfig struct {
	// Backend is "memory", "sqlite" or "off".
	Backend  string `yaml:"backend" mapstructure:"backend"`
	Path     string `yaml:"path" mapstructure:"path"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	// MaxEntries bounds the memory backend; oldest entries evict
	// first.
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// TTL returns the configured entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	OpenAI    map[string]ModelPricing `yaml:"openai" mapstructure:"openai"`
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	DeepSeek  map[string]ModelPricing `yaml:"deepseek" mapstructure:"deepseek"`
	Replicate ReplicatePricing        `yaml:"replicate" mapstructure:"replicate"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ReplicatePricing holds Replicate pricing, billed per prediction
// second rather than per token.
type ReplicatePricing struct {
	PerSecond float64 `yaml:"per_second" mapstructure:"per_second"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("a11y-audit")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("A11Y")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.fallback_models", []string{"gpt-4o-mini", "gpt-3.5-turbo"})
	v.SetDefault("openai.max_tokens", 4000)
	v.SetDefault("openai.prompt_limit", 100_000)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.large_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4000)
	v.SetDefault("anthropic.prompt_limit", 200_000)
	v.SetDefault("anthropic.large_prompt_limit", 800_000)
	v.SetDefault("deepseek.base_url", "https://api.deepseek.com")
	v.SetDefault("deepseek.model", "deepseek-chat")
	v.SetDefault("deepseek.temperature", 0.1)
	v.SetDefault("deepseek.max_tokens", 4000)
	v.SetDefault("deepseek.prompt_limit", 24_000)
	v.SetDefault("replicate.base_url", "https://api.replicate.com/v1")
	v.SetDefault("replicate.version", "meta/llama-2-70b-chat:02e509c789964a7ea8736978a43525956ef40397be9033abf9fd2badfe68c9e3")
	v.SetDefault("replicate.max_tokens", 4000)
	v.SetDefault("replicate.prompt_limit", 2000)
	v.SetDefault("replicate.poll_max_secs", 300)
	v.SetDefault("replicate.poll_step_secs", 2)
	v.SetDefault("resilience.retry.max_attempts", 3)
	v.SetDefault("resilience.retry.initial_delay_ms", 1000)
	v.SetDefault("resilience.retry.max_delay_ms", 30_000)
	v.SetDefault("resilience.retry.backoff_base", 2.0)
	v.SetDefault("resilience.retry.strategy", "exponential")
	v.SetDefault("resilience.retry.jitter", true)
	v.SetDefault("resilience.breaker.failure_threshold", 5)
	v.SetDefault("resilience.breaker.recovery_timeout_secs", 60)
	v.SetDefault("resilience.breaker.half_open_successes", 2)
	v.SetDefault("resilience.shared_breakers", false)
	v.SetDefault("chunk.lines", 100)
	v.SetDefault("chunk.threshold_chars", 2000)
	v.SetDefault("validation.surface_threshold", 0.3)
	v.SetDefault("validation.valid_threshold", 0.5)
	v.SetDefault("remediation.apply_threshold", 0.7)
	v.SetDefault("analyzer.max_concurrent_chunks", 4)
	v.SetDefault("analyzer.static_sweep", true)
	v.SetDefault("analyzer.rate_rps", 2.0)
	v.SetDefault("analyzer.rate_burst", 4)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.path", "a11y-cache.db")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("pricing.openai", map[string]ModelPricing{
		"gpt-4o":        {Input: 2.50, Output: 10.00},
		"gpt-4o-mini":   {Input: 0.15, Output: 0.60},
		"gpt-3.5-turbo": {Input: 0.50, Output: 1.50},
	})
	v.SetDefault("pricing.anthropic", map[string]ModelPricing{
		"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
	})
	v.SetDefault("pricing.deepseek", map[string]ModelPricing{
		"deepseek-chat": {Input: 0.27, Output: 1.10},
	})
	v.SetDefault("pricing.replicate.per_second", 0.0014)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields the given mode depends on. Modes map to
// CLI commands: "analyze" and "fix" need a reachable provider plus sane
// thresholds; "guidelines" and "providers" only need structural sanity.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	inUnit := func(v float64) bool { return v >= 0 && v <= 1 }

	check(inUnit(c.Validation.SurfaceThreshold), "validation.surface_threshold must be between 0 and 1")
	check(inUnit(c.Validation.ValidThreshold), "validation.valid_threshold must be between 0 and 1")
	check(inUnit(c.Remediation.ApplyThreshold), "remediation.apply_threshold must be between 0 and 1")
	check(c.Validation.SurfaceThreshold <= c.Validation.ValidThreshold,
		"validation.surface_threshold must not exceed validation.valid_threshold")
	check(c.Chunk.Lines >= 1, "chunk.lines must be >= 1")
	check(c.Resilience.Retry.MaxAttempts >= 1 && c.Resilience.Retry.MaxAttempts <= 10,
		"resilience.retry.max_attempts must be between 1 and 10")
	check(c.Analyzer.MaxConcurrentChunks >= 1 && c.Analyzer.MaxConcurrentChunks <= 32,
		"analyzer.max_concurrent_chunks must be between 1 and 32")

	switch mode {
	case "analyze", "fix":
		anyKey := ResolveKey("openai", c.OpenAI.Key) != "" ||
			ResolveKey("anthropic", c.Anthropic.Key) != "" ||
			ResolveKey("deepseek", c.DeepSeek.Key) != "" ||
			ResolveKey("replicate", c.Replicate.Key) != ""
		check(anyKey, "at least one provider API key is required (config, environment, or keyring)")
	case "guidelines", "providers":
		// Structural checks only.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
