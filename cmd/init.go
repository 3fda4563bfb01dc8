package main

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/a11y-audit/internal/analyzer"
	"github.com/sells-group/a11y-audit/internal/cache"
	"github.com/sells-group/a11y-audit/internal/config"
	anthropicpkg "github.com/sells-group/a11y-audit/pkg/anthropic"
	"github.com/sells-group/a11y-audit/pkg/deepseek"
	"github.com/sells-group/a11y-audit/pkg/llm"
	openaipkg "github.com/sells-group/a11y-audit/pkg/openai"
	"github.com/sells-group/a11y-audit/pkg/replicate"
)

// auditEnv holds the analyzer and the resources behind it needed by the
// analyze/fix commands.
type auditEnv struct {
	Analyzer *analyzer.Analyzer
	Registry *llm.Registry
	Cache    cache.Backend
}

// Close releases resources held by the audit environment.
func (e *auditEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
}

// initAudit validates config for the given mode, builds every adapter a
// key could be resolved for, opens the response cache, and wires the
// analyzer. Callers should defer env.Close().
func initAudit(mode string) (*auditEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	registry := buildRegistry(cfg)
	if len(registry.Providers()) == 0 {
		return nil, eris.New("init: no provider API keys available (config, environment, or keyring)")
	}

	backend, err := openCache(cfg)
	if err != nil {
		return nil, err
	}

	a, err := analyzer.New(cfg, registry, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	return &auditEnv{Analyzer: a, Registry: registry, Cache: backend}, nil
}

// buildRegistry constructs an adapter for every provider with a
// resolvable key. Keyless providers are skipped, not errors: a single
// configured provider is a normal setup.
func buildRegistry(c *config.Config) *llm.Registry {
	registry := llm.NewRegistry()

	if key := config.ResolveKey("openai", c.OpenAI.Key); key != "" {
		var opts []openaipkg.Option
		if c.OpenAI.Model != "" {
			opts = append(opts, openaipkg.WithModel(c.OpenAI.Model))
		}
		if len(c.OpenAI.FallbackModels) > 0 {
			opts = append(opts, openaipkg.WithFallbacks(c.OpenAI.FallbackModels))
		}
		if c.OpenAI.MaxTokens > 0 {
			opts = append(opts, openaipkg.WithMaxTokens(c.OpenAI.MaxTokens))
		}
		if c.OpenAI.PromptLimit > 0 {
			opts = append(opts, openaipkg.WithPromptLimit(c.OpenAI.PromptLimit))
		}
		registry.Register(openaipkg.New(key, opts...))
	}

	if key := config.ResolveKey("anthropic", c.Anthropic.Key); key != "" {
		var opts []anthropicpkg.Option
		if c.Anthropic.Model != "" && c.Anthropic.LargeModel != "" {
			opts = append(opts, anthropicpkg.WithModels(c.Anthropic.Model, c.Anthropic.LargeModel))
		}
		if c.Anthropic.MaxTokens > 0 {
			opts = append(opts, anthropicpkg.WithMaxTokens(c.Anthropic.MaxTokens))
		}
		if c.Anthropic.PromptLimit > 0 && c.Anthropic.LargePromptLimit > 0 {
			opts = append(opts, anthropicpkg.WithPromptLimits(c.Anthropic.PromptLimit, c.Anthropic.LargePromptLimit))
		}
		registry.Register(anthropicpkg.New(key, opts...))
	}

	if key := config.ResolveKey("deepseek", c.DeepSeek.Key); key != "" {
		var opts []deepseek.Option
		if c.DeepSeek.BaseURL != "" {
			opts = append(opts, deepseek.WithBaseURL(c.DeepSeek.BaseURL))
		}
		if c.DeepSeek.Model != "" {
			opts = append(opts, deepseek.WithModel(c.DeepSeek.Model))
		}
		if c.DeepSeek.Temperature > 0 {
			opts = append(opts, deepseek.WithTemperature(c.DeepSeek.Temperature))
		}
		if c.DeepSeek.MaxTokens > 0 {
			opts = append(opts, deepseek.WithMaxTokens(c.DeepSeek.MaxTokens))
		}
		if c.DeepSeek.PromptLimit > 0 {
			opts = append(opts, deepseek.WithPromptLimit(c.DeepSeek.PromptLimit))
		}
		registry.Register(deepseek.New(key, opts...))
	}

	if key := config.ResolveKey("replicate", c.Replicate.Key); key != "" {
		var opts []replicate.AdapterOption
		if c.Replicate.BaseURL != "" {
			opts = append(opts, replicate.WithClient(
				replicate.NewClient(key, replicate.WithBaseURL(c.Replicate.BaseURL)),
			))
		}
		if c.Replicate.Version != "" {
			opts = append(opts, replicate.WithVersion(c.Replicate.Version))
		}
		if c.Replicate.MaxTokens > 0 {
			opts = append(opts, replicate.WithMaxNewTokens(c.Replicate.MaxTokens))
		}
		if c.Replicate.PromptLimit > 0 {
			opts = append(opts, replicate.WithPromptLimit(c.Replicate.PromptLimit))
		}
		if c.Replicate.PollMaxSecs > 0 {
			opts = append(opts, replicate.WithTimeout(time.Duration(c.Replicate.PollMaxSecs)*time.Second))
		}
		if c.Replicate.PollStepSecs > 0 {
			opts = append(opts, replicate.WithPollInterval(time.Duration(c.Replicate.PollStepSecs)*time.Second))
		}
		registry.Register(replicate.New(key, opts...))
	}

	zap.L().Debug("provider registry built",
		zap.Int("providers", len(registry.Providers())),
	)
	return registry
}

// openCache constructs the configured response-cache backend. An empty
// backend name means memory; "off" disables caching entirely.
func openCache(c *config.Config) (cache.Backend, error) {
	switch c.Cache.Backend {
	case "", "memory":
		return cache.NewMemory(c.Cache.MaxEntries), nil
	case "sqlite":
		path := c.Cache.Path
		if path == "" {
			path = "a11y-cache.db"
		}
		sc, err := cache.NewSQLite(path)
		if err != nil {
			return nil, eris.Wrap(err, "init: open sqlite cache")
		}
		return sc, nil
	case "off", "none":
		return cache.Nop{}, nil
	default:
		return nil, eris.Errorf("init: unknown cache backend %q", c.Cache.Backend)
	}
}
