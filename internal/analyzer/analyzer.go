// Package analyzer orchestrates accessibility analysis: chunking oversized
// sources, calling providers behind retry and circuit breaking, parsing and
// validating the responses, and assembling the report. One Analyzer owns
// its breakers and rate governor; callers reuse one instance across
// requests.
package analyzer

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/a11y-audit/internal/cache"
	"github.com/sells-group/a11y-audit/internal/chunk"
	"github.com/sells-group/a11y-audit/internal/config"
	"github.com/sells-group/a11y-audit/internal/cost"
	"github.com/sells-group/a11y-audit/internal/model"
	"github.com/sells-group/a11y-audit/internal/parse"
	"github.com/sells-group/a11y-audit/internal/resilience"
	"github.com/sells-group/a11y-audit/internal/validate"
	"github.com/sells-group/a11y-audit/internal/wcag"
	"github.com/sells-group/a11y-audit/pkg/llm"
)

// Analyzer runs accessibility analysis and remediation against registered
// providers.
type Analyzer struct {
	cfg       *config.Config
	registry  *llm.Registry
	breakers  *resilience.ProviderBreakers
	governor  *llm.Governor
	validator *validate.Validator
	cache     cache.Backend
	calc      *cost.Calculator
	tracker   *cost.Tracker
	retry     resilience.RetryConfig
}

// New wires an Analyzer from configuration. A nil cache backend disables
// response caching.
func New(cfg *config.Config, registry *llm.Registry, backend cache.Backend) (*Analyzer, error) {
	table := wcag.DefaultPatternTable()
	if cfg.Validation.PatternFile != "" {
		t, err := wcag.LoadPatternTable(cfg.Validation.PatternFile)
		if err != nil {
			return nil, eris.Wrap(err, "analyzer: load pattern table")
		}
		table = t
	}

	breakerCfg := resilience.FromCircuitConfig(
		cfg.Resilience.Breaker.FailureThreshold,
		cfg.Resilience.Breaker.RecoveryTimeout(),
		cfg.Resilience.Breaker.HalfOpenSuccesses,
	)
	breakers := resilience.NewProviderBreakers(breakerCfg)
	if cfg.Resilience.SharedBreakers {
		breakers = resilience.Shared(breakerCfg)
	}

	if backend == nil {
		backend = cache.Nop{}
	}

	calc := cost.NewCalculator(ratesFrom(cfg.Pricing))

	return &Analyzer{
		cfg:      cfg,
		registry: registry,
		breakers: breakers,
		governor: llm.NewGovernor(cfg.Analyzer.RateRPS, cfg.Analyzer.RateBurst),
		validator: validate.New(validate.Config{
			DropBelow: cfg.Validation.SurfaceThreshold,
			ValidAt:   cfg.Validation.ValidThreshold,
		}, table),
		cache:   backend,
		calc:    calc,
		tracker: cost.NewTracker(calc),
		retry: resilience.FromRetryConfig(
			cfg.Resilience.Retry.MaxAttempts,
			cfg.Resilience.Retry.InitialDelay(),
			cfg.Resilience.Retry.MaxDelay(),
			cfg.Resilience.Retry.BackoffBase,
			cfg.Resilience.Retry.Strategy,
			cfg.Resilience.Retry.Jitter,
		),
	}, nil
}

// Costs exposes the run's accumulated cost tracker.
func (a *Analyzer) Costs() *cost.Tracker { return a.tracker }

// BreakerStates reports the current circuit state per provider.
func (a *Analyzer) BreakerStates() map[string]resilience.CircuitState {
	return a.breakers.States()
}

// chunkOutcome is one chunk's contribution to the report. Exactly one of
// findings, note, or failure is meaningful; blank chunks produce none.
type chunkOutcome struct {
	findings []model.Finding
	note     *model.ParseNote
	failure  *model.ChunkFailure
	usage    model.TokenUsage
	model    string
	skipped  bool
}

// Analyze runs detection for one request. Chunk and provider failures are
// folded into the report outcome; an error return means the request itself
// was unusable (unknown or unregistered provider).
func (a *Analyzer) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.Report, error) {
	provider, err := llm.ParseProvider(req.Provider)
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: resolve provider")
	}
	client, err := a.registry.Get(provider)
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: resolve provider")
	}

	start := time.Now()
	runID := uuid.NewString()
	file := model.NewSourceFile(req.Filename, req.SourceText)
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("file", req.Filename),
		zap.String("provider", req.Provider),
	)

	chunks, chunked := a.plan(req.SourceText, file, client)
	log.Info("analyzer: starting analysis",
		zap.String("file_type", file.FileType),
		zap.Int("total_lines", file.TotalLines()),
		zap.Int("chunks", len(chunks)),
		zap.Bool("chunked", chunked),
	)

	outcomes := make([]chunkOutcome, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Analyzer.MaxConcurrentChunks)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			if c.Blank() {
				outcomes[i] = chunkOutcome{skipped: true}
				return nil
			}
			// Chunk isolation: failures land in the outcome slot, never
			// in the group error.
			outcomes[i] = a.analyzeChunk(gctx, client, req, file, c, chunked)
			return nil
		})
	}
	_ = g.Wait()

	report := a.assemble(runID, req, file, outcomes)
	report.DurationMS = time.Since(start).Milliseconds()

	log.Info("analyzer: analysis complete",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("findings", len(report.Findings)),
		zap.Int("dropped", report.Dropped),
		zap.Int("chunk_failures", len(report.ChunkFailures)),
		zap.Int64("duration_ms", report.DurationMS),
	)
	return report, nil
}

// plan decides the chunk layout: a single whole-file chunk when the source
// fits the provider's window, line chunks otherwise.
func (a *Analyzer) plan(source string, file *model.SourceFile, client llm.Client) ([]chunk.Chunk, bool) {
	threshold := client.PromptLimit()
	if threshold <= 0 {
		threshold = a.cfg.Chunk.ThresholdChars
	}
	if chunk.NeedsChunking(source, threshold) {
		return chunk.Split(file.Lines, a.cfg.Chunk.Lines), true
	}
	return []chunk.Chunk{{StartLine: 1, EndLine: file.TotalLines(), Text: source}}, false
}

// analyzeChunk runs detection for one chunk: cache consult, governed
// provider call behind retry and the provider's breaker, parse, and
// line remapping to file-global numbers.
func (a *Analyzer) analyzeChunk(ctx context.Context, client llm.Client, req model.AnalysisRequest, file *model.SourceFile, c chunk.Chunk, chunked bool) chunkOutcome {
	provider := client.Provider()
	prompt := DetectionPrompt(req.Filename, file.FileType, c.Text)
	key := cache.Key(string(provider), req.ModelHint, prompt)

	if text, ok, cerr := a.cache.Get(ctx, key); cerr != nil {
		zap.L().Debug("analyzer: cache read failed", zap.Error(cerr))
	} else if ok {
		zap.L().Debug("analyzer: cache hit",
			zap.String("provider", string(provider)),
			zap.Int("chunk_start", c.StartLine),
		)
		return a.chunkFromText(text, c, chunked, model.TokenUsage{}, "")
	}

	retryCfg := a.retry
	retryCfg.OnRetry = resilience.RetryLogger(string(provider), "detection")
	cb := a.breakers.Get(string(provider))

	resp, err := resilience.DoVal(ctx, retryCfg, cb, func(ctx context.Context) (*llm.Response, error) {
		if gerr := a.governor.Wait(ctx, provider); gerr != nil {
			return nil, gerr
		}
		return client.Call(ctx, llm.Request{
			Prompt:    prompt,
			System:    auditorSystem,
			ModelHint: req.ModelHint,
		})
	})
	if err != nil {
		zap.L().Warn("analyzer: chunk analysis failed",
			zap.String("provider", string(provider)),
			zap.Int("start_line", c.StartLine),
			zap.Int("end_line", c.EndLine),
			zap.String("kind", resilience.Classify(err)),
			zap.Error(err),
		)
		return chunkOutcome{failure: &model.ChunkFailure{
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			ErrorKind: resilience.Classify(err),
			Message:   err.Error(),
		}}
	}

	if serr := a.cache.Set(ctx, key, resp.Text, a.cfg.Cache.TTL()); serr != nil {
		zap.L().Debug("analyzer: cache write failed", zap.Error(serr))
	}

	usage := a.charge(provider, resp)
	return a.chunkFromText(resp.Text, c, chunked, usage, resp.Model)
}

// chunkFromText parses a raw detection response and remaps claimed lines
// onto the full file.
func (a *Analyzer) chunkFromText(text string, c chunk.Chunk, chunked bool, usage model.TokenUsage, respModel string) chunkOutcome {
	res := parse.Detection(text)
	if res.Failed {
		return chunkOutcome{
			note:  &model.ParseNote{ChunkStart: c.StartLine, RawExcerpt: res.RawExcerpt},
			usage: usage,
			model: respModel,
		}
	}

	for i := range res.Findings {
		f := &res.Findings[i]
		for j, n := range f.LineNumbers {
			f.LineNumbers[j] = c.GlobalLine(n)
		}
		if chunked {
			f.ChunkStart = c.StartLine
		}
	}
	return chunkOutcome{findings: res.Findings, usage: usage, model: respModel}
}

// charge records usage with the tracker and prices it for the report.
// Replicate bills by prediction runtime, approximated here by call latency.
func (a *Analyzer) charge(provider llm.Provider, resp *llm.Response) model.TokenUsage {
	usage := model.TokenUsage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	if provider == llm.ProviderReplicate {
		secs := resp.Latency.Seconds()
		a.tracker.RecordPrediction(string(provider), resp.Model, secs)
		usage.Cost = a.calc.PredictionSeconds(secs)
		return usage
	}
	a.tracker.Record(string(provider), resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	usage.Cost = a.calc.Tokens(string(provider), resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return usage
}

// assemble folds chunk outcomes into the report: merge with the static
// sweep, validate and filter, sort by first claimed line, attach context
// windows, and classify the run outcome.
func (a *Analyzer) assemble(runID string, req model.AnalysisRequest, file *model.SourceFile, outcomes []chunkOutcome) *model.Report {
	report := &model.Report{
		RunID:    runID,
		Filename: req.Filename,
		Provider: req.Provider,
		Model:    req.ModelHint,
	}

	var findings []model.Finding
	attempted := 0
	for _, out := range outcomes {
		if out.skipped {
			continue
		}
		attempted++
		findings = append(findings, out.findings...)
		if out.note != nil {
			report.ParseNotes = append(report.ParseNotes, *out.note)
		}
		if out.failure != nil {
			report.ChunkFailures = append(report.ChunkFailures, *out.failure)
		}
		report.Usage.Add(out.usage)
		if report.Model == req.ModelHint && out.model != "" {
			report.Model = out.model
		}
	}

	if a.cfg.Analyzer.StaticSweep {
		static := wcag.Sweep(file)
		if len(static) > 0 {
			zap.L().Debug("analyzer: static sweep merged",
				zap.String("file", req.Filename),
				zap.Int("findings", len(static)),
			)
			findings = append(findings, static...)
		}
	}

	kept, dropped := a.validator.Filter(file, findings)
	sortByFirstLine(kept)
	for i := range kept {
		ctx := wcag.ExtractContext(file.Lines, kept[i].LineNumbers)
		if len(ctx.Lines) > 0 {
			kept[i].Context = &ctx
		}
	}

	report.Findings = kept
	report.Dropped = dropped
	report.Metrics = model.ComputeMetrics(kept)

	switch {
	case attempted == 0:
		report.Outcome = model.OutcomeSuccess
	case len(report.ChunkFailures) == attempted:
		report.Outcome = model.OutcomeFailure
		report.ErrorKind = report.ChunkFailures[0].ErrorKind
		report.ErrorMsg = report.ChunkFailures[0].Message
	case len(report.ChunkFailures) > 0:
		report.Outcome = model.OutcomePartial
	default:
		report.Outcome = model.OutcomeSuccess
	}
	return report
}

// sortByFirstLine orders findings by their smallest claimed line; findings
// with no claimed lines sort last. The order is stable so equal keys keep
// their merge order (provider findings before static ones).
func sortByFirstLine(findings []model.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return firstLine(findings[i]) < firstLine(findings[j])
	})
}

func firstLine(f model.Finding) int {
	if len(f.LineNumbers) == 0 {
		return int(^uint(0) >> 1)
	}
	min := f.LineNumbers[0]
	for _, n := range f.LineNumbers[1:] {
		if n < min {
			min = n
		}
	}
	return min
}

// ratesFrom converts configured pricing into calculator rates.
func ratesFrom(p config.PricingConfig) cost.Rates {
	conv := func(m map[string]config.ModelPricing) map[string]cost.ModelRate {
		out := make(map[string]cost.ModelRate, len(m))
		for name, rate := range m {
			out[name] = cost.ModelRate{Input: rate.Input, Output: rate.Output}
		}
		return out
	}
	return cost.Rates{
		OpenAI:             conv(p.OpenAI),
		Anthropic:          conv(p.Anthropic),
		DeepSeek:           conv(p.DeepSeek),
		ReplicatePerSecond: p.Replicate.PerSecond,
	}
}
