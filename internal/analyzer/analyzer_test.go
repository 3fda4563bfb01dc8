package analyzer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/a11y-audit/internal/cache"
	"github.com/sells-group/a11y-audit/internal/config"
	"github.com/sells-group/a11y-audit/internal/model"
	"github.com/sells-group/a11y-audit/internal/resilience"
	"github.com/sells-group/a11y-audit/pkg/llm"
	llmmocks "github.com/sells-group/a11y-audit/pkg/llm/mocks"
)

// fakeLLM scripts responses per call number. Chunks fan out concurrently,
// so all mutable state sits behind the mutex.
type fakeLLM struct {
	provider llm.Provider
	limit    int

	mu    sync.Mutex
	calls int
	reqs  []llm.Request
	fn    func(call int, req llm.Request) (*llm.Response, error)
}

func (f *fakeLLM) Call(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.reqs = append(f.reqs, req)
	fn := f.fn
	f.mu.Unlock()
	return fn(call, req)
}

func (f *fakeLLM) Provider() llm.Provider {
	if f.provider != "" {
		return f.provider
	}
	return llm.ProviderOpenAI
}

func (f *fakeLLM) PromptLimit() int {
	if f.limit != 0 {
		return f.limit
	}
	return 100_000
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLLM) requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.reqs))
	copy(out, f.reqs)
	return out
}

func respondWith(text string) func(int, llm.Request) (*llm.Response, error) {
	return func(int, llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Text:     text,
			Provider: llm.ProviderOpenAI,
			Model:    "gpt-4o",
			Usage:    llm.Usage{InputTokens: 100, OutputTokens: 50},
			Latency:  10 * time.Millisecond,
		}, nil
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Resilience.Retry = config.RetryConfig{
		MaxAttempts:    1,
		InitialDelayMS: 1,
		MaxDelayMS:     5,
		BackoffBase:    2.0,
		Strategy:       "none",
	}
	cfg.Resilience.Breaker = config.BreakerConfig{
		FailureThreshold:  5,
		RecoveryTimeoutS:  60,
		HalfOpenSuccesses: 2,
	}
	cfg.Chunk = config.ChunkConfig{Lines: 100, ThresholdChars: 2000}
	cfg.Validation = config.ValidationConfig{SurfaceThreshold: 0.3, ValidThreshold: 0.5}
	cfg.Remediation = config.RemediationConfig{ApplyThreshold: 0.7}
	cfg.Analyzer = config.AnalyzerConfig{MaxConcurrentChunks: 4, RateBurst: 1}
	cfg.Cache = config.CacheConfig{TTLHours: 1, MaxEntries: 16}
	cfg.Pricing = config.PricingConfig{
		OpenAI:    map[string]config.ModelPricing{"gpt-4o": {Input: 2.50, Output: 10.00}},
		Replicate: config.ReplicatePricing{PerSecond: 0.0014},
	}
	return cfg
}

func newTestAnalyzer(t *testing.T, cfg *config.Config, backend cache.Backend, clients ...llm.Client) *Analyzer {
	t.Helper()
	registry := llm.NewRegistry()
	for _, c := range clients {
		registry.Register(c)
	}
	a, err := New(cfg, registry, backend)
	require.NoError(t, err)
	return a
}

const htmlSource = "<html>\n<img src=\"logo.png\">\n</html>"

const oneIssueJSON = `{
  "total_issues": 1,
  "issues": [
    {
      "issue_id": "WCAG_1_1_1_001",
      "wcag_guideline": "1.1.1 Non-text Content",
      "severity": "A",
      "line_numbers": [2],
      "description": "Image missing alternative text",
      "impact": "Screen reader users cannot perceive the image",
      "code_snippet": "<img src=\"logo.png\">",
      "recommendation": "Add an alt attribute describing the image",
      "category": "perceivable"
    }
  ],
  "file_info": {"filename": "page.html", "total_lines": 3, "file_type": "html"}
}`

const noIssuesJSON = `{"total_issues": 0, "issues": []}`

func TestAnalyzeSingleFileSuccess(t *testing.T) {
	fake := &fakeLLM{fn: respondWith(oneIssueJSON)}
	a := newTestAnalyzer(t, testConfig(), nil, fake)

	report, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: htmlSource,
		Filename:   "page.html",
		Provider:   "openai",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSuccess, report.Outcome)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "page.html", report.Filename)
	assert.Equal(t, "openai", report.Provider)
	assert.Equal(t, "gpt-4o", report.Model)
	assert.GreaterOrEqual(t, report.DurationMS, int64(0))

	require.Len(t, report.Findings, 1)
	f := report.Findings[0]
	assert.Equal(t, "WCAG_1_1_1_001", f.IssueID)
	assert.Equal(t, []int{2}, f.LineNumbers)
	assert.Zero(t, f.ChunkStart, "unchunked runs leave chunk start unset")
	require.NotNil(t, f.Validation)
	assert.True(t, f.Validation.IsValid)
	assert.InDelta(t, 1.0, f.Validation.Confidence, 1e-9)
	require.NotNil(t, f.Context, "verified findings carry a context window")
	assert.NotEmpty(t, f.Context.Lines)

	assert.Zero(t, report.Dropped)
	assert.Empty(t, report.ChunkFailures)
	assert.Empty(t, report.ParseNotes)
	assert.Equal(t, 1, report.Metrics.TotalIssues)
	assert.Equal(t, 95, report.Metrics.ComplianceScore)

	assert.Equal(t, 100, report.Usage.InputTokens)
	assert.Equal(t, 50, report.Usage.OutputTokens)
	assert.InDelta(t, 100.0/1e6*2.50+50.0/1e6*10.00, report.Usage.Cost, 1e-9)
	assert.InDelta(t, report.Usage.Cost, a.Costs().Total(), 1e-9)

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, "page.html")
	assert.Contains(t, reqs[0].Prompt, `<img src="logo.png">`)
	assert.Contains(t, reqs[0].Prompt, "total_issues")
	assert.Contains(t, reqs[0].System, "accessibility auditor")
}

func TestAnalyzeChunksLargeSource(t *testing.T) {
	line := `<div onclick="go()">press</div>`
	lines := make([]string, 250)
	for i := range lines {
		lines[i] = line
	}
	source := strings.Join(lines, "\n")

	chunkJSON := `{"total_issues":1,"issues":[{"wcag_guideline":"2.1.1 Keyboard","severity":"A",` +
		`"line_numbers":[5],"description":"Click handler without keyboard equivalent",` +
		`"code_snippet":"<div onclick=\"go()\">press</div>",` +
		`"recommendation":"Add a keyboard handler","category":"operable"}]}`

	fake := &fakeLLM{limit: 50, fn: respondWith(chunkJSON)}
	a := newTestAnalyzer(t, testConfig(), nil, fake)

	report, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: source,
		Filename:   "widgets.html",
		Provider:   "openai",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSuccess, report.Outcome)
	assert.Equal(t, 3, fake.callCount(), "250 lines at 100 per chunk is three calls")

	require.Len(t, report.Findings, 3)
	var globals, starts []int
	for _, f := range report.Findings {
		require.Len(t, f.LineNumbers, 1)
		globals = append(globals, f.LineNumbers[0])
		starts = append(starts, f.ChunkStart)
	}
	assert.Equal(t, []int{5, 105, 205}, globals, "claimed lines remap to file-global numbers")
	assert.Equal(t, []int{1, 101, 201}, starts)

	assert.Equal(t, 300, report.Usage.InputTokens, "usage accumulates across chunks")
}

func TestAnalyzeChunkFailureIsolated(t *testing.T) {
	lines := make([]string, 250)
	for i := range lines {
		lines[i] = "ok line"
	}
	lines[149] = "FAIL_MARKER line"
	source := strings.Join(lines, "\n")

	okJSON := `{"total_issues":1,"issues":[{"wcag_guideline":"1.4.3 Contrast (Minimum)","severity":"AA",` +
		`"line_numbers":[5],"description":"Low contrast text","code_snippet":"ok line",` +
		`"recommendation":"Raise the contrast ratio","category":"perceivable"}]}`

	fake := &fakeLLM{limit: 50}
	fake.fn = func(_ int, req llm.Request) (*llm.Response, error) {
		if strings.Contains(req.Prompt, "FAIL_MARKER") {
			return nil, errors.New("bad request: model rejected input")
		}
		return respondWith(okJSON)(0, req)
	}
	a := newTestAnalyzer(t, testConfig(), nil, fake)

	report, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: source,
		Filename:   "mixed.txt",
		Provider:   "openai",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomePartial, report.Outcome)
	require.Len(t, report.ChunkFailures, 1)
	cf := report.ChunkFailures[0]
	assert.Equal(t, 101, cf.StartLine)
	assert.Equal(t, 200, cf.EndLine)
	assert.Equal(t, "permanent", cf.ErrorKind)
	assert.Contains(t, cf.Message, "model rejected input")

	assert.Len(t, report.Findings, 2, "healthy chunks still contribute findings")
	assert.Equal(t, 3, fake.callCount())
}

func TestAnalyzeAllChunksFailedIsFailure(t *testing.T) {
	fake := &fakeLLM{}
	fake.fn = func(int, llm.Request) (*llm.Response, error) {
		return nil, resilience.NewTransientError(errors.New("upstream 503"), 503)
	}
	a := newTestAnalyzer(t, testConfig(), nil, fake)

	report, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: htmlSource,
		Filename:   "page.html",
		Provider:   "openai",
	})
	require.NoError(t, err, "provider failure is a report outcome, not an Analyze error")

	assert.Equal(t, model.OutcomeFailure, report.Outcome)
	assert.Equal(t, "transient", report.ErrorKind)
	assert.Contains(t, report.ErrorMsg, "upstream 503")
	assert.Empty(t, report.Findings)
	require.Len(t, report.ChunkFailures, 1)
}

func TestAnalyzeParseFailureRecorded(t *testing.T) {
	fake := &fakeLLM{fn: respondWith("I'm sorry, I cannot audit this file.")}
	a := newTestAnalyzer(t, testConfig(), nil, fake)

	report, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: htmlSource,
		Filename:   "page.html",
		Provider:   "openai",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSuccess, report.Outcome, "an unparseable answer is not a chunk failure")
	assert.Empty(t, report.ChunkFailures)
	require.Len(t, report.ParseNotes, 1)
	assert.Contains(t, report.ParseNotes[0].RawExcerpt, "I'm sorry")
	assert.Empty(t, report.Findings)
}

func TestAnalyzeBlankSourceSkipsProvider(t *testing.T) {
	fake := &fakeLLM{fn: respondWith(oneIssueJSON)}
	a := newTestAnalyzer(t, testConfig(), nil, fake)

	report, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: "   \n\n\t\n",
		Filename:   "empty.html",
		Provider:   "openai",
	})
	require.NoError(t, err)

	assert.Zero(t, fake.callCount(), "blank sources never reach the provider")
	assert.Equal(t, model.OutcomeSuccess, report.Outcome)
	assert.Empty(t, report.Findings)
	assert.Zero(t, report.Usage.InputTokens)
}

func TestAnalyzeCacheHitSkipsSecondCall(t *testing.T) {
	fake := &fakeLLM{fn: respondWith(oneIssueJSON)}
	a := newTestAnalyzer(t, testConfig(), cache.NewMemory(16), fake)

	req := model.AnalysisRequest{
		SourceText: htmlSource,
		Filename:   "page.html",
		Provider:   "openai",
	}

	first, err := a.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.callCount(), "second run must be served from cache")
	require.Len(t, second.Findings, 1)
	assert.Equal(t, first.Findings[0].IssueID, second.Findings[0].IssueID)
	assert.Zero(t, second.Usage.InputTokens, "cached responses do not accrue usage")
}

func TestAnalyzeStaticSweepMerged(t *testing.T) {
	cfg := testConfig()
	cfg.Analyzer.StaticSweep = true

	fake := &fakeLLM{fn: respondWith(noIssuesJSON)}
	a := newTestAnalyzer(t, cfg, nil, fake)

	source := "<h1>Dashboard</h1>\n<img src=\"logo.png\">"
	report, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: source,
		Filename:   "dash.html",
		Provider:   "openai",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSuccess, report.Outcome)
	require.Len(t, report.Findings, 1)
	f := report.Findings[0]
	assert.Equal(t, model.SourceStatic, f.Source)
	assert.Contains(t, f.Guideline, "1.1.1")
	assert.Equal(t, []int{2}, f.LineNumbers)
	require.NotNil(t, f.Validation)
	assert.InDelta(t, 1.0, f.Validation.Confidence, 1e-9)
}

func TestAnalyzeDropsUnverifiableFindings(t *testing.T) {
	bogus := `{"total_issues":1,"issues":[{"wcag_guideline":"1.1.1 Non-text Content","severity":"A",` +
		`"line_numbers":[99],"description":"Image missing alt text",` +
		`"code_snippet":"<img src=\"ghost.png\">","recommendation":"Add alt","category":"perceivable"}]}`

	fake := &fakeLLM{fn: respondWith(bogus)}
	a := newTestAnalyzer(t, testConfig(), nil, fake)

	report, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: htmlSource,
		Filename:   "page.html",
		Provider:   "openai",
	})
	require.NoError(t, err)

	assert.Empty(t, report.Findings)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, model.OutcomeSuccess, report.Outcome)
}

func TestAnalyzeSortsFindingsByLine(t *testing.T) {
	lines := make([]string, 12)
	for i := range lines {
		lines[i] = "row"
	}
	source := strings.Join(lines, "\n")

	twoIssues := `{"total_issues":2,"issues":[` +
		`{"wcag_guideline":"1.4.3 Contrast (Minimum)","severity":"AA","line_numbers":[10],` +
		`"description":"Low contrast","code_snippet":"row","recommendation":"Fix contrast","category":"perceivable"},` +
		`{"wcag_guideline":"2.1.1 Keyboard","severity":"A","line_numbers":[3],` +
		`"description":"Not keyboard reachable","code_snippet":"row","recommendation":"Add handler","category":"operable"}]}`

	fake := &fakeLLM{fn: respondWith(twoIssues)}
	a := newTestAnalyzer(t, testConfig(), nil, fake)

	report, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: source,
		Filename:   "list.txt",
		Provider:   "openai",
	})
	require.NoError(t, err)

	require.Len(t, report.Findings, 2)
	assert.Equal(t, []int{3}, report.Findings[0].LineNumbers)
	assert.Equal(t, []int{10}, report.Findings[1].LineNumbers)
}

func TestAnalyzeRetriesTransientFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Resilience.Retry.MaxAttempts = 3
	cfg.Resilience.Retry.Strategy = "fixed"

	fake := &fakeLLM{}
	fake.fn = func(call int, req llm.Request) (*llm.Response, error) {
		if call < 3 {
			return nil, resilience.NewTransientError(errors.New("flaky upstream"), 503)
		}
		return respondWith(oneIssueJSON)(call, req)
	}
	a := newTestAnalyzer(t, cfg, nil, fake)

	report, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: htmlSource,
		Filename:   "page.html",
		Provider:   "openai",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, fake.callCount())
	assert.Equal(t, model.OutcomeSuccess, report.Outcome)
	require.Len(t, report.Findings, 1)
	assert.Empty(t, report.ChunkFailures)
}

func TestAnalyzeBreakerOpensAfterRepeatedFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Resilience.Breaker.FailureThreshold = 2

	fake := &fakeLLM{}
	fake.fn = func(int, llm.Request) (*llm.Response, error) {
		return nil, resilience.NewTransientError(errors.New("upstream down"), 503)
	}
	a := newTestAnalyzer(t, cfg, nil, fake)

	req := model.AnalysisRequest{
		SourceText: htmlSource,
		Filename:   "page.html",
		Provider:   "openai",
	}

	for i := 0; i < 2; i++ {
		report, err := a.Analyze(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeFailure, report.Outcome)
	}

	third, err := a.Analyze(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, third.ChunkFailures, 1)
	assert.Equal(t, "circuit_open", third.ChunkFailures[0].ErrorKind)
	assert.Equal(t, 2, fake.callCount(), "open breaker blocks the provider call")
	assert.Equal(t, resilience.CircuitOpen, a.BreakerStates()["openai"])
}

func TestAnalyzeReplicateCostByLatency(t *testing.T) {
	fake := &fakeLLM{provider: llm.ProviderReplicate, limit: 100_000}
	fake.fn = func(int, llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Text:     oneIssueJSON,
			Provider: llm.ProviderReplicate,
			Model:    "meta/llama-2-70b-chat",
			Latency:  2 * time.Second,
		}, nil
	}
	a := newTestAnalyzer(t, testConfig(), nil, fake)

	report, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: htmlSource,
		Filename:   "page.html",
		Provider:   "replicate",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSuccess, report.Outcome)
	assert.InDelta(t, 2*0.0014, report.Usage.Cost, 1e-9, "replicate is billed by prediction runtime")
	assert.InDelta(t, report.Usage.Cost, a.Costs().Total(), 1e-9)
}

func TestAnalyzeForwardsModelHint(t *testing.T) {
	client := llmmocks.NewMockClient(t)
	client.On("Provider").Return(llm.ProviderAnthropic)
	client.On("PromptLimit").Return(100_000)
	client.On("Call", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.ModelHint == "claude-sonnet-4-5" && strings.Contains(req.System, "accessibility auditor")
	})).Return(&llm.Response{
		Text:     noIssuesJSON,
		Provider: llm.ProviderAnthropic,
		Model:    "claude-sonnet-4-5",
		Usage:    llm.Usage{InputTokens: 80, OutputTokens: 20},
		Latency:  5 * time.Millisecond,
	}, nil)
	a := newTestAnalyzer(t, testConfig(), nil, client)

	report, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: htmlSource,
		Filename:   "page.html",
		Provider:   "anthropic",
		ModelHint:  "claude-sonnet-4-5",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSuccess, report.Outcome)
	assert.Equal(t, "claude-sonnet-4-5", report.Model)
}

func TestAnalyzeRejectsUnknownProvider(t *testing.T) {
	a := newTestAnalyzer(t, testConfig(), nil, &fakeLLM{fn: respondWith(oneIssueJSON)})

	_, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: htmlSource,
		Filename:   "page.html",
		Provider:   "gemini",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve provider")
}

func TestAnalyzeRejectsUnregisteredProvider(t *testing.T) {
	a := newTestAnalyzer(t, testConfig(), nil) // empty registry

	_, err := a.Analyze(context.Background(), model.AnalysisRequest{
		SourceText: htmlSource,
		Filename:   "page.html",
		Provider:   "anthropic",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve provider")
}
