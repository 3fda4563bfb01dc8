package model

// Outcome summarizes how an analysis run ended.
type Outcome string

const (
	// OutcomeSuccess means every chunk was analyzed and parsed.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means at least one chunk failed but others produced
	// findings; the per-chunk failures are listed on the report.
	OutcomePartial Outcome = "partial_success"
	// OutcomeFailure means no chunk produced a usable response.
	OutcomeFailure Outcome = "failure"
)

// ChunkFailure records one chunk whose retries were exhausted. Sibling
// chunks are unaffected.
type ChunkFailure struct {
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// ParseNote flags a chunk whose response could not be parsed. The call
// itself succeeded, so this is not a ChunkFailure; the bounded excerpt is
// kept for diagnosis.
type ParseNote struct {
	ChunkStart int    `json:"chunk_start"`
	RawExcerpt string `json:"raw_excerpt"`
}

// TokenUsage tracks token consumption across provider calls.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Cost += other.Cost
}

// Report is the analyzer's result for one AnalysisRequest: the validated,
// confidence-filtered findings plus the run outcome and diagnostics.
type Report struct {
	RunID    string `json:"run_id"`
	Filename string `json:"filename"`
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Findings is ordered by first claimed line. Every entry carries its
	// ValidationResult and clears the surfacing threshold.
	Findings []Finding `json:"findings"`

	// Dropped counts findings removed below the surfacing threshold.
	Dropped int `json:"dropped,omitempty"`

	Outcome   Outcome `json:"outcome"`
	ErrorKind string  `json:"error_kind,omitempty"`
	ErrorMsg  string  `json:"error_msg,omitempty"`

	ChunkFailures []ChunkFailure `json:"chunk_failures,omitempty"`
	ParseNotes    []ParseNote    `json:"parse_notes,omitempty"`

	Metrics    Metrics    `json:"metrics"`
	Usage      TokenUsage `json:"usage"`
	DurationMS int64      `json:"duration_ms"`
}

// Metrics summarizes findings by severity and category with the heuristic
// compliance score.
type Metrics struct {
	TotalIssues       int            `json:"total_issues"`
	SeverityBreakdown map[string]int `json:"severity_breakdown"`
	CategoryBreakdown map[string]int `json:"category_breakdown"`
	ComplianceScore   int            `json:"compliance_score"`
}

// MostAffected returns the category with the highest issue count, or ""
// when no categorized issues exist. Ties break alphabetically so the
// answer is stable.
func (m Metrics) MostAffected() string {
	best, bestCount := "", 0
	for _, cat := range []string{
		CategoryOperable, CategoryPerceivable, CategoryRobust, CategoryUnderstandable,
	} {
		if n := m.CategoryBreakdown[cat]; n > bestCount {
			best, bestCount = cat, n
		}
	}
	return best
}

// ComputeMetrics tallies severity/category breakdowns. The compliance score
// starts at 100 and loses five points per level A or AA issue, floored at 0.
func ComputeMetrics(findings []Finding) Metrics {
	m := Metrics{
		TotalIssues:       len(findings),
		SeverityBreakdown: map[string]int{SeverityA: 0, SeverityAA: 0, SeverityAAA: 0},
		CategoryBreakdown: map[string]int{
			CategoryPerceivable:    0,
			CategoryOperable:       0,
			CategoryUnderstandable: 0,
			CategoryRobust:         0,
		},
		ComplianceScore: 100,
	}

	for _, f := range findings {
		if _, ok := m.SeverityBreakdown[f.Severity]; ok {
			m.SeverityBreakdown[f.Severity]++
		}
		if _, ok := m.CategoryBreakdown[f.Category]; ok {
			m.CategoryBreakdown[f.Category]++
		}
	}

	critical := m.SeverityBreakdown[SeverityA] + m.SeverityBreakdown[SeverityAA]
	score := 100 - critical*5
	if score < 0 {
		score = 0
	}
	m.ComplianceScore = score
	return m
}
