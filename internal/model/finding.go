package model

import (
	"github.com/google/uuid"
)

// WCAG conformance levels, used as finding severity.
const (
	SeverityA   = "A"
	SeverityAA  = "AA"
	SeverityAAA = "AAA"
)

// WCAG principle categories.
const (
	CategoryPerceivable    = "perceivable"
	CategoryOperable       = "operable"
	CategoryUnderstandable = "understandable"
	CategoryRobust         = "robust"
)

// Finding sources.
const (
	SourceLLM    = "llm"
	SourceStatic = "static"
)

// Finding is a single claimed accessibility issue. It arrives unverified
// from a provider (or the static sweep) and carries its validation result
// once the validator has judged it.
type Finding struct {
	IssueID        string `json:"issue_id"`
	Guideline      string `json:"wcag_guideline"`
	Severity       string `json:"severity"`
	LineNumbers    []int  `json:"line_numbers"`
	Description    string `json:"description"`
	Impact         string `json:"impact,omitempty"`
	CodeSnippet    string `json:"code_snippet"`
	Recommendation string `json:"recommendation"`
	Category       string `json:"category"`

	// Source records who produced the finding: llm or static.
	Source string `json:"source,omitempty"`

	// ChunkStart is the 1-based first line of the chunk the finding came
	// from, zero for unchunked analysis. Diagnostic metadata only.
	ChunkStart int `json:"chunk_start,omitempty"`

	// Context is the source window around the claimed lines, attached
	// for reporting.
	Context *CodeContext `json:"code_context,omitempty"`

	Validation *ValidationResult `json:"validation,omitempty"`
}

// ContextLine is one line of extracted source context.
type ContextLine struct {
	Number      int    `json:"number"`
	Content     string `json:"content"`
	Highlighted bool   `json:"highlighted"`
}

// CodeContext is the window of source surrounding a finding's claimed
// lines, with the claimed lines flagged.
type CodeContext struct {
	Lines     []ContextLine `json:"lines"`
	StartLine int           `json:"start_line"`
	EndLine   int           `json:"end_line"`
}

// ValidationResult is the validator's judgment of one finding.
type ValidationResult struct {
	IsValid    bool     `json:"is_valid"`
	Confidence float64  `json:"confidence"`
	Notes      []string `json:"notes,omitempty"`
}

// LowConfidence reports whether the finding sits in the surfaced-but-
// suspect band below the validity threshold.
func (v *ValidationResult) LowConfidence() bool {
	return v != nil && !v.IsValid
}

// Normalize fills defaults the provider omitted: a generated issue ID, the
// baseline severity, and a non-nil line slice. Unknown severities and
// categories collapse to their defaults rather than leaking provider
// vocabulary into reports.
func (f *Finding) Normalize() {
	if f.IssueID == "" {
		f.IssueID = uuid.NewString()
	}
	switch f.Severity {
	case SeverityA, SeverityAA, SeverityAAA:
	default:
		f.Severity = SeverityA
	}
	switch f.Category {
	case CategoryPerceivable, CategoryOperable, CategoryUnderstandable, CategoryRobust:
	default:
		f.Category = ""
	}
	if f.LineNumbers == nil {
		f.LineNumbers = []int{}
	}
	if f.Source == "" {
		f.Source = SourceLLM
	}
}

// FixEligible reports whether the finding's validation confidence clears
// the given fix-eligibility threshold.
func (f *Finding) FixEligible(threshold float64) bool {
	return f.Validation != nil && f.Validation.Confidence >= threshold
}
