// Package validate judges provider findings against the source file they
// claim to describe, and judges applied fixes against the file they
// modified. The provider's claims are never self-certifying: every claimed
// line must be confirmed from the original text.
package validate

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/a11y-audit/internal/model"
	"github.com/sells-group/a11y-audit/internal/wcag"
)

// Fuzzy matching: snippets with more than longSnippetTokens significant
// tokens match when this share of them appears on the claimed line.
const (
	longSnippetTokens = 3
	fuzzyTokenRatio   = 0.6
	significantLen    = 3
)

// Config holds the confidence thresholds. The defaults are heuristic and
// deliberately configurable.
type Config struct {
	// DropBelow removes a finding entirely before surfacing.
	DropBelow float64
	// ValidAt is the is_valid boundary; findings at or above it are
	// eligible for auto-fix.
	ValidAt float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{DropBelow: 0.3, ValidAt: 0.5}
}

// Validator scores findings against source text using exact, fuzzy, and
// guideline-shape matching.
type Validator struct {
	cfg   Config
	table *wcag.PatternTable
}

// New builds a Validator. A nil table falls back to the compiled-in
// pattern defaults.
func New(cfg Config, table *wcag.PatternTable) *Validator {
	if table == nil {
		table = wcag.DefaultPatternTable()
	}
	return &Validator{cfg: cfg, table: table}
}

// Validate scores one finding against the source. It is a pure function
// of the source text and the finding's claims: re-validating against
// unmodified source yields an identical result.
func (v *Validator) Validate(file *model.SourceFile, f model.Finding) model.ValidationResult {
	total := file.TotalLines()

	if len(f.LineNumbers) == 0 {
		return model.ValidationResult{
			IsValid:    false,
			Confidence: 0,
			Notes:      []string{"no line numbers claimed"},
		}
	}

	var notes []string
	matched := 0
	for _, n := range f.LineNumbers {
		line, ok := file.Line(n)
		if !ok {
			notes = append(notes, fmt.Sprintf("line %d out of range [1,%d]", n, total))
			continue
		}

		switch {
		case exactMatch(line, f.CodeSnippet):
			matched++
			notes = append(notes, fmt.Sprintf("line %d: exact match", n))
		case fuzzyMatch(line, f.CodeSnippet):
			matched++
			notes = append(notes, fmt.Sprintf("line %d: fuzzy match", n))
		case v.semanticMatch(line, f.Guideline):
			matched++
			notes = append(notes, fmt.Sprintf("line %d: guideline shape match", n))
		default:
			notes = append(notes, fmt.Sprintf("line %d: claimed content not found", n))
		}
	}

	confidence := float64(matched) / float64(len(f.LineNumbers))
	return model.ValidationResult{
		IsValid:    confidence >= v.cfg.ValidAt,
		Confidence: confidence,
		Notes:      notes,
	}
}

// Filter validates every finding, attaches results, and removes findings
// whose confidence falls below the drop threshold. Static findings arrive
// pre-judged from the sweep and pass through untouched. Returns the kept
// findings and the dropped count.
func (v *Validator) Filter(file *model.SourceFile, findings []model.Finding) ([]model.Finding, int) {
	kept := make([]model.Finding, 0, len(findings))
	dropped := 0

	for _, f := range findings {
		if f.Source == model.SourceStatic && f.Validation != nil {
			kept = append(kept, f)
			continue
		}

		res := v.Validate(file, f)
		f.Validation = &res

		if res.Confidence < v.cfg.DropBelow {
			dropped++
			zap.L().Debug("validate: dropping unconfirmed finding",
				zap.String("issue_id", f.IssueID),
				zap.String("guideline", f.Guideline),
				zap.Float64("confidence", res.Confidence),
			)
			continue
		}
		kept = append(kept, f)
	}

	return kept, dropped
}

// exactMatch reports whether the trimmed snippet appears verbatim on the
// line. Empty snippets never match.
func exactMatch(line, snippet string) bool {
	s := strings.TrimSpace(snippet)
	return s != "" && strings.Contains(line, s)
}

// fuzzyMatch compares Unicode-normalized, case-folded, whitespace-
// collapsed forms. Long snippets match on significant-token overlap;
// short ones must appear whole.
func fuzzyMatch(line, snippet string) bool {
	cs := cleanText(snippet)
	if cs == "" {
		return false
	}
	cl := cleanText(line)

	var sig []string
	for _, tok := range strings.Fields(cs) {
		if len(tok) > significantLen {
			sig = append(sig, tok)
		}
	}

	if len(sig) > longSnippetTokens {
		hits := 0
		for _, tok := range sig {
			if strings.Contains(cl, tok) {
				hits++
			}
		}
		return float64(hits) >= fuzzyTokenRatio*float64(len(sig))
	}

	return strings.Contains(cl, cs)
}

func (v *Validator) semanticMatch(line, guideline string) bool {
	for _, re := range v.table.Presence(guideline) {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// cleanText applies NFKC normalization, lowercases, and collapses runs of
// whitespace to single spaces.
func cleanText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}
