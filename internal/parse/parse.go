// Package parse extracts structured payloads from raw provider text.
// Providers wrap JSON in prose, markdown fences, or nothing at all, so
// extraction runs a ladder of strategies. Parsing never fails with an
// error: a malformed response degrades to an explicit failure result
// carrying a bounded excerpt of the raw text.
package parse

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/a11y-audit/internal/model"
)

// ExcerptLimit bounds how much raw text a failure result retains.
const ExcerptLimit = 500

// DetectionResult is the outcome of extracting findings from one
// detection response. When Failed is set, Findings is empty and
// RawExcerpt holds the head of the unparseable text.
type DetectionResult struct {
	Findings   []model.Finding
	Failed     bool
	RawExcerpt string
}

// RemediationResult is the outcome of extracting a fix payload. A
// response that parses but proposes nothing is a failure too.
type RemediationResult struct {
	Fix        model.Remediation
	Failed     bool
	RawExcerpt string
}

// Detection parses a detection response. The provider-reported issue
// count is ignored; the findings slice is the count.
func Detection(raw string) DetectionResult {
	for _, candidate := range candidates(raw) {
		var payload struct {
			TotalIssues int             `json:"total_issues"`
			Issues      []model.Finding `json:"issues"`
		}
		if err := unmarshalLenient([]byte(candidate), &payload); err == nil {
			if payload.TotalIssues != len(payload.Issues) {
				zap.L().Debug("parse: provider issue count disagrees with payload",
					zap.Int("reported", payload.TotalIssues),
					zap.Int("actual", len(payload.Issues)),
				)
			}
			return DetectionResult{Findings: normalize(payload.Issues)}
		}

		// Some providers return the issue list bare.
		var issues []model.Finding
		if err := unmarshalLenient([]byte(candidate), &issues); err == nil {
			return DetectionResult{Findings: normalize(issues)}
		}
	}

	zap.L().Debug("parse: no strategy extracted detection JSON",
		zap.Int("raw_len", len(raw)),
	)
	return DetectionResult{
		Findings:   []model.Finding{},
		Failed:     true,
		RawExcerpt: Excerpt(raw),
	}
}

// Remediation parses a fix response.
func Remediation(raw string) RemediationResult {
	for _, candidate := range candidates(raw) {
		var payload model.Remediation
		if err := unmarshalLenient([]byte(candidate), &payload); err != nil {
			continue
		}
		if payload.FixedCode == "" && len(payload.Changes) == 0 {
			continue
		}
		return RemediationResult{Fix: payload}
	}

	zap.L().Debug("parse: no strategy extracted remediation JSON",
		zap.Int("raw_len", len(raw)),
	)
	return RemediationResult{
		Failed:     true,
		RawExcerpt: Excerpt(raw),
	}
}

// Excerpt bounds raw text to ExcerptLimit bytes.
func Excerpt(raw string) string {
	if len(raw) <= ExcerptLimit {
		return raw
	}
	return raw[:ExcerptLimit]
}

func normalize(findings []model.Finding) []model.Finding {
	if findings == nil {
		findings = []model.Finding{}
	}
	for i := range findings {
		findings[i].Normalize()
	}
	return findings
}

// candidates yields extraction attempts in strategy order: the whole
// text, the interior of the first fenced block, then the outermost
// balanced brace span.
func candidates(raw string) []string {
	out := []string{strings.TrimSpace(raw)}
	if block, ok := fencedBlock(raw); ok {
		out = append(out, block)
	}
	if span, ok := balancedBraces(raw); ok {
		out = append(out, span)
	}
	return out
}

// fencedBlock returns the interior of the first ``` fence, tolerating an
// optional language tag after the opening fence.
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]

	if nl := strings.Index(rest, "\n"); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag != "" && !strings.ContainsAny(tag, "{}[]") {
			rest = rest[nl+1:]
		}
	}

	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// balancedBraces returns the outermost {...} span, tracking nesting depth
// and ignoring braces inside JSON strings.
func balancedBraces(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// unmarshalLenient tries a strict parse first, then retries with trailing
// commas stripped. The retry only runs on input that already failed.
func unmarshalLenient(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	cleaned := trailingCommaRe.ReplaceAll(data, []byte("$1"))
	if retryErr := json.Unmarshal(cleaned, v); retryErr == nil {
		return nil
	}
	return err
}
