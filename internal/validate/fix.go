package validate

import (
	"fmt"
	"strings"

	"github.com/sells-group/a11y-audit/internal/model"
	"github.com/sells-group/a11y-audit/internal/wcag"
)

// Quality score weights: syntax 30%, issue resolution 40%, measured
// improvement 30%.
const (
	syntaxWeight      = 0.3
	resolutionWeight  = 0.4
	improvementWeight = 0.3
)

// Neutral improvement score when the file type has no static sweep to
// re-run.
const neutralImprovement = 0.5

// CheckFix judges an applied fix for one finding: a heuristic acceptance
// gate, not a proof of correctness. The fixed text is compared against the
// original for resolution patterns the guideline expects, syntax damage,
// and whether a re-run of the static sweep still reports a similar issue.
func (v *Validator) CheckFix(file *model.SourceFile, f model.Finding, fixedText string) model.FixValidation {
	original := strings.Join(file.Lines, "\n")

	fv := model.FixValidation{}
	var notes []string

	fv.SyntaxOK = syntaxValid(file.FileType, fixedText)
	if !fv.SyntaxOK {
		notes = append(notes, fmt.Sprintf("%s syntax check failed", file.FileType))
	}

	resolution := v.resolutionScore(&fv, &notes, original, fixedText, f.Guideline)

	improvement := neutralImprovement
	if sweepSupported(file.FileType) {
		fixedFile := model.NewSourceFile(file.Filename, fixedText)
		remaining := 0
		for _, issue := range wcag.Sweep(fixedFile) {
			if similar(issue, f) {
				remaining++
			}
		}
		if remaining == 0 {
			improvement = 1.0
			fv.Improvement = true
			notes = append(notes, "static recheck: no similar issues remain")
		} else {
			improvement = 0.3
			notes = append(notes, fmt.Sprintf("static recheck: %d similar issues remain", remaining))
		}
	}

	quality := resolutionWeight * resolution
	if fv.SyntaxOK {
		quality += syntaxWeight
	}
	quality += improvementWeight * improvement
	if quality > 1.0 {
		quality = 1.0
	}

	fv.Confidence = resolution
	fv.Quality = quality
	fv.Notes = notes
	return fv
}

// resolutionScore checks whether the fixed text introduces patterns the
// guideline's fixes are expected to introduce. Guidelines without a
// dedicated resolution rule fall back to generic fix markers, which only
// count when the text actually changed.
func (v *Validator) resolutionScore(fv *model.FixValidation, notes *[]string, original, fixed, guideline string) float64 {
	if pats, desc, ok := v.table.Resolution(guideline); ok {
		found := 0
		for _, re := range pats {
			if re.MatchString(fixed) && !re.MatchString(original) {
				found++
			}
		}
		if found > 0 {
			fv.Resolved = true
			*notes = append(*notes, desc)
		}
		return float64(found) / float64(len(pats))
	}

	if fixed == original {
		return 0.1
	}
	lowerOrig := strings.ToLower(original)
	lowerFixed := strings.ToLower(fixed)
	for _, marker := range wcag.FixMarkers {
		m := strings.ToLower(marker)
		if strings.Contains(lowerFixed, m) && !strings.Contains(lowerOrig, m) {
			fv.Resolved = true
			*notes = append(*notes, "generic fix markers detected")
			return 0.5
		}
	}
	return 0.1
}

// similar pairs a re-swept issue with the finding being fixed when they
// share a guideline or overlap on claimed lines.
func similar(issue, f model.Finding) bool {
	if wcag.ExtractID(issue.Guideline) == wcag.ExtractID(f.Guideline) {
		return true
	}
	claimed := make(map[int]bool, len(f.LineNumbers))
	for _, n := range f.LineNumbers {
		claimed[n] = true
	}
	for _, n := range issue.LineNumbers {
		if claimed[n] {
			return true
		}
	}
	return false
}

func sweepSupported(fileType string) bool {
	switch fileType {
	case "html", "css", "xml", "jsx", "tsx":
		return true
	}
	return false
}

// syntaxValid runs the lightweight per-type structural check the fix
// gate relies on. Types without a cheap structural check pass.
func syntaxValid(fileType, content string) bool {
	switch fileType {
	case "xml":
		return wcag.WellFormedXML(content) == nil
	case "javascript", "typescript", "jsx", "tsx", "qml":
		return balancedBrackets(content)
	default:
		return true
	}
}

// balancedBrackets verifies (), [], {} nesting. Brackets inside
// double-quoted or backtick strings and inside // or /* */ comments do
// not count. Single quotes are ignored: apostrophes in comments and JSX
// text would otherwise swallow the rest of the file.
func balancedBrackets(content string) bool {
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}

	var stack []byte
	var quote byte
	inLine, inBlock, escaped := false, false, false

	for i := 0; i < len(content); i++ {
		c := content[i]
		switch {
		case inLine:
			if c == '\n' {
				inLine = false
			}
		case inBlock:
			if c == '*' && i+1 < len(content) && content[i+1] == '/' {
				inBlock = false
				i++
			}
		case quote != 0:
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
		case c == '/' && i+1 < len(content) && content[i+1] == '/':
			inLine = true
			i++
		case c == '/' && i+1 < len(content) && content[i+1] == '*':
			inBlock = true
			i++
		case c == '"' || c == '`':
			quote = c
		case c == '(' || c == '[' || c == '{':
			stack = append(stack, c)
		case c == ')' || c == ']' || c == '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}
