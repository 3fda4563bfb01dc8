package wcag

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/sells-group/a11y-audit/internal/model"
)

// Sweep runs the deterministic pattern checks for the file's type and
// returns findings with Source set to static. It complements provider
// analysis; it never replaces it.
func Sweep(file *model.SourceFile) []model.Finding {
	switch file.FileType {
	case "html":
		return sweepHTML(file.Lines)
	case "css":
		return sweepCSS(file.Lines)
	case "xml":
		return sweepXML(file.Lines)
	case "jsx", "tsx":
		return sweepReact(file.Lines)
	default:
		return nil
	}
}

var (
	imgTagRe    = regexp.MustCompile(`(?i)<img\b[^>]*>?`)
	altAttrRe   = regexp.MustCompile(`(?i)\balt\s*=`)
	inputTagRe  = regexp.MustCompile(`(?i)<input\b[^>]*>?`)
	skipInputRe = regexp.MustCompile(`(?i)\btype\s*=\s*["']?(hidden|submit|button)`)
	ariaLabelRe = regexp.MustCompile(`(?i)\baria-label(ledby)?\s*=`)
	idAttrRe    = regexp.MustCompile(`(?i)\bid\s*=\s*["']([^"']+)["']`)
	labelForRe  = regexp.MustCompile(`(?i)<label\b[^>]*\bfor\s*=\s*["']([^"']+)["']`)
	headingRe   = regexp.MustCompile(`(?i)<h[1-6][\s>]`)
)

func sweepHTML(lines []string) []model.Finding {
	var findings []model.Finding

	// Label targets are collected up front so inputs can be checked against
	// labels declared anywhere in the document.
	labelled := make(map[string]bool)
	for _, line := range lines {
		for _, m := range labelForRe.FindAllStringSubmatch(line, -1) {
			labelled[m[1]] = true
		}
	}

	seq := 0
	hasHeading := false
	for i, line := range lines {
		n := i + 1
		if headingRe.MatchString(line) {
			hasHeading = true
		}

		for _, tag := range imgTagRe.FindAllString(line, -1) {
			if altAttrRe.MatchString(tag) {
				continue
			}
			findings = append(findings, staticFinding(
				fmt.Sprintf("STATIC_1_1_1_%03d", seq),
				"1.1.1", n, tag,
				"Image missing alt attribute",
				"Add descriptive alt attribute to image",
			))
			seq++
		}

		for _, tag := range inputTagRe.FindAllString(line, -1) {
			if skipInputRe.MatchString(tag) || ariaLabelRe.MatchString(tag) {
				continue
			}
			if m := idAttrRe.FindStringSubmatch(tag); m != nil && labelled[m[1]] {
				continue
			}
			findings = append(findings, staticFinding(
				fmt.Sprintf("STATIC_3_3_2_%03d", seq),
				"3.3.2", n, tag,
				"Form input missing associated label",
				"Add label element or aria-label attribute",
			))
			seq++
		}
	}

	if !hasHeading && len(lines) > 0 {
		findings = append(findings, staticFinding(
			"STATIC_2_4_6_001",
			"2.4.6", 1, "<!-- No headings found in document -->",
			"No heading elements found, document structure is flat",
			"Add heading elements (h1-h6) to structure content",
		))
	}

	return findings
}

var focusStyleRe = regexp.MustCompile(`:focus\b|focus-visible`)

func sweepCSS(lines []string) []model.Finding {
	for _, line := range lines {
		if focusStyleRe.MatchString(line) {
			return nil
		}
	}
	return []model.Finding{staticFinding(
		"STATIC_2_4_7_001",
		"2.4.7", 1, "/* No :focus styles found */",
		"No focus indicators defined in stylesheet",
		"Add visible focus indicators for interactive elements",
	)}
}

var (
	imageViewRe   = regexp.MustCompile(`<(\w+[.:])?(ImageView|Image)\b`)
	contentDescRe = regexp.MustCompile(`(?i)contentDescription\s*[=:]`)
	touchableRe   = regexp.MustCompile(`<(\w+[.:])?(\w*Button|CheckBox)\b`)
	targetSizeRe  = regexp.MustCompile(`(?i)(48dp|match_parent)`)
)

// sweepXML covers Android layout XML. Tag-level checks run per line;
// well-formedness runs over the whole document.
func sweepXML(lines []string) []model.Finding {
	var findings []model.Finding

	for i, line := range lines {
		n := i + 1
		if imageViewRe.MatchString(line) && !contentDescRe.MatchString(line) {
			findings = append(findings, staticFinding(
				fmt.Sprintf("STATIC_1_1_1_XML_%03d", n),
				"1.1.1", n, strings.TrimSpace(line),
				"Image element missing contentDescription",
				"Add a content description for non-text content",
			))
		}
		if touchableRe.MatchString(line) && !targetSizeRe.MatchString(line) {
			findings = append(findings, staticFinding(
				fmt.Sprintf("STATIC_2_5_8_XML_%03d", n),
				"2.5.8", n, strings.TrimSpace(line),
				"Touch target may be too small",
				"Ensure touch targets are at least 48dp",
			))
		}
	}

	if err := WellFormedXML(strings.Join(lines, "\n")); err != nil {
		findings = append(findings, staticFinding(
			"STATIC_4_1_1_XML_001",
			"4.1.1", 1, "<!-- XML parsing error -->",
			fmt.Sprintf("XML parsing error: %v", err),
			"Fix XML syntax errors",
		))
	}

	return findings
}

// WellFormedXML walks the document's tokens and returns the first
// structural error, or nil for a well-formed document.
func WellFormedXML(doc string) error {
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

var (
	mapCallRe   = regexp.MustCompile(`\.map\(`)
	keyPropRe   = regexp.MustCompile(`\bkey\s*=`)
	onClickRe   = regexp.MustCompile(`onClick\s*=`)
	keyboardRe  = regexp.MustCompile(`onKey(Down|Press)\s*=`)
	reactWindow = 3
)

func sweepReact(lines []string) []model.Finding {
	var findings []model.Finding

	for i, line := range lines {
		n := i + 1

		// A key prop within a few lines of the map call counts as present.
		if mapCallRe.MatchString(line) {
			end := i + reactWindow
			if end > len(lines)-1 {
				end = len(lines) - 1
			}
			hasKey := false
			for j := i; j <= end; j++ {
				if keyPropRe.MatchString(lines[j]) {
					hasKey = true
					break
				}
			}
			if !hasKey {
				findings = append(findings, staticFinding(
					fmt.Sprintf("STATIC_REACT_KEY_%d", n),
					"4.1.2", n, strings.TrimSpace(line),
					"Missing key prop in list rendering",
					"Add unique key prop to each list item",
				))
			}
		}

		if onClickRe.MatchString(line) && !keyboardRe.MatchString(line) {
			findings = append(findings, staticFinding(
				fmt.Sprintf("STATIC_2_1_1_REACT_%d", n),
				"2.1.1", n, strings.TrimSpace(line),
				"Interactive element missing keyboard event handler",
				"Add onKeyDown handler for keyboard accessibility",
			))
		}
	}

	return findings
}

// staticFinding builds a pre-validated finding for a registry guideline.
// Static findings carry full confidence; the pattern match is the evidence.
func staticFinding(id, guidelineID string, line int, snippet, description, recommendation string) model.Finding {
	g := registry[guidelineID]
	f := model.Finding{
		IssueID:        id,
		Guideline:      g.ID + " " + g.Name,
		Severity:       g.Level,
		LineNumbers:    []int{line},
		Description:    description,
		CodeSnippet:    snippet,
		Recommendation: recommendation,
		Category:       g.Category,
		Source:         model.SourceStatic,
		Validation: &model.ValidationResult{
			IsValid:    true,
			Confidence: 1.0,
		},
	}
	return f
}
