package wcag

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rule holds the structural patterns for one guideline. Presence patterns
// are what the validator expects to see on a line the guideline is claimed
// against; resolution patterns are what an acceptable fix introduces.
type Rule struct {
	Presence    []string `yaml:"presence"`
	Resolution  []string `yaml:"resolution"`
	Description string   `yaml:"description"`
}

type compiledRule struct {
	presence    []*regexp.Regexp
	resolution  []*regexp.Regexp
	description string
}

// PatternTable maps guideline IDs to compiled structural rules. Construct
// with DefaultPatternTable or LoadPatternTable; the zero value matches
// nothing.
type PatternTable struct {
	rules map[string]compiledRule
}

// Presence returns the presence patterns for a guideline reference, or nil
// when the guideline has no rule.
func (t *PatternTable) Presence(ref string) []*regexp.Regexp {
	if t == nil || t.rules == nil {
		return nil
	}
	return t.rules[ExtractID(ref)].presence
}

// Resolution returns the resolution patterns and their description for a
// guideline reference.
func (t *PatternTable) Resolution(ref string) ([]*regexp.Regexp, string, bool) {
	if t == nil || t.rules == nil {
		return nil, "", false
	}
	r, ok := t.rules[ExtractID(ref)]
	if !ok || len(r.resolution) == 0 {
		return nil, "", false
	}
	return r.resolution, r.description, true
}

// DefaultPatternTable returns the compiled-in rule set.
func DefaultPatternTable() *PatternTable {
	t, err := compileRules(defaultRules)
	if err != nil {
		// Compiled-in patterns are covered by tests; a bad one is a bug.
		panic(err)
	}
	return t
}

// LoadPatternTable reads a rule table from a YAML file and merges it over
// the compiled-in defaults. File entries replace default entries for the
// same guideline wholesale.
func LoadPatternTable(path string) (*PatternTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "wcag: read pattern table %s", path)
	}

	var wrapper struct {
		Rules map[string]Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "wcag: parse pattern table")
	}

	merged := make(map[string]Rule, len(defaultRules)+len(wrapper.Rules))
	for id, r := range defaultRules {
		merged[id] = r
	}
	for id, r := range wrapper.Rules {
		merged[id] = r
	}

	t, err := compileRules(merged)
	if err != nil {
		return nil, eris.Wrapf(err, "wcag: compile pattern table %s", path)
	}
	return t, nil
}

func compileRules(rules map[string]Rule) (*PatternTable, error) {
	t := &PatternTable{rules: make(map[string]compiledRule, len(rules))}
	for id, r := range rules {
		cr := compiledRule{description: r.Description}
		for _, p := range r.Presence {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, eris.Wrapf(err, "guideline %s presence pattern %q", id, p)
			}
			cr.presence = append(cr.presence, re)
		}
		for _, p := range r.Resolution {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, eris.Wrapf(err, "guideline %s resolution pattern %q", id, p)
			}
			cr.resolution = append(cr.resolution, re)
		}
		t.rules[id] = cr
	}
	return t, nil
}

// defaultRules pairs each guideline with the element shapes it is claimed
// against and the attribute shapes a fix introduces. Patterns compile
// case-insensitive.
var defaultRules = map[string]Rule{
	"1.1.1": {
		Presence:    []string{`<img\b`, `<image\b`, `imageview`, `background-image`, `\bicon\b`},
		Resolution:  []string{`alt\s*=\s*["'][^"']+["']`, `aria-label\s*=`, `aria-labelledby\s*=`, `contentdescription`},
		Description: "Alt text or ARIA labels added",
	},
	"1.4.3": {
		Presence:   []string{`\bcolor\s*:`, `background(-color)?\s*:`, `textcolor`},
		Resolution: []string{`\bcolor\s*:`, `contrast`},
	},
	"2.1.1": {
		Presence:    []string{`onclick\s*=`, `ontouch\w*\s*=`, `onpress`, `clickable`, `<button\b`, `<a\b`},
		Resolution:  []string{`onkeydown\s*=`, `onkeypress\s*=`, `tabindex\s*=`},
		Description: "Keyboard event handlers added",
	},
	"2.4.6": {
		Presence:   []string{`<h[1-6]\b`, `heading`, `<label\b`},
		Resolution: []string{`<h[1-6]\b`, `aria-level\s*=`},
	},
	"2.4.7": {
		Presence:    []string{`:focus\b`, `outline\s*:`, `\bfocus\b`, `tabindex`},
		Resolution:  []string{`:focus\s*\{`, `focus-visible`, `outline\s*:`},
		Description: "Focus styles added",
	},
	"2.5.8": {
		Presence:   []string{`<button\b`, `imagebutton`, `checkbox`, `layout_width`, `layout_height`, `\bwidth\s*:`, `\bheight\s*:`},
		Resolution: []string{`48dp`, `min-width`, `min-height`, `padding`},
	},
	"3.3.2": {
		Presence:    []string{`<input\b`, `<select\b`, `<textarea\b`, `textfield`, `edittext`},
		Resolution:  []string{`<label\b`, `aria-label\s*=`, `aria-labelledby\s*=`},
		Description: "Form labels added",
	},
	"4.1.2": {
		Presence:    []string{`<div\b`, `<span\b`, `role\s*=`, `aria-\w+`, `component`},
		Resolution:  []string{`role\s*=`, `aria-\w+\s*=`},
		Description: "ARIA attributes added",
	},
}

// FixMarkers are generic indicators that a remediation touched a file, used
// when a guideline has no dedicated resolution patterns.
var FixMarkers = []string{
	"// FIXED",
	"// ACCESSIBILITY FIX",
	"// PATCHED",
	"aria-",
	"alt=",
	"role=",
	"tabindex=",
	"focus",
	"label",
}

// Infotainment UI pattern classes, checked in a fixed order so results are
// stable.
var infotainmentPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"touch_targets", regexp.MustCompile(`(?i)(button|clickable|touchable|pressable)`)},
	{"navigation", regexp.MustCompile(`(?i)(menu|nav|breadcrumb|tab)`)},
	{"media_controls", regexp.MustCompile(`(?i)(play|pause|stop|volume|mute)`)},
	{"form_inputs", regexp.MustCompile(`(?i)(input|textfield|dropdown|checkbox|radio)`)},
	{"alerts", regexp.MustCompile(`(?i)(alert|notification|warning|error)`)},
	{"interactive", regexp.MustCompile(`(?i)(onclick|ontouch|onpress|gesture)`)},
}

// InfotainmentContext classifies a snippet against in-vehicle UI pattern
// classes and grades how much driver attention the element competes for.
type InfotainmentContext struct {
	PatternsFound   []string `json:"patterns_found"`
	Relevance       string   `json:"relevance"`
	DistractionRisk string   `json:"distraction_risk"`
}

// AnalyzeInfotainment matches a code snippet against the infotainment
// pattern classes. Media controls and navigation grade as high distraction
// risk, touch targets and interactive handlers as medium.
func AnalyzeInfotainment(snippet string) InfotainmentContext {
	ctx := InfotainmentContext{
		PatternsFound:   []string{},
		Relevance:       "low",
		DistractionRisk: "low",
	}

	found := make(map[string]bool)
	for _, p := range infotainmentPatterns {
		if p.re.MatchString(snippet) {
			ctx.PatternsFound = append(ctx.PatternsFound, p.name)
			found[p.name] = true
		}
	}

	if len(ctx.PatternsFound) == 0 {
		return ctx
	}
	ctx.Relevance = "high"

	switch {
	case found["media_controls"] || found["navigation"]:
		ctx.DistractionRisk = "high"
	case found["touch_targets"] || found["interactive"]:
		ctx.DistractionRisk = "medium"
	}
	return ctx
}
