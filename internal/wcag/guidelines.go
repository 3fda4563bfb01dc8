// Package wcag holds the WCAG success-criterion registry and the structural
// pattern tables used by the validator, the fix checker, and the static
// sweep. Rules are data: new guidelines or patterns are table entries, not
// code changes.
package wcag

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Guideline is one WCAG success criterion.
type Guideline struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Level    string `json:"level" yaml:"level"`
	Category string `json:"category" yaml:"category"`
}

var idRe = regexp.MustCompile(`(\d+\.\d+\.\d+)`)

// ExtractID pulls the success-criterion number out of a free-form guideline
// reference, so "1.1.1 Non-text Content" and "WCAG 1.1.1" both yield
// "1.1.1". Returns "" when no criterion number is present.
func ExtractID(ref string) string {
	m := idRe.FindString(ref)
	return m
}

// Lookup resolves a guideline reference against the registry. The reference
// may be a bare ID or free-form text containing one.
func Lookup(ref string) (Guideline, bool) {
	g, ok := registry[ExtractID(ref)]
	return g, ok
}

// All returns every registered guideline in criterion order.
func All() []Guideline {
	out := make([]Guideline, 0, len(registry))
	for _, g := range registry {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessID(out[i].ID, out[j].ID)
	})
	return out
}

// lessID orders criterion IDs numerically per segment, so 1.4.2 sorts
// before 1.4.10.
func lessID(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, _ := strconv.Atoi(as[i])
		bn, _ := strconv.Atoi(bs[i])
		if an != bn {
			return an < bn
		}
	}
	return len(as) < len(bs)
}

// registry covers the WCAG 2.2 success criteria relevant to code-level
// analysis. 4.1.1 is obsolete in 2.2 but kept because providers still
// report against it.
var registry = map[string]Guideline{
	"1.1.1":  {ID: "1.1.1", Name: "Non-text Content", Level: "A", Category: "perceivable"},
	"1.2.1":  {ID: "1.2.1", Name: "Audio-only and Video-only", Level: "A", Category: "perceivable"},
	"1.2.2":  {ID: "1.2.2", Name: "Captions (Prerecorded)", Level: "A", Category: "perceivable"},
	"1.2.3":  {ID: "1.2.3", Name: "Audio Description or Media Alternative", Level: "A", Category: "perceivable"},
	"1.3.1":  {ID: "1.3.1", Name: "Info and Relationships", Level: "A", Category: "perceivable"},
	"1.3.2":  {ID: "1.3.2", Name: "Meaningful Sequence", Level: "A", Category: "perceivable"},
	"1.3.3":  {ID: "1.3.3", Name: "Sensory Characteristics", Level: "A", Category: "perceivable"},
	"1.3.4":  {ID: "1.3.4", Name: "Orientation", Level: "AA", Category: "perceivable"},
	"1.3.5":  {ID: "1.3.5", Name: "Identify Input Purpose", Level: "AA", Category: "perceivable"},
	"1.4.1":  {ID: "1.4.1", Name: "Use of Color", Level: "A", Category: "perceivable"},
	"1.4.2":  {ID: "1.4.2", Name: "Audio Control", Level: "A", Category: "perceivable"},
	"1.4.3":  {ID: "1.4.3", Name: "Contrast (Minimum)", Level: "AA", Category: "perceivable"},
	"1.4.4":  {ID: "1.4.4", Name: "Resize text", Level: "AA", Category: "perceivable"},
	"1.4.5":  {ID: "1.4.5", Name: "Images of Text", Level: "AA", Category: "perceivable"},
	"1.4.10": {ID: "1.4.10", Name: "Reflow", Level: "AA", Category: "perceivable"},
	"1.4.11": {ID: "1.4.11", Name: "Non-text Contrast", Level: "AA", Category: "perceivable"},
	"1.4.12": {ID: "1.4.12", Name: "Text Spacing", Level: "AA", Category: "perceivable"},
	"1.4.13": {ID: "1.4.13", Name: "Content on Hover or Focus", Level: "AA", Category: "perceivable"},
	"2.1.1":  {ID: "2.1.1", Name: "Keyboard", Level: "A", Category: "operable"},
	"2.1.2":  {ID: "2.1.2", Name: "No Keyboard Trap", Level: "A", Category: "operable"},
	"2.1.4":  {ID: "2.1.4", Name: "Character Key Shortcuts", Level: "A", Category: "operable"},
	"2.2.1":  {ID: "2.2.1", Name: "Timing Adjustable", Level: "A", Category: "operable"},
	"2.2.2":  {ID: "2.2.2", Name: "Pause, Stop, Hide", Level: "A", Category: "operable"},
	"2.3.1":  {ID: "2.3.1", Name: "Three Flashes or Below Threshold", Level: "A", Category: "operable"},
	"2.4.1":  {ID: "2.4.1", Name: "Bypass Blocks", Level: "A", Category: "operable"},
	"2.4.2":  {ID: "2.4.2", Name: "Page Titled", Level: "A", Category: "operable"},
	"2.4.3":  {ID: "2.4.3", Name: "Focus Order", Level: "A", Category: "operable"},
	"2.4.4":  {ID: "2.4.4", Name: "Link Purpose (In Context)", Level: "A", Category: "operable"},
	"2.4.5":  {ID: "2.4.5", Name: "Multiple Ways", Level: "AA", Category: "operable"},
	"2.4.6":  {ID: "2.4.6", Name: "Headings and Labels", Level: "AA", Category: "operable"},
	"2.4.7":  {ID: "2.4.7", Name: "Focus Visible", Level: "AA", Category: "operable"},
	"2.5.1":  {ID: "2.5.1", Name: "Pointer Gestures", Level: "A", Category: "operable"},
	"2.5.2":  {ID: "2.5.2", Name: "Pointer Cancellation", Level: "A", Category: "operable"},
	"2.5.3":  {ID: "2.5.3", Name: "Label in Name", Level: "A", Category: "operable"},
	"2.5.4":  {ID: "2.5.4", Name: "Motion Actuation", Level: "A", Category: "operable"},
	"2.5.7":  {ID: "2.5.7", Name: "Dragging Movements", Level: "AA", Category: "operable"},
	"2.5.8":  {ID: "2.5.8", Name: "Target Size (Minimum)", Level: "AA", Category: "operable"},
	"3.1.1":  {ID: "3.1.1", Name: "Language of Page", Level: "A", Category: "understandable"},
	"3.1.2":  {ID: "3.1.2", Name: "Language of Parts", Level: "AA", Category: "understandable"},
	"3.2.1":  {ID: "3.2.1", Name: "On Focus", Level: "A", Category: "understandable"},
	"3.2.2":  {ID: "3.2.2", Name: "On Input", Level: "A", Category: "understandable"},
	"3.2.3":  {ID: "3.2.3", Name: "Consistent Navigation", Level: "AA", Category: "understandable"},
	"3.2.4":  {ID: "3.2.4", Name: "Consistent Identification", Level: "AA", Category: "understandable"},
	"3.2.6":  {ID: "3.2.6", Name: "Consistent Help", Level: "A", Category: "understandable"},
	"3.3.1":  {ID: "3.3.1", Name: "Error Identification", Level: "A", Category: "understandable"},
	"3.3.2":  {ID: "3.3.2", Name: "Labels or Instructions", Level: "A", Category: "understandable"},
	"3.3.3":  {ID: "3.3.3", Name: "Error Suggestion", Level: "AA", Category: "understandable"},
	"3.3.4":  {ID: "3.3.4", Name: "Error Prevention (Legal, Financial, Data)", Level: "AA", Category: "understandable"},
	"3.3.7":  {ID: "3.3.7", Name: "Redundant Entry", Level: "A", Category: "understandable"},
	"3.3.8":  {ID: "3.3.8", Name: "Accessible Authentication (Minimum)", Level: "AA", Category: "understandable"},
	"4.1.1":  {ID: "4.1.1", Name: "Parsing", Level: "A", Category: "robust"},
	"4.1.2":  {ID: "4.1.2", Name: "Name, Role, Value", Level: "A", Category: "robust"},
	"4.1.3":  {ID: "4.1.3", Name: "Status Messages", Level: "AA", Category: "robust"},
}
