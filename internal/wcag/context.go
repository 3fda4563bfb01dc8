package wcag

import (
	"fmt"
	"strings"

	"github.com/sells-group/a11y-audit/internal/model"
)

const (
	detectionWindow   = 3
	remediationWindow = 5
)

// ExtractContext returns a three-line window around the claimed line
// numbers. Out-of-range claims are ignored; an empty context is returned
// when none are in range.
func ExtractContext(lines []string, lineNumbers []int) model.CodeContext {
	valid := inRange(lineNumbers, len(lines))
	if len(valid) == 0 {
		return model.CodeContext{Lines: []model.ContextLine{}}
	}

	start, end := window(valid, len(lines), detectionWindow)

	claimed := make(map[int]bool, len(valid))
	for _, n := range valid {
		claimed[n] = true
	}

	ctx := model.CodeContext{
		Lines:     make([]model.ContextLine, 0, end-start+1),
		StartLine: start,
		EndLine:   end,
	}
	for n := start; n <= end; n++ {
		ctx.Lines = append(ctx.Lines, model.ContextLine{
			Number:      n,
			Content:     lines[n-1],
			Highlighted: claimed[n],
		})
	}
	return ctx
}

// MarkedContext renders a five-line window around the claimed line numbers
// with ">>>" markers on the claimed lines, for embedding in a remediation
// prompt. Returns "" when no claimed line is in range.
func MarkedContext(lines []string, lineNumbers []int) string {
	valid := inRange(lineNumbers, len(lines))
	if len(valid) == 0 {
		return ""
	}

	start, end := window(valid, len(lines), remediationWindow)

	claimed := make(map[int]bool, len(valid))
	for _, n := range valid {
		claimed[n] = true
	}

	var b strings.Builder
	for n := start; n <= end; n++ {
		marker := "     "
		if claimed[n] {
			marker = " >>> "
		}
		fmt.Fprintf(&b, "%4d:%s%s\n", n, marker, lines[n-1])
	}
	return strings.TrimRight(b.String(), "\n")
}

// inRange filters claimed line numbers to those within [1, total].
func inRange(lineNumbers []int, total int) []int {
	var valid []int
	for _, n := range lineNumbers {
		if n >= 1 && n <= total {
			valid = append(valid, n)
		}
	}
	return valid
}

// window clamps [min(valid)-pad, max(valid)+pad] to [1, total].
func window(valid []int, total, pad int) (int, int) {
	lo, hi := valid[0], valid[0]
	for _, n := range valid[1:] {
		if n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	lo -= pad
	hi += pad
	if lo < 1 {
		lo = 1
	}
	if hi > total {
		hi = total
	}
	return lo, hi
}
