//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/a11y-audit/internal/wcag"
)

func TestFilterGuidelines(t *testing.T) {
	all := wcag.All()

	levelA := filterGuidelines(all, "A", "")
	require.NotEmpty(t, levelA)
	for _, g := range levelA {
		assert.Equal(t, "A", g.Level)
	}

	operableAA := filterGuidelines(all, "AA", "operable")
	require.NotEmpty(t, operableAA)
	for _, g := range operableAA {
		assert.Equal(t, "AA", g.Level)
		assert.Equal(t, "operable", g.Category)
	}

	assert.Empty(t, filterGuidelines(all, "AAA", "robust"))
	assert.Len(t, filterGuidelines(all, "", ""), len(all))
}

func TestFormatGuidelines(t *testing.T) {
	var buf bytes.Buffer
	formatGuidelines(&buf, []wcag.Guideline{
		{ID: "1.1.1", Name: "Non-text Content", Level: "A", Category: "perceivable"},
		{ID: "2.4.7", Name: "Focus Visible", Level: "AA", Category: "operable"},
	})

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "1.1.1")
	assert.Contains(t, output, "Non-text Content")
	assert.Contains(t, output, "2.4.7")
	assert.Contains(t, output, "Focus Visible")
	assert.Contains(t, output, "2 criteria")
}

func TestFormatGuidelinesEmpty(t *testing.T) {
	var buf bytes.Buffer
	formatGuidelines(&buf, nil)
	assert.Contains(t, buf.String(), "No matching criteria")
}

func TestFormatGuidelineDetail(t *testing.T) {
	g, ok := wcag.Lookup("1.1.1")
	require.True(t, ok)

	var buf bytes.Buffer
	formatGuidelineDetail(&buf, g, wcag.DefaultPatternTable())

	output := buf.String()
	assert.Contains(t, output, "1.1.1")
	assert.Contains(t, output, "Non-text Content")
	assert.Contains(t, output, "perceivable")
	assert.Contains(t, output, "Validation patterns:")
	assert.Contains(t, output, "Resolution")
}
