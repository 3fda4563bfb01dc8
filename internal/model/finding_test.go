package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindingNormalize(t *testing.T) {
	t.Parallel()

	t.Run("fills missing id", func(t *testing.T) {
		t.Parallel()
		f := Finding{Guideline: "1.1.1 Non-text Content"}
		f.Normalize()
		assert.NotEmpty(t, f.IssueID)
		assert.Equal(t, SourceLLM, f.Source)
		assert.NotNil(t, f.LineNumbers)
	})

	t.Run("keeps provided id", func(t *testing.T) {
		t.Parallel()
		f := Finding{IssueID: "issue-7"}
		f.Normalize()
		assert.Equal(t, "issue-7", f.IssueID)
	})

	t.Run("defaults invalid severity to A", func(t *testing.T) {
		t.Parallel()
		f := Finding{Severity: "critical"}
		f.Normalize()
		assert.Equal(t, SeverityA, f.Severity)

		f = Finding{Severity: SeverityAA}
		f.Normalize()
		assert.Equal(t, SeverityAA, f.Severity)
	})

	t.Run("collapses unknown category", func(t *testing.T) {
		t.Parallel()
		f := Finding{Category: "visual"}
		f.Normalize()
		assert.Empty(t, f.Category)

		f = Finding{Category: CategoryOperable}
		f.Normalize()
		assert.Equal(t, CategoryOperable, f.Category)
	})

	t.Run("keeps static source", func(t *testing.T) {
		t.Parallel()
		f := Finding{Source: SourceStatic}
		f.Normalize()
		assert.Equal(t, SourceStatic, f.Source)
	})
}

func TestFindingFixEligible(t *testing.T) {
	t.Parallel()

	f := Finding{}
	assert.False(t, f.FixEligible(0.5), "unvalidated finding is never fix-eligible")

	f.Validation = &ValidationResult{IsValid: true, Confidence: 0.75}
	assert.True(t, f.FixEligible(0.5))
	assert.False(t, f.FixEligible(0.8))
}

func TestValidationResultLowConfidence(t *testing.T) {
	t.Parallel()

	var v *ValidationResult
	assert.False(t, v.LowConfidence())

	v = &ValidationResult{IsValid: false, Confidence: 0.4}
	assert.True(t, v.LowConfidence())

	v = &ValidationResult{IsValid: true, Confidence: 0.9}
	assert.False(t, v.LowConfidence())
}
