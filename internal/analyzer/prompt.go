package analyzer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/a11y-audit/internal/model"
	"github.com/sells-group/a11y-audit/internal/wcag"
)

// auditorSystem is the system prompt shared by every provider call.
const auditorSystem = "You are an expert accessibility auditor for infotainment systems."

const codeFence = "```"

const detectionTemplate = `You are an expert accessibility auditor specializing in WCAG 2.2 compliance for infotainment systems.

Analyze the following %s code and identify ALL accessibility violations according to WCAG 2.2 guidelines.

File: %s
Code:
` + codeFence + `
%s
` + codeFence + `

For each violation found, provide:
1. Issue ID: unique identifier (e.g., "WCAG_1_1_1_001")
2. WCAG Guideline: specific guideline violated (e.g., "1.1.1 Non-text Content")
3. Severity: A, AA, or AAA level
4. Line Numbers: exact line(s) in the code above where the issue occurs
5. Description: clear explanation of the violation
6. Impact: how this affects users with disabilities
7. Code Snippet: the problematic code section
8. Recommendation: specific fix needed

Focus on detecting:
- Missing alt text and labels
- Insufficient color contrast
- Keyboard navigation issues
- Focus management problems
- Timing and motion issues
- Touch target size issues
- Error identification and handling
- Semantic markup violations
- ARIA misuse or missing ARIA

Return results as JSON in this exact format:
{
  "total_issues": 0,
  "issues": [
    {
      "issue_id": "string",
      "wcag_guideline": "string",
      "severity": "A|AA|AAA",
      "line_numbers": [1],
      "description": "string",
      "impact": "string",
      "code_snippet": "string",
      "recommendation": "string",
      "category": "perceivable|operable|understandable|robust"
    }
  ],
  "file_info": {
    "filename": "string",
    "total_lines": 0,
    "file_type": "string"
  }
}`

const remediationTemplate = `You are an expert accessibility developer specializing in WCAG 2.2 compliance fixes for infotainment systems.

TASK: fix the specific accessibility violation below while preserving all existing functionality.

FILE INFORMATION:
- File: %s
- File Type: %s

ACCESSIBILITY ISSUE:
- Issue ID: %s
- WCAG Guideline: %s
- Severity Level: %s
- Category: %s
- Description: %s
- Impact: %s
- Infotainment Patterns: %s
- Distraction Risk: %s

PROBLEMATIC CODE (lines %s):
` + codeFence + `
%s
` + codeFence + `

SURROUNDING CODE CONTEXT (">>>" marks the flagged lines):
` + codeFence + `
%s
` + codeFence + `

RECOMMENDED SOLUTION:
%s

REQUIREMENTS:
1. Fix ONLY the specific accessibility violation above
2. Preserve all existing functionality and styling
3. Follow WCAG 2.2 %s level compliance requirements
4. Consider infotainment constraints (touch targets at least 44px, driver distraction)
5. Mark every changed line with a "// PATCHED" comment where the syntax allows one
6. Ensure the fix works with assistive technologies

Return the result as JSON in this exact format:
{
  "fixed_code": "string (complete fixed file content, or empty when changes are listed)",
  "changes": [
    {
      "line_number": 0,
      "original": "exact original code on that line",
      "fixed": "exact fixed code for that line",
      "explanation": "what was changed and why"
    }
  ]
}

Return ONLY valid JSON. Prefer listing changes over repeating the full file.`

// DetectionPrompt renders the issue-detection prompt for one piece of
// source code. For chunked analysis the code is the chunk text and the
// returned line numbers are chunk-local.
func DetectionPrompt(filename, fileType, code string) string {
	return fmt.Sprintf(detectionTemplate, fileType, filename, code)
}

// RemediationPrompt renders the fix prompt for one finding, embedding the
// flagged snippet and a marked window of surrounding source.
func RemediationPrompt(file *model.SourceFile, f model.Finding) string {
	snippet := strings.TrimSpace(f.CodeSnippet)
	if snippet == "" {
		snippet = "Code snippet not available"
	}

	context := wcag.MarkedContext(file.Lines, f.LineNumbers)
	if context == "" {
		context = "No specific line context available"
	}

	recommendation := f.Recommendation
	if recommendation == "" {
		recommendation = "No specific recommendation provided"
	}

	info := wcag.AnalyzeInfotainment(f.CodeSnippet)
	patterns := strings.Join(info.PatternsFound, ", ")
	if patterns == "" {
		patterns = "unknown"
	}

	return fmt.Sprintf(remediationTemplate,
		file.Filename,
		file.FileType,
		f.IssueID,
		f.Guideline,
		f.Severity,
		f.Category,
		f.Description,
		f.Impact,
		patterns,
		info.DistractionRisk,
		lineList(f.LineNumbers),
		snippet,
		context,
		recommendation,
		f.Severity,
	)
}

func lineList(nums []int) string {
	if len(nums) == 0 {
		return "not specified"
	}
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
