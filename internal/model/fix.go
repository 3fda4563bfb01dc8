package model

// FixChange is one line-level edit proposed by a remediation response.
type FixChange struct {
	LineNumber  int    `json:"line_number"`
	Original    string `json:"original"`
	Fixed       string `json:"fixed"`
	Explanation string `json:"explanation,omitempty"`
}

// Remediation is the parsed payload of a fix response: either a full
// rewritten file, individual changes, or both.
type Remediation struct {
	FixedCode string      `json:"fixed_code"`
	Changes   []FixChange `json:"changes"`
}

// FixValidation is the heuristic acceptance judgment for an applied fix.
// It gates application; it is not a proof of correctness.
type FixValidation struct {
	Resolved    bool     `json:"resolved"`
	SyntaxOK    bool     `json:"syntax_ok"`
	Improvement bool     `json:"improvement"`
	Confidence  float64  `json:"confidence"`
	Quality     float64  `json:"quality"`
	Notes       []string `json:"notes,omitempty"`
}

// FixReport is the outcome of remediating one finding.
type FixReport struct {
	IssueID   string      `json:"issue_id"`
	Applied   bool        `json:"applied"`
	Forced    bool        `json:"forced,omitempty"`
	FixedText string      `json:"-"`
	Backup    string      `json:"-"`
	Changes   []FixChange `json:"changes,omitempty"`

	// ParseNote is set when the provider's fix response could not be
	// parsed; no fix was applied.
	ParseNote *ParseNote `json:"parse_note,omitempty"`

	Validation *FixValidation `json:"validation,omitempty"`
	Usage      TokenUsage     `json:"usage"`
}
