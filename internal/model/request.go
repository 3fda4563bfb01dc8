package model

import (
	"path/filepath"
	"strings"
)

// AnalysisRequest is one file-per-provider unit of work handed to the
// analyzer by the caller. It is read-only inside the core.
type AnalysisRequest struct {
	SourceText string `json:"source_text"`
	Filename   string `json:"filename"`
	Provider   string `json:"provider"`
	ModelHint  string `json:"model_hint,omitempty"`
}

// SourceFile is the line-indexed view of a request's source text that the
// validator and chunker work against.
type SourceFile struct {
	Filename string   `json:"filename"`
	Lines    []string `json:"-"`
	FileType string   `json:"file_type"`
}

// NewSourceFile splits source text into lines and detects the file type.
func NewSourceFile(filename, sourceText string) *SourceFile {
	return &SourceFile{
		Filename: filename,
		Lines:    strings.Split(sourceText, "\n"),
		FileType: DetectFileType(filename),
	}
}

// TotalLines returns the number of lines in the file.
func (f *SourceFile) TotalLines() int {
	return len(f.Lines)
}

// Line returns the 1-based line, or "" when the number is out of range.
func (f *SourceFile) Line(n int) (string, bool) {
	if n < 1 || n > len(f.Lines) {
		return "", false
	}
	return f.Lines[n-1], true
}

// fileTypes maps extensions to the type labels used in prompts and reports.
var fileTypes = map[string]string{
	".html": "html",
	".htm":  "html",
	".css":  "css",
	".xml":  "xml",
	".jsx":  "jsx",
	".tsx":  "tsx",
	".js":   "javascript",
	".ts":   "typescript",
	".qml":  "qml",
	".cpp":  "cpp",
	".c":    "c",
}

// DetectFileType determines the file type label from a filename extension.
func DetectFileType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := fileTypes[ext]; ok {
		return t
	}
	return "unknown"
}
