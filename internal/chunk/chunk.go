// Package chunk splits oversized source files into contiguous line ranges
// that fit a provider's prompt window, and maps chunk-local line numbers
// back to file-global ones on reassembly.
package chunk

import "strings"

const (
	// DefaultLines is the chunk height in source lines.
	DefaultLines = 100
	// DefaultCharThreshold is the source size above which chunking
	// activates for small-context providers.
	DefaultCharThreshold = 2000
)

// Chunk is a contiguous, non-overlapping run of source lines. Line bounds
// are 1-based and inclusive.
type Chunk struct {
	StartLine int
	EndLine   int
	Text      string
}

// Blank reports whether the chunk holds only whitespace. Blank chunks are
// skipped without a provider call.
func (c Chunk) Blank() bool {
	return strings.TrimSpace(c.Text) == ""
}

// GlobalLine maps a 1-based line number local to this chunk onto the
// full file.
func (c Chunk) GlobalLine(local int) int {
	return c.StartLine + local - 1
}

// NeedsChunking reports whether the source exceeds the provider's safe
// prompt size. A non-positive threshold disables chunking.
func NeedsChunking(source string, threshold int) bool {
	if threshold <= 0 {
		return false
	}
	return len(source) > threshold
}

// Split cuts the lines into chunks of at most size lines, preserving
// order. The final chunk may be shorter. A non-positive size falls back
// to DefaultLines.
func Split(lines []string, size int) []Chunk {
	if size <= 0 {
		size = DefaultLines
	}
	if len(lines) == 0 {
		return nil
	}

	chunks := make([]Chunk, 0, (len(lines)+size-1)/size)
	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, Chunk{
			StartLine: start + 1,
			EndLine:   end,
			Text:      strings.Join(lines[start:end], "\n"),
		})
	}
	return chunks
}
