package document

import (
	"errors"
	"fmt"
)

// Domain error kinds. Callers classify failures with errors.Is.
var (
	// ErrInvalidArgument marks malformed constructor or configuration input,
	// such as empty document content or a non-positive chunk size.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedMediaType marks a MIME type no registered parser claims.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// Document is the structured result of parsing a raw buffer. Values are
// immutable once constructed; parsers always return a freshly built Document
// that owns its content, never aliasing the caller's buffer.
type Document struct {
	ID        string `json:"id,omitempty"` // Assigned by the pipeline at ingest time; empty for ad-hoc parses.
	Content   string `json:"content"`      // Full text body; non-empty by construction.
	Source    string `json:"source"`       // Provenance identifier (filename or URI), recorded as given.
	WordCount int    `json:"word_count"`   // Count of maximal non-whitespace runs in Content.
}

// New builds a Document from parsed content. It fails when content is the
// zero-length string; no trimming happens before the check, so whitespace-only
// content is accepted and carries a word count of zero.
func New(content, source string) (*Document, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: document content is empty", ErrInvalidArgument)
	}
	return &Document{
		Content:   content,
		Source:    source,
		WordCount: CountWords(content),
	}, nil
}

// CountWords counts maximal runs of non-whitespace characters in s.
// Whitespace here is exactly space, tab, and newline; carriage returns and
// Unicode space characters are part of a word. This is deliberately narrower
// than strings.Fields.
func CountWords(s string) int {
	count := 0
	inWord := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n':
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}
