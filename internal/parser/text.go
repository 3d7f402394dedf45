package parser

import (
	"github.com/dgallion1/docsplit/internal/document"
)

// TextParser handles plain text. It is the pass-through variant: the buffer
// is decoded as-is, with no normalization of line endings or whitespace.
type TextParser struct{}

var _ Parser = (*TextParser)(nil)

func (p *TextParser) Supports(mimeType string) bool {
	return mimeType == "text/plain"
}

func (p *TextParser) MIMETypes() []string {
	return []string{"text/plain"}
}

func (p *TextParser) Parse(data []byte, filename string) (*document.Document, error) {
	return document.New(string(data), filename)
}
