package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/docsplit/internal/document"
)

// DOCXParser handles .docx files.
type DOCXParser struct{}

var _ Parser = (*DOCXParser)(nil)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

func (p *DOCXParser) Supports(mimeType string) bool {
	return mimeType == docxMIME
}

func (p *DOCXParser) MIMETypes() []string {
	return []string{docxMIME}
}

func (p *DOCXParser) Parse(data []byte, filename string) (*document.Document, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	var blocks []string
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		if text := docxParagraphText(para); text != "" {
			blocks = append(blocks, text)
		}
	}

	return document.New(strings.Join(blocks, "\n\n"), filename)
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
