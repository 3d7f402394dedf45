package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/docsplit/internal/document"
)

// MarkdownParser handles Markdown using goldmark. Markup is stripped: the
// document body is the plain text of headings and blocks in source order.
type MarkdownParser struct{}

var _ Parser = (*MarkdownParser)(nil)

func (p *MarkdownParser) Supports(mimeType string) bool {
	return mimeType == "text/markdown" || mimeType == "text/x-markdown"
}

func (p *MarkdownParser) MIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

func (p *MarkdownParser) Parse(data []byte, filename string) (*document.Document, error) {
	md := goldmark.New()
	reader := text.NewReader(data)
	root := md.Parser().Parse(reader)

	var blocks []string
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := string(node.Text(data))
			if title != "" {
				blocks = append(blocks, title)
			}
		default:
			if t := extractText(n, data); t != "" {
				blocks = append(blocks, t)
			}
		}
	}

	return document.New(strings.Join(blocks, "\n\n"), filename)
}

// extractText gets the text content of a goldmark AST node. Nodes with
// children are flattened through their inlines; childless blocks (code
// blocks) read their raw source lines instead.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.HasChildren() {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Value(src))
				if t.HardLineBreak() || t.SoftLineBreak() {
					buf.WriteByte('\n')
				}
				continue
			}
			// Recurse for nested inlines and container blocks.
			if c.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(extractText(c, src))
		}
	} else if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
	}
	return strings.TrimSpace(buf.String())
}
