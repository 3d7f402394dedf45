package parser

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/docsplit/internal/document"
)

// HTMLParser handles HTML. Markup is stripped: the document body is the text
// of headings and content blocks in source order, with script, style, and
// page chrome skipped.
type HTMLParser struct{}

var _ Parser = (*HTMLParser)(nil)

func (p *HTMLParser) Supports(mimeType string) bool {
	return mimeType == "text/html" || mimeType == "application/xhtml+xml"
}

func (p *HTMLParser) MIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

func (p *HTMLParser) Parse(data []byte, filename string) (*document.Document, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var blocks []string

	// Page title leads the content when present.
	if title := findTitle(root); title != "" {
		blocks = append(blocks, title)
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if headingLevel(n.Data) > 0 {
				if t := textContent(n); t != "" {
					blocks = append(blocks, t)
				}
				return // Heading text already extracted, don't recurse.
			}

			// Skip non-content elements.
			switch n.Data {
			case "script", "style", "nav", "footer", "header":
				return
			case "p", "li", "td", "blockquote", "pre":
				if t := textContent(n); t != "" {
					blocks = append(blocks, t)
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	// Walk <body> when present, the whole document otherwise.
	scope := findBody(root)
	if scope == nil {
		scope = root
	}
	before := len(blocks)
	walk(scope)

	// Pages that carry their text outside the collected tags (bare divs,
	// text nodes) fall back to the whole body text.
	if len(blocks) == before {
		if t := textContent(scope); t != "" {
			blocks = append(blocks, t)
		}
	}

	return document.New(strings.Join(blocks, "\n\n"), filename)
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
