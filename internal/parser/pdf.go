package parser

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/docsplit/internal/document"
)

// PDFParser handles PDF. It tries the Go library first, then falls back to
// pdftotext when enabled and available.
type PDFParser struct {
	FallbackPdftotext bool
}

var _ Parser = (*PDFParser)(nil)

func (p *PDFParser) Supports(mimeType string) bool {
	return mimeType == "application/pdf"
}

func (p *PDFParser) MIMETypes() []string {
	return []string{"application/pdf"}
}

func (p *PDFParser) Parse(data []byte, filename string) (*document.Document, error) {
	text, err := extractPDFText(data)
	if err != nil && p.FallbackPdftotext {
		text, err = extractPdftotext(data)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	// Pages arrive form-feed separated; flatten to paragraph breaks.
	var pages []string
	for _, page := range strings.Split(text, "\f") {
		page = strings.TrimSpace(page)
		if page != "" {
			pages = append(pages, page)
		}
	}

	return document.New(strings.Join(pages, "\n\n"), filename)
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if i > 1 {
			buf.WriteString("\f") // Form feed as page separator.
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

// extractPdftotext shells out to pdftotext, which copes with PDFs the Go
// library rejects. The tool only reads files, so the buffer goes through a
// temp file.
func extractPdftotext(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "docsplit-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	cmd := exec.Command("pdftotext", "-layout", tmpPath, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
