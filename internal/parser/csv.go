package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/dgallion1/docsplit/internal/document"
)

// CSVParser handles CSV files. Rows are flattened to "header: value" lines so
// the result reads as text rather than a table.
type CSVParser struct{}

var _ Parser = (*CSVParser)(nil)

func (p *CSVParser) Supports(mimeType string) bool {
	return mimeType == "text/csv"
}

func (p *CSVParser) MIMETypes() []string {
	return []string{"text/csv"}
}

func (p *CSVParser) Parse(data []byte, filename string) (*document.Document, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return document.New("", filename)
	}

	// First row is headers.
	headers := records[0]

	var text strings.Builder
	text.WriteString("Headers: " + strings.Join(headers, ", "))
	for _, row := range records[1:] {
		text.WriteString("\n")
		for j, cell := range row {
			if j > 0 {
				text.WriteString(", ")
			}
			if j < len(headers) {
				text.WriteString(headers[j] + ": " + cell)
			} else {
				text.WriteString(cell)
			}
		}
	}

	return document.New(text.String(), filename)
}
