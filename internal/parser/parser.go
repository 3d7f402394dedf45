package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dgallion1/docsplit/internal/document"
)

// Parser converts raw document bytes into a Document. Implementations declare
// the MIME types they claim, never mutate the input buffer, and always return
// a freshly constructed Document.
type Parser interface {
	// Supports reports whether this parser handles the given canonical
	// MIME type (lowercase, no parameters).
	Supports(mimeType string) bool

	// Parse converts data into a Document, recording filename as its source.
	Parse(data []byte, filename string) (*document.Document, error)

	// MIMETypes lists the canonical MIME types this parser claims.
	MIMETypes() []string
}

// Registry holds an ordered list of parsers. Dispatch is a linear scan in
// registration order, first match wins, so overlapping parsers resolve by
// position. The registry is built once at startup and read-only afterwards;
// concurrent lookups need no locking.
type Registry struct {
	parsers []Parser
}

// NewRegistry builds a registry over the given parsers in order.
func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

// DefaultRegistry returns a registry with every built-in parser registered.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&TextParser{},
		&MarkdownParser{},
		&HTMLParser{},
		&CSVParser{},
		&PDFParser{FallbackPdftotext: true},
		&DOCXParser{},
	)
}

// Register appends a parser to the scan order. Not safe to call once the
// registry is in use; registration happens at startup only.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Find returns the first parser supporting mimeType, normalized before the
// scan. Fails when no registered parser claims the type.
func (r *Registry) Find(mimeType string) (Parser, error) {
	mt := NormalizeMIME(mimeType)
	for _, p := range r.parsers {
		if p.Supports(mt) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", document.ErrUnsupportedMediaType, mimeType)
}

// Parse dispatches data to the parser claiming mimeType.
func (r *Registry) Parse(data []byte, mimeType, filename string) (*document.Document, error) {
	p, err := r.Find(mimeType)
	if err != nil {
		return nil, err
	}
	return p.Parse(data, filename)
}

// MIMETypes returns the union of claimed MIME types in registration order,
// deduplicated, for the listing endpoint and CLI help.
func (r *Registry) MIMETypes() []string {
	seen := make(map[string]bool)
	var types []string
	for _, p := range r.parsers {
		for _, mt := range p.MIMETypes() {
			if !seen[mt] {
				seen[mt] = true
				types = append(types, mt)
			}
		}
	}
	return types
}

// Parsers returns the registered parsers in scan order.
func (r *Registry) Parsers() []Parser {
	return r.parsers
}

// NormalizeMIME canonicalizes a MIME type for dispatch: parameters are
// stripped ("text/plain; charset=utf-8" becomes "text/plain"), the media type
// is lowercased and trimmed.
func NormalizeMIME(mimeType string) string {
	mt := strings.TrimSpace(mimeType)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// extensionMIME maps known file extensions to canonical MIME types.
var extensionMIME = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".csv":      "text/csv",
	".pdf":      "application/pdf",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// MIMEForFile resolves a MIME type for a file when the caller has none:
// known extensions map directly, anything else is sniffed from content.
func MIMEForFile(filename string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if mt, ok := extensionMIME[ext]; ok {
		return mt
	}
	return NormalizeMIME(mimetype.Detect(data).String())
}

// IsSupportedExtension checks whether a filename maps to a known MIME type
// without sniffing. Used by the walker and watcher to pre-filter files.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := extensionMIME[ext]
	return ok
}
