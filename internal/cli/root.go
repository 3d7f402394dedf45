package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dgallion1/docsplit/internal/config"
	"github.com/dgallion1/docsplit/internal/parser"
	"github.com/spf13/cobra"
)

var (
	cfg        config.Config
	indexerURL string
)

var rootCmd = &cobra.Command{
	Use:   "docsplit",
	Short: "Split documents into indexable chunks",
	Long: `docsplit parses documents (plain text, Markdown, HTML, CSV, PDF, DOCX),
splits them into sentence-aligned chunks, and pushes the results to an
indexing service.

Example usage:
  docsplit serve              # Run the HTTP ingestion service
  docsplit split ./docs       # Chunk files and print JSON lines
  docsplit watch ./docs       # Ingest files as they change`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if indexerURL != "" {
			cfg.IndexerURL = indexerURL
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&indexerURL, "indexer-url", "", "indexer base URL (overrides INDEXER_URL)")
}

// newLogger builds the slog logger for a command. The serve command logs
// JSON to stdout; interactive commands log text to stderr.
func newLogger(out io.Writer, level string, jsonFormat bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// buildRegistry assembles the parser registry honoring config toggles.
func buildRegistry() *parser.Registry {
	return parser.NewRegistry(
		&parser.TextParser{},
		&parser.MarkdownParser{},
		&parser.HTMLParser{},
		&parser.CSVParser{},
		&parser.PDFParser{FallbackPdftotext: cfg.PDFFallbackPdftotext},
		&parser.DOCXParser{},
	)
}
