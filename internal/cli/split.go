package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgallion1/docsplit/internal/chunker"
	"github.com/dgallion1/docsplit/internal/indexer"
	"github.com/dgallion1/docsplit/internal/parser"
	"github.com/dgallion1/docsplit/internal/pipeline"
	"github.com/dgallion1/docsplit/internal/walker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	splitChunkSize int
	splitIncludes  []string
	splitExcludes  []string
	splitOutDir    string
)

var splitCmd = &cobra.Command{
	Use:   "split [paths...]",
	Short: "Parse and chunk files locally",
	Long: `Walk the given files and directories, parse each supported document,
split it into chunks, and write chunk records as JSON lines on stdout.
With --out, one JSON file per document is written to the directory instead.

Examples:
  docsplit split notes.txt
  docsplit split ./docs --include '**/*.md' --chunk-size 500
  docsplit split ./docs --out ./chunks`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().IntVar(&splitChunkSize, "chunk-size", 0, "max chunk size in characters (default DEFAULT_CHUNK_SIZE)")
	splitCmd.Flags().StringSliceVar(&splitIncludes, "include", nil, "glob patterns of files to include")
	splitCmd.Flags().StringSliceVar(&splitExcludes, "exclude", nil, "glob patterns of files to exclude")
	splitCmd.Flags().StringVar(&splitOutDir, "out", "", "write one JSON file per document into this directory")
	rootCmd.AddCommand(splitCmd)
}

type chunkLine struct {
	Source   string `json:"source"`
	Sequence int    `json:"sequence"`
	Text     string `json:"text"`
	Tokens   int    `json:"tokens"`
}

type fileRecord struct {
	Source      string      `json:"source"`
	MIMEType    string      `json:"mime_type"`
	ContentHash string      `json:"content_hash"`
	WordCount   int         `json:"word_count"`
	ChunkCount  int         `json:"chunk_count"`
	Chunks      []chunkLine `json:"chunks"`
}

func runSplit(cmd *cobra.Command, args []string) error {
	chunkSize := splitChunkSize
	if chunkSize == 0 {
		chunkSize = cfg.DefaultChunkSize
	}
	splitter, err := chunker.New(chunkSize)
	if err != nil {
		return err
	}
	registry := buildRegistry()

	if splitOutDir != "" {
		if err := os.MkdirAll(splitOutDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	w := walker.New(walker.WithIncludes(splitIncludes...), walker.WithExcludes(splitExcludes...))

	var files []walker.FileInfo
	for _, root := range args {
		matched, err := w.Walk(cmd.Context(), root)
		if err != nil {
			return fmt.Errorf("walk %s: %w", root, err)
		}
		files = append(files, matched...)
	}

	// Without explicit includes, take only files a parser can handle.
	if len(splitIncludes) == 0 {
		kept := files[:0]
		for _, f := range files {
			if parser.IsSupportedExtension(f.Path) {
				kept = append(kept, f)
			}
		}
		files = kept
	}

	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no matching files")
		return nil
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Splitting"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)

	enc := json.NewEncoder(os.Stdout)
	var processed, chunksTotal, skipped int
	var errs []string

	for _, f := range files {
		bar.Add(1)

		data, err := os.ReadFile(f.Path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f.RelPath, err))
			continue
		}
		if int64(len(data)) > cfg.MaxUploadBytes {
			skipped++
			continue
		}

		mime := parser.MIMEForFile(f.Path, data)
		p, err := registry.Find(mime)
		if err != nil {
			skipped++
			continue
		}

		doc, err := p.Parse(data, f.RelPath)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f.RelPath, err))
			continue
		}

		chunks := splitter.Chunk(doc.Content)
		hash := pipeline.ContentHashHex([]byte(doc.Content))

		if splitOutDir != "" {
			if err := writeFileRecord(doc.Source, mime, hash, doc.WordCount, chunks); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", f.RelPath, err))
				continue
			}
		} else {
			for i, text := range chunks {
				enc.Encode(chunkLine{
					Source:   doc.Source,
					Sequence: i,
					Text:     text,
					Tokens:   chunker.EstimateTokens(text),
				})
			}
		}

		processed++
		chunksTotal += len(chunks)
	}

	fmt.Fprintf(os.Stderr, "\nSplit complete:\n")
	fmt.Fprintf(os.Stderr, "  Files processed: %d\n", processed)
	fmt.Fprintf(os.Stderr, "  Chunks created:  %d\n", chunksTotal)
	fmt.Fprintf(os.Stderr, "  Skipped:         %d (unsupported or oversize)\n", skipped)
	if len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "\nErrors:\n")
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
	}
	if processed == 0 && len(errs) > 0 {
		return fmt.Errorf("all %d files failed", len(errs))
	}
	return nil
}

func writeFileRecord(source, mime, hash string, wordCount int, chunks []string) error {
	rec := fileRecord{
		Source:      source,
		MIMEType:    mime,
		ContentHash: hash,
		WordCount:   wordCount,
		ChunkCount:  len(chunks),
		Chunks:      make([]chunkLine, len(chunks)),
	}
	for i, text := range chunks {
		rec.Chunks[i] = chunkLine{Source: source, Sequence: i, Text: text, Tokens: chunker.EstimateTokens(text)}
	}

	name := indexer.DocPath(source, hash) + ".json"
	out, err := os.Create(filepath.Join(splitOutDir, name))
	if err != nil {
		return err
	}
	defer out.Close()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
