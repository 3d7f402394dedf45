package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dgallion1/docsplit/internal/indexer"
	"github.com/dgallion1/docsplit/internal/parser"
	"github.com/dgallion1/docsplit/internal/pipeline"
	"github.com/dgallion1/docsplit/internal/stats"
	"github.com/dgallion1/docsplit/internal/watcher"
	"github.com/spf13/cobra"
)

var (
	watchChunkSize int
	watchDebounce  time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory and ingest documents as they change",
	Long: `Watch a directory tree for document changes. Once a changed file settles,
it is parsed, chunked, and pushed to the indexer through the same pipeline
the HTTP server uses. Stops on SIGINT or SIGTERM.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchChunkSize, "chunk-size", 0, "max chunk size in characters (default DEFAULT_CHUNK_SIZE)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet period before a change is ingested")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := newLogger(os.Stderr, cfg.LogLevel, false)

	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", args[0], err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx := indexer.NewClient(cfg.IndexerURL, cfg.IndexerAPIKey, cfg.IndexerTimeout, cfg.IndexerRPS)
	registry := buildRegistry()
	tracker := stats.NewTracker(time.Hour)

	orch, err := pipeline.NewOrchestrator(cfg, registry, idx, tracker, log)
	if err != nil {
		return err
	}
	orch.Start(ctx)

	w, err := watcher.New(
		watcher.WithDebounceWindow(watchDebounce),
		watcher.WithLogger(log),
		watcher.WithAccept(func(path string) bool {
			if strings.HasPrefix(filepath.Base(path), ".") {
				return false
			}
			return parser.IsSupportedExtension(path)
		}),
	)
	if err != nil {
		return err
	}
	if err := w.Add(root); err != nil {
		return err
	}
	w.Start(ctx)

	log.Info("watching for changes", "root", root, "debounce", watchDebounce)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-w.Events():
			if !ok {
				break loop
			}
			switch ev.Op {
			case watcher.OpCreate, watcher.OpModify:
				ingestFile(orch, log, root, ev.Path)
			case watcher.OpDelete:
				// Indexer paths embed the content hash, so a removed file
				// cannot be mapped back to its document record.
				log.Info("file removed", "path", ev.Path)
			}
		}
	}

	log.Info("shutting down...")
	w.Stop()
	orch.Stop()
	idx.Close()
	return nil
}

func ingestFile(orch *pipeline.Orchestrator, log *slog.Logger, root, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("read failed", "path", path, "error", err)
		return
	}
	if int64(len(data)) > cfg.MaxUploadBytes {
		log.Warn("file exceeds max size", "path", path, "size", len(data))
		return
	}

	source := filepath.Base(path)
	if rel, err := filepath.Rel(root, path); err == nil {
		source = rel
	}

	mime := parser.MIMEForFile(path, data)
	job := pipeline.NewJob(filepath.Base(path), source, mime, data, watchChunkSize)
	if err := orch.Submit(job); err != nil {
		log.Warn("submit failed", "path", path, "error", err)
		return
	}
	log.Info("queued", "job_id", job.ID, "source", source, "mime", mime)
}
