package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docsplit/internal/api"
	"github.com/dgallion1/docsplit/internal/indexer"
	"github.com/dgallion1/docsplit/internal/pipeline"
	"github.com/dgallion1/docsplit/internal/stats"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP ingestion service",
	Long: `Start the docsplit HTTP server. Configuration comes from environment
variables (PORT, INDEXER_URL, DOCSPLIT_API_KEY, WORKER_COUNT, ...). The
server shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger(os.Stdout, cfg.LogLevel, true)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	idx := indexer.NewClient(cfg.IndexerURL, cfg.IndexerAPIKey, cfg.IndexerTimeout, cfg.IndexerRPS)
	registry := buildRegistry()
	tracker := stats.NewTracker(time.Hour)

	orch, err := pipeline.NewOrchestrator(cfg, registry, idx, tracker, log)
	if err != nil {
		return err
	}
	orch.Start(ctx)

	srv := api.NewServer(orch, registry, idx, tracker, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		idx.Close()
	}()

	log.Info("starting docsplit", "port", cfg.Port, "workers", cfg.WorkerCount, "indexer", cfg.IndexerURL)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
