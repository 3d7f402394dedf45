package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgallion1/docsplit/internal/document"
)

type Config struct {
	Port string

	// Indexer connection (downstream chunk sink)
	IndexerURL     string
	IndexerAPIKey  string
	IndexerTimeout time.Duration
	IndexerRPS     int // Requests per second pushed to the indexer; 0 disables limiting.

	// Auth
	DocsplitAPIKey string

	// Worker pool
	WorkerCount       int
	MaxQueueSize      int
	MaxConcurrentPush int

	// Upload limits
	MaxUploadBytes int64

	// Chunking defaults
	DefaultChunkSize int

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool

	// Logging
	LogLevel string
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		IndexerURL:     envOr("INDEXER_URL", "http://localhost:8080"),
		IndexerAPIKey:  os.Getenv("INDEXER_API_KEY"),
		IndexerTimeout: envDuration("INDEXER_TIMEOUT", 30*time.Second),
		IndexerRPS:     envInt("INDEXER_RPS", 0),

		DocsplitAPIKey: os.Getenv("DOCSPLIT_API_KEY"),

		WorkerCount:       envInt("WORKER_COUNT", 4),
		MaxQueueSize:      envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentPush: envInt("MAX_CONCURRENT_PUSH", 10),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		DefaultChunkSize: envInt("DEFAULT_CHUNK_SIZE", 1000),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentPush <= 0 {
		cfg.MaxConcurrentPush = 10
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.IndexerTimeout <= 0 {
		cfg.IndexerTimeout = 30 * time.Second
	}
	if cfg.IndexerRPS < 0 {
		cfg.IndexerRPS = 0
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.DefaultChunkSize <= 0 {
		return fmt.Errorf("%w: DEFAULT_CHUNK_SIZE must be positive, got %d", document.ErrInvalidArgument, c.DefaultChunkSize)
	}
	if c.IndexerAPIKey == "" {
		return fmt.Errorf("INDEXER_API_KEY is required")
	}
	if c.DocsplitAPIKey == "" {
		return fmt.Errorf("DOCSPLIT_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
