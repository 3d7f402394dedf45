package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docsplit/internal/chunker"
	"github.com/dgallion1/docsplit/internal/indexer"
	"github.com/dgallion1/docsplit/internal/metrics"
	"github.com/dgallion1/docsplit/internal/parser"
	"github.com/dgallion1/docsplit/internal/stats"
	"github.com/google/uuid"
)

// Worker processes a single document job.
type Worker struct {
	registry *parser.Registry
	splitter *chunker.TextChunker
	indexer  *indexer.Client
	tracker  *stats.Tracker
	log      *slog.Logger

	// pushSem bounds concurrent indexer pushes across the whole pool.
	pushSem chan struct{}
}

func NewWorker(registry *parser.Registry, splitter *chunker.TextChunker, idx *indexer.Client, tracker *stats.Tracker, log *slog.Logger, pushSem chan struct{}) *Worker {
	return &Worker{
		registry: registry,
		splitter: splitter,
		indexer:  idx,
		tracker:  tracker,
		log:      log,
		pushSem:  pushSem,
	}
}

// Process runs the full ingest pipeline for a job: parse, chunk, push.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename, "source", job.Source)
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	// Phase 1: Parse.
	job.SetStatus(StatusParsing, "parsing")
	p, err := w.registry.Find(job.MIMEType)
	if err != nil {
		log.Error("unsupported format", "mime_type", job.MIMEType, "error", err)
		w.fail(job, "parsing", err.Error())
		return
	}

	start := time.Now()
	doc, err := p.Parse(job.FileData(), job.Filename)
	metrics.RecordStage(stats.OpParse, time.Since(start), err)
	if err != nil {
		w.tracker.Parse.RecordFailure()
		log.Error("parse failed", "error", err)
		w.fail(job, "parsing", fmt.Sprintf("parse: %s", err))
		return
	}
	w.tracker.Parse.Record(time.Since(start))
	job.ReleaseFileData()

	doc.ID = uuid.NewString()
	if job.Source != "" {
		doc.Source = job.Source
	}
	hash := ContentHashHex([]byte(doc.Content))
	docPath := indexer.DocPath(doc.Source, hash)
	job.SetDocument(doc.ID, docPath, hash)
	job.SetWordCount(doc.WordCount)

	// Phase 1.5: Dedup check against the indexer.
	if existing, err := w.indexer.GetDocument(ctx, docPath); err != nil {
		log.Warn("dedup check failed, proceeding", "error", err)
	} else if existing != nil && existing.ContentHash == hash {
		log.Info("duplicate document, skipping", "existing_doc_id", existing.ID)
		job.SetStatus(StatusDupSkipped, "dedup")
		metrics.RecordDocument(job.MIMEType, string(StatusDupSkipped))
		return
	}

	// Phase 2: Chunk.
	job.SetStatus(StatusChunking, "chunking")
	splitter := w.splitter
	if job.ChunkSize > 0 {
		splitter, err = chunker.New(job.ChunkSize)
		if err != nil {
			log.Error("bad chunk size", "chunk_size", job.ChunkSize, "error", err)
			w.fail(job, "chunking", err.Error())
			return
		}
	}

	start = time.Now()
	chunks := splitter.Chunk(doc.Content)
	metrics.RecordStage(stats.OpChunk, time.Since(start), nil)
	w.tracker.Chunk.Record(time.Since(start))
	metrics.RecordChunks(chunks)
	job.SetTotalChunks(len(chunks))
	log.Info("chunked document", "chunks", len(chunks), "words", doc.WordCount)

	if len(chunks) == 0 {
		log.Warn("no chunks produced")
		w.fail(job, "chunking", "no indexable content")
		return
	}

	// Phase 3: Push to the indexer.
	job.SetStatus(StatusPushing, "pushing")
	rec := indexer.DocumentRecord{
		ID:          doc.ID,
		Source:      doc.Source,
		ContentHash: hash,
		WordCount:   doc.WordCount,
		ChunkCount:  len(chunks),
		IngestedAt:  time.Now().UTC(),
		Chunks:      chunkRecords(chunks),
	}

	select {
	case w.pushSem <- struct{}{}:
	case <-ctx.Done():
		w.fail(job, "pushing", ctx.Err().Error())
		return
	}
	defer func() { <-w.pushSem }()

	start = time.Now()
	pushErr := w.pushWithRetry(ctx, docPath, rec, log)
	metrics.RecordStage(stats.OpPush, time.Since(start), pushErr)
	if pushErr != nil {
		w.tracker.Push.RecordFailure()
		log.Error("push failed", "doc_path", docPath, "error", pushErr)
		w.fail(job, "pushing", fmt.Sprintf("push: %s", pushErr))
		return
	}
	w.tracker.Push.Record(time.Since(start))

	job.SetChunksPushed(len(chunks))
	job.SetStatus(StatusCompleted, "done")
	metrics.RecordDocument(job.MIMEType, string(StatusCompleted))
	log.Info("document indexed", "doc_path", docPath, "chunks", len(chunks))
}

// pushWithRetry sends the document, retrying transient indexer failures with
// backoff.
func (w *Worker) pushWithRetry(ctx context.Context, docPath string, rec indexer.DocumentRecord, log *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		lastErr = w.indexer.PutDocument(ctx, docPath, rec)
		if lastErr == nil || !indexer.IsRetryable(lastErr) {
			return lastErr
		}
		log.Warn("retryable push error", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (w *Worker) fail(job *Job, phase, msg string) {
	job.AddError(msg)
	job.SetStatus(StatusFailed, phase)
	metrics.RecordDocument(job.MIMEType, string(StatusFailed))
}

func chunkRecords(chunks []string) []indexer.ChunkRecord {
	recs := make([]indexer.ChunkRecord, len(chunks))
	for i, text := range chunks {
		recs[i] = indexer.ChunkRecord{
			Sequence: i,
			Text:     text,
			Tokens:   chunker.EstimateTokens(text),
		}
	}
	return recs
}
