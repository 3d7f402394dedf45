package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docsplit/internal/chunker"
	"github.com/dgallion1/docsplit/internal/document"
	"github.com/dgallion1/docsplit/internal/metrics"
	"github.com/dgallion1/docsplit/internal/parser"
	"github.com/dgallion1/docsplit/internal/pipeline"
	"github.com/dgallion1/docsplit/internal/stats"
	"github.com/go-chi/chi/v5"
)

type chunkPayload struct {
	Sequence int    `json:"sequence"`
	Text     string `json:"text"`
	Tokens   int    `json:"tokens"`
}

type splitResponse struct {
	Source      string         `json:"source"`
	MIMEType    string         `json:"mime_type"`
	WordCount   int            `json:"word_count"`
	ContentHash string         `json:"content_hash"`
	ChunkCount  int            `json:"chunk_count"`
	Chunks      []chunkPayload `json:"chunks"`
}

// handleSplit parses and chunks a document synchronously without touching the
// indexer. Accepts a multipart "file" field or a raw request body with
// filename/mime/source/chunk_size taken from query parameters.
func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	var (
		data      []byte
		filename  string
		mimeType  string
		source    string
		chunkSpec string
	)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err = io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
		if err != nil {
			jsonError(w, "failed to read file", http.StatusInternalServerError)
			return
		}
		filename = sanitizeFilename(header.Filename)
		mimeType = r.FormValue("mime")
		source = r.FormValue("source")
		chunkSpec = r.FormValue("chunk_size")
	} else {
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			jsonError(w, "failed to read body: "+err.Error(), http.StatusBadRequest)
			return
		}
		q := r.URL.Query()
		filename = sanitizeFilename(q.Get("filename"))
		mimeType = q.Get("mime")
		source = q.Get("source")
		chunkSpec = q.Get("chunk_size")
		if mimeType == "" && ct != "" {
			mimeType = ct
		}
	}

	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}
	if mimeType == "" {
		mimeType = parser.MIMEForFile(filename, data)
	}

	chunkSize, err := parseChunkSize(chunkSpec)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if chunkSize == 0 {
		chunkSize = s.cfg.DefaultChunkSize
	}

	p, err := s.registry.Find(mimeType)
	if err != nil {
		jsonError(w, err.Error(), statusForError(err))
		return
	}

	start := time.Now()
	doc, err := p.Parse(data, filename)
	metrics.RecordStage(stats.OpParse, time.Since(start), err)
	if err != nil {
		s.tracker.Parse.RecordFailure()
		jsonError(w, err.Error(), statusForError(err))
		return
	}
	s.tracker.Parse.Record(time.Since(start))
	if source != "" {
		doc.Source = source
	}

	splitter, err := chunker.New(chunkSize)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	start = time.Now()
	chunks := splitter.Chunk(doc.Content)
	metrics.RecordStage(stats.OpChunk, time.Since(start), nil)
	s.tracker.Chunk.Record(time.Since(start))
	metrics.RecordChunks(chunks)

	normalized := parser.NormalizeMIME(mimeType)
	metrics.RecordDocument(normalized, "split")

	resp := splitResponse{
		Source:      doc.Source,
		MIMEType:    normalized,
		WordCount:   doc.WordCount,
		ContentHash: pipeline.ContentHashHex([]byte(doc.Content)),
		ChunkCount:  len(chunks),
		Chunks:      make([]chunkPayload, len(chunks)),
	}
	for i, text := range chunks {
		resp.Chunks[i] = chunkPayload{Sequence: i, Text: text, Tokens: chunker.EstimateTokens(text)}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleIngest accepts a multipart upload and queues it for async processing.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// Limit total request size, with slack for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	filename := sanitizeFilename(header.Filename)
	mimeType := r.FormValue("mime")
	if mimeType == "" {
		mimeType = parser.MIMEForFile(filename, data)
	}
	// Reject unsupported types synchronously rather than failing the job.
	if _, err := s.registry.Find(mimeType); err != nil {
		jsonError(w, err.Error(), statusForError(err))
		return
	}

	chunkSize, err := parseChunkSize(r.FormValue("chunk_size"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(filename, r.FormValue("source"), parser.NormalizeMIME(mimeType), data, chunkSize)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/v1/jobs/%s", job.ID),
	})
}

// handleBatchIngest queues several files from one multipart request.
func (s *Server) handleBatchIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	chunkSize, err := parseChunkSize(r.FormValue("chunk_size"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var results []map[string]any
	for _, fh := range files {
		filename := sanitizeFilename(fh.Filename)

		f, err := fh.Open()
		if err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    "failed to open file",
			})
			continue
		}

		data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
		f.Close()
		if err != nil || int64(len(data)) > s.cfg.MaxUploadBytes {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    "file too large or read error",
			})
			continue
		}

		mimeType := parser.MIMEForFile(filename, data)
		if _, err := s.registry.Find(mimeType); err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}

		job := pipeline.NewJob(filename, "", mimeType, data, chunkSize)
		if err := s.orchestrator.Submit(job); err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}

		results = append(results, map[string]any{
			"filename": filename,
			"job_id":   job.ID,
			"status":   pipeline.StatusQueued,
			"poll_url": fmt.Sprintf("/v1/jobs/%s", job.ID),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"jobs": results})
}

// handleJob returns a snapshot of one ingestion job.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

// parseChunkSize parses an optional chunk_size parameter. Empty means "use
// the default"; anything else must be a positive integer.
func parseChunkSize(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: chunk_size must be a positive integer", document.ErrInvalidArgument)
	}
	return n, nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, document.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
