package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docsplit/internal/config"
	"github.com/dgallion1/docsplit/internal/indexer"
	"github.com/dgallion1/docsplit/internal/parser"
	"github.com/dgallion1/docsplit/internal/pipeline"
	"github.com/dgallion1/docsplit/internal/stats"
)

const testAPIKey = "test-api-key"

type fakeIndexer struct {
	mu   sync.Mutex
	docs map[string]indexer.DocumentRecord
	puts int
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{docs: make(map[string]indexer.DocumentRecord)}
}

func (f *fakeIndexer) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/documents", f.handleList)
	mux.HandleFunc("/documents/", f.handleDoc)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func (f *fakeIndexer) handleDoc(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/documents/")
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		var rec indexer.DocumentRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.docs[path] = rec
		f.puts++
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		rec, ok := f.docs[path]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(rec)
	case http.MethodDelete:
		delete(f.docs, path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeIndexer) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	summaries := make([]indexer.DocumentSummary, 0, len(f.docs))
	for path, rec := range f.docs {
		summaries = append(summaries, indexer.DocumentSummary{
			Path:        path,
			ID:          rec.ID,
			Source:      rec.Source,
			ContentHash: rec.ContentHash,
			ChunkCount:  rec.ChunkCount,
			IngestedAt:  rec.IngestedAt,
		})
	}
	json.NewEncoder(w).Encode(map[string]any{"documents": summaries})
}

func (f *fakeIndexer) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func (f *fakeIndexer) put(path string, rec indexer.DocumentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[path] = rec
}

func newTestServer(t *testing.T, startWorkers bool) (*Server, *fakeIndexer) {
	t.Helper()

	fake := newFakeIndexer()
	backend := fake.server()
	t.Cleanup(backend.Close)

	cfg := config.Config{
		Port:              "0",
		IndexerURL:        backend.URL,
		DocsplitAPIKey:    testAPIKey,
		WorkerCount:       2,
		MaxQueueSize:      8,
		MaxConcurrentPush: 2,
		MaxUploadBytes:    1 << 20,
		DefaultChunkSize:  1000,
		JobTTL:            time.Hour,
	}

	idx := indexer.NewClient(backend.URL, "indexer-key", 5*time.Second, 0)
	tracker := stats.NewTracker(time.Hour)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := parser.DefaultRegistry()

	orch, err := pipeline.NewOrchestrator(cfg, registry, idx, tracker, log)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	if startWorkers {
		orch.Start(context.Background())
		t.Cleanup(orch.Stop)
	}

	return NewServer(orch, registry, idx, tracker, log, cfg), fake
}

func doRequest(t *testing.T, srv *Server, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func multipartUpload(t *testing.T, filename string, content []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func waitForJobStatus(t *testing.T, srv *Server, jobID string, want pipeline.JobStatus) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rr := doRequest(t, srv, http.MethodGet, "/v1/jobs/"+jobID, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("poll job: status = %d, body %s", rr.Code, rr.Body.String())
		}
		snap := decodeJSON(t, rr)
		status, _ := snap["status"].(string)
		if status == string(want) {
			return snap
		}
		if status == string(pipeline.StatusFailed) && want != pipeline.StatusFailed {
			t.Fatalf("job failed: %v", snap["progress"])
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestHealthzWithoutAuth(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "ok") {
		t.Errorf("body = %q, want it to contain %q", rr.Body.String(), "ok")
	}
}

func TestMetricsWithoutAuth(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestAuthMissingHeader(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	body := decodeJSON(t, rr)
	if body["error"] != "missing authorization" {
		t.Errorf("error = %q, want %q", body["error"], "missing authorization")
	}
}

func TestAuthWrongKey(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	body := decodeJSON(t, rr)
	if body["error"] != "invalid api key" {
		t.Errorf("error = %q, want %q", body["error"], "invalid api key")
	}
}

func TestSplitRawBody(t *testing.T) {
	srv, _ := newTestServer(t, false)

	content := "A short sentence. Another one here. And a third."
	rr := doRequest(t, srv, http.MethodPost, "/v1/split?filename=notes.txt&chunk_size=20", "text/plain", strings.NewReader(content))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp splitResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MIMEType != "text/plain" {
		t.Errorf("mime_type = %q, want %q", resp.MIMEType, "text/plain")
	}
	if resp.Source != "notes.txt" {
		t.Errorf("source = %q, want %q", resp.Source, "notes.txt")
	}
	if resp.WordCount != 9 {
		t.Errorf("word_count = %d, want 9", resp.WordCount)
	}
	if resp.ChunkCount != 3 || len(resp.Chunks) != 3 {
		t.Fatalf("chunk_count = %d (len %d), want 3", resp.ChunkCount, len(resp.Chunks))
	}
	if resp.Chunks[0].Text != "A short sentence." {
		t.Errorf("first chunk = %q", resp.Chunks[0].Text)
	}
	if resp.Chunks[2].Sequence != 2 {
		t.Errorf("last sequence = %d, want 2", resp.Chunks[2].Sequence)
	}
	if resp.Chunks[0].Tokens < 1 {
		t.Errorf("tokens = %d, want >= 1", resp.Chunks[0].Tokens)
	}
	if len(resp.ContentHash) != 64 {
		t.Errorf("content_hash length = %d, want 64", len(resp.ContentHash))
	}
}

func TestSplitMultipart(t *testing.T) {
	srv, _ := newTestServer(t, false)

	body, contentType := multipartUpload(t, "report.txt", []byte("One sentence. Two sentence."), map[string]string{
		"source": "meeting-notes",
	})
	rr := doRequest(t, srv, http.MethodPost, "/v1/split", contentType, body)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp splitResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Source != "meeting-notes" {
		t.Errorf("source = %q, want %q", resp.Source, "meeting-notes")
	}
	if resp.ChunkCount != 1 {
		t.Errorf("chunk_count = %d, want 1", resp.ChunkCount)
	}
}

func TestSplitUnsupportedMIME(t *testing.T) {
	srv, _ := newTestServer(t, false)

	rr := doRequest(t, srv, http.MethodPost, "/v1/split", "application/zip", strings.NewReader("binary stuff"))

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415, body %s", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr)
	if msg, _ := body["error"].(string); !strings.Contains(msg, "unsupported") {
		t.Errorf("error = %q, want it to mention unsupported", msg)
	}
}

func TestSplitRejectsBadChunkSize(t *testing.T) {
	srv, _ := newTestServer(t, false)

	for _, bad := range []string{"abc", "0", "-5", "1.5"} {
		rr := doRequest(t, srv, http.MethodPost, "/v1/split?chunk_size="+bad, "text/plain", strings.NewReader("Some text."))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("chunk_size=%q: status = %d, want 400", bad, rr.Code)
		}
	}
}

func TestSplitEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t, false)

	rr := doRequest(t, srv, http.MethodPost, "/v1/split", "text/plain", strings.NewReader(""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rr.Code, rr.Body.String())
	}
}

func TestIngestCompletesJob(t *testing.T) {
	srv, fake := newTestServer(t, true)

	body, contentType := multipartUpload(t, "notes.txt", []byte("First sentence here. Second sentence there."), nil)
	rr := doRequest(t, srv, http.MethodPost, "/v1/ingest", contentType, body)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", rr.Code, rr.Body.String())
	}
	accepted := decodeJSON(t, rr)
	jobID, _ := accepted["job_id"].(string)
	if jobID == "" {
		t.Fatal("missing job_id in response")
	}
	if pollURL, _ := accepted["poll_url"].(string); pollURL != "/v1/jobs/"+jobID {
		t.Errorf("poll_url = %q", pollURL)
	}

	snap := waitForJobStatus(t, srv, jobID, pipeline.StatusCompleted)
	if fake.putCount() != 1 {
		t.Errorf("indexer puts = %d, want 1", fake.putCount())
	}
	if docPath, _ := snap["doc_path"].(string); !strings.HasPrefix(docPath, "notes-") {
		t.Errorf("doc_path = %q, want notes- prefix", docPath)
	}
}

func TestIngestUnsupportedType(t *testing.T) {
	srv, fake := newTestServer(t, true)

	body, contentType := multipartUpload(t, "archive.zip", []byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0x00}, nil)
	rr := doRequest(t, srv, http.MethodPost, "/v1/ingest", contentType, body)

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415, body %s", rr.Code, rr.Body.String())
	}
	if fake.putCount() != 0 {
		t.Errorf("indexer puts = %d, want 0", fake.putCount())
	}
}

func TestIngestRejectsBadChunkSize(t *testing.T) {
	srv, _ := newTestServer(t, false)

	body, contentType := multipartUpload(t, "notes.txt", []byte("Some text."), map[string]string{
		"chunk_size": "zero",
	})
	rr := doRequest(t, srv, http.MethodPost, "/v1/ingest", contentType, body)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rr.Code, rr.Body.String())
	}
}

func TestIngestMissingFile(t *testing.T) {
	srv, _ := newTestServer(t, false)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("source", "nowhere")
	mw.Close()

	rr := doRequest(t, srv, http.MethodPost, "/v1/ingest", mw.FormDataContentType(), &buf)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rr.Code, rr.Body.String())
	}
}

func TestJobNotFound(t *testing.T) {
	srv, _ := newTestServer(t, false)

	rr := doRequest(t, srv, http.MethodGet, "/v1/jobs/01ARZ3NDEKTSV4RRFFQ69G5FAV", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestBatchIngest(t *testing.T) {
	srv, fake := newTestServer(t, true)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"first.txt", "second.txt"} {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write([]byte("Sentence for " + name + ". Another sentence."))
	}
	mw.Close()

	rr := doRequest(t, srv, http.MethodPost, "/v1/ingest/batch", mw.FormDataContentType(), &buf)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", rr.Code, rr.Body.String())
	}

	body := decodeJSON(t, rr)
	jobs, _ := body["jobs"].([]any)
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	for _, j := range jobs {
		entry, _ := j.(map[string]any)
		jobID, _ := entry["job_id"].(string)
		if jobID == "" {
			t.Fatalf("batch entry missing job_id: %v", entry)
		}
		waitForJobStatus(t, srv, jobID, pipeline.StatusCompleted)
	}
	if fake.putCount() != 2 {
		t.Errorf("indexer puts = %d, want 2", fake.putCount())
	}
}

func TestBatchIngestNoFiles(t *testing.T) {
	srv, _ := newTestServer(t, false)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("chunk_size", "500")
	mw.Close()

	rr := doRequest(t, srv, http.MethodPost, "/v1/ingest/batch", mw.FormDataContentType(), &buf)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rr.Code, rr.Body.String())
	}
}

func TestListDocuments(t *testing.T) {
	srv, fake := newTestServer(t, false)
	fake.put("notes-abc123", indexer.DocumentRecord{ID: "id-1", Source: "notes.txt", ChunkCount: 2})

	rr := doRequest(t, srv, http.MethodGet, "/v1/documents?limit=5", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr)
	docs, _ := body["documents"].([]any)
	if len(docs) != 1 {
		t.Fatalf("documents = %d, want 1", len(docs))
	}
}

func TestListDocumentsBadLimit(t *testing.T) {
	srv, _ := newTestServer(t, false)

	rr := doRequest(t, srv, http.MethodGet, "/v1/documents?limit=nope", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestGetDocument(t *testing.T) {
	srv, fake := newTestServer(t, false)
	fake.put("notes-abc123", indexer.DocumentRecord{ID: "id-1", Source: "notes.txt", ContentHash: "abc123", ChunkCount: 2})

	rr := doRequest(t, srv, http.MethodGet, "/v1/documents/notes-abc123", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var rec indexer.DocumentRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ID != "id-1" || rec.Source != "notes.txt" {
		t.Errorf("record = %+v", rec)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	srv, _ := newTestServer(t, false)

	rr := doRequest(t, srv, http.MethodGet, "/v1/documents/missing-doc", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestDeleteDocument(t *testing.T) {
	srv, fake := newTestServer(t, false)
	fake.put("notes-abc123", indexer.DocumentRecord{ID: "id-1"})

	rr := doRequest(t, srv, http.MethodDelete, "/v1/documents/notes-abc123", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr)
	if deleted, _ := body["deleted"].(bool); !deleted {
		t.Errorf("deleted = %v, want true", body["deleted"])
	}

	rr = doRequest(t, srv, http.MethodGet, "/v1/documents/notes-abc123", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("after delete: status = %d, want 404", rr.Code)
	}
}

func TestParsersEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, false)

	rr := doRequest(t, srv, http.MethodGet, "/v1/parsers", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp struct {
		Parsers []struct {
			Parser    string   `json:"parser"`
			MIMETypes []string `json:"mime_types"`
		} `json:"parsers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Parsers) == 0 {
		t.Fatal("no parsers returned")
	}
	if resp.Parsers[0].Parser != "TextParser" {
		t.Errorf("first parser = %q, want TextParser", resp.Parsers[0].Parser)
	}
	if len(resp.Parsers[0].MIMETypes) == 0 || resp.Parsers[0].MIMETypes[0] != "text/plain" {
		t.Errorf("TextParser mime_types = %v", resp.Parsers[0].MIMETypes)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, false)

	// Drive one split so the parse and chunk trackers have samples.
	rr := doRequest(t, srv, http.MethodPost, "/v1/split", "text/plain", strings.NewReader("Some text here."))
	if rr.Code != http.StatusOK {
		t.Fatalf("split status = %d", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodGet, "/v1/stats", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rr.Code)
	}

	body := decodeJSON(t, rr)
	ops, _ := body["operations"].(map[string]any)
	if ops == nil {
		t.Fatalf("missing operations in %v", body)
	}
	parse, _ := ops[stats.OpParse].(map[string]any)
	if parse == nil {
		t.Fatalf("missing parse stats in %v", ops)
	}
	if count, _ := parse["count"].(float64); count < 1 {
		t.Errorf("parse count = %v, want >= 1", parse["count"])
	}
	if _, ok := body["queue_depth"]; !ok {
		t.Error("missing queue_depth")
	}
}
