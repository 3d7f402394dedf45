package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusParsing    JobStatus = "parsing"
	StatusChunking   JobStatus = "chunking"
	StatusPushing    JobStatus = "pushing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Job tracks the state of a single document ingestion.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id,omitempty"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Source   string    `json:"source"`
	MIMEType string    `json:"mime_type"`

	// ChunkSize overrides the service default when > 0.
	ChunkSize int `json:"chunk_size,omitempty"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	DocPath     string    `json:"doc_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	errors   []string
}

// Progress tracks processing progress.
type Progress struct {
	WordCount    int      `json:"word_count"`
	TotalChunks  int      `json:"total_chunks"`
	ChunksPushed int      `json:"chunks_pushed"`
	Errors       []string `json:"errors"`
}

// NewJob builds a queued job for an uploaded file. source defaults to the
// filename when empty; chunkSize 0 means the service default.
func NewJob(filename, source, mimeType string, data []byte, chunkSize int) *Job {
	if source == "" {
		source = filename
	}
	now := time.Now()
	return &Job{
		ID:        NewULID(),
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		Source:    source,
		MIMEType:  mimeType,
		ChunkSize: chunkSize,
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetDocument records the identity the parsed document will be indexed under.
func (j *Job) SetDocument(docID, docPath, contentHash string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.DocID = docID
	j.DocPath = docPath
	j.ContentHash = contentHash
	j.UpdatedAt = time.Now()
}

// SetWordCount records the parsed document's word count.
func (j *Job) SetWordCount(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.WordCount = n
	j.UpdatedAt = time.Now()
}

// SetTotalChunks records total chunk count.
func (j *Job) SetTotalChunks(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalChunks = n
	j.UpdatedAt = time.Now()
}

// SetChunksPushed records how many chunks reached the indexer.
func (j *Job) SetChunksPushed(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksPushed = n
	j.UpdatedAt = time.Now()
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// ReleaseFileData drops the raw bytes once processing no longer needs them.
func (j *Job) ReleaseFileData() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	DocID       string    `json:"doc_id,omitempty"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Filename    string    `json:"filename"`
	Source      string    `json:"source"`
	MIMEType    string    `json:"mime_type"`
	ContentHash string    `json:"content_hash,omitempty"`
	DocPath     string    `json:"doc_path,omitempty"`
	Progress    Progress  `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobSnapshot{
		ID:          j.ID,
		DocID:       j.DocID,
		Status:      j.Status,
		Phase:       j.Phase,
		Filename:    j.Filename,
		Source:      j.Source,
		MIMEType:    j.MIMEType,
		ContentHash: j.ContentHash,
		DocPath:     j.DocPath,
		Progress: Progress{
			WordCount:    j.Progress.WordCount,
			TotalChunks:  j.Progress.TotalChunks,
			ChunksPushed: j.Progress.ChunksPushed,
			Errors:       errs,
		},
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
