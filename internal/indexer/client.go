package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Client communicates with the downstream indexer HTTP API, the service that
// stores chunks for retrieval.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a client for the indexer at baseURL. rps > 0 throttles
// outgoing requests; 0 disables limiting.
func NewClient(baseURL, apiKey string, timeout time.Duration, rps int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

// ChunkRecord is one ordered chunk in a push payload.
type ChunkRecord struct {
	Sequence int    `json:"sequence"`
	Text     string `json:"text"`
	Tokens   int    `json:"tokens"`
}

// DocumentRecord is the body for PUT /documents/{path}.
type DocumentRecord struct {
	ID          string        `json:"id"`
	Source      string        `json:"source"`
	ContentHash string        `json:"content_hash"`
	WordCount   int           `json:"word_count"`
	ChunkCount  int           `json:"chunk_count"`
	IngestedAt  time.Time     `json:"ingested_at"`
	Chunks      []ChunkRecord `json:"chunks"`
}

// DocumentSummary is a single entry from a listing.
type DocumentSummary struct {
	Path        string    `json:"path"`
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	ContentHash string    `json:"content_hash"`
	ChunkCount  int       `json:"chunk_count"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// PutDocument stores or replaces a document and its chunks at the given path.
func (c *Client) PutDocument(ctx context.Context, path string, rec DocumentRecord) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/documents/"+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("put document %s: %v", path, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError("put document "+path, resp)
	}
	return nil
}

// GetDocument retrieves a document by path. Returns (nil, nil) when the
// indexer does not have it.
func (c *Client) GetDocument(ctx context.Context, path string) (*DocumentRecord, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/documents/"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &RetryableError{Message: fmt.Sprintf("get document %s: %v", path, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get document "+path, resp)
	}

	var rec DocumentRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &rec, nil
}

// DeleteDocument removes a document. Deleting an absent document is not an
// error, so retries of a successful delete stay quiet.
func (c *Client) DeleteDocument(ctx context.Context, path string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/documents/"+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("delete document %s: %v", path, err)}
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return statusError("delete document "+path, resp)
}

// ListDocuments lists stored documents, newest first per the indexer's
// contract. limit <= 0 lets the indexer choose.
func (c *Client) ListDocuments(ctx context.Context, limit int) ([]DocumentSummary, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	u := c.baseURL + "/documents"
	if limit > 0 {
		u += "?limit=" + url.QueryEscape(fmt.Sprintf("%d", limit))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &RetryableError{Message: fmt.Sprintf("list documents: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list documents", resp)
	}

	var result struct {
		Documents []DocumentSummary `json:"documents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return result.Documents, nil
}

// Health checks the indexer's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("indexer health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("indexer health: status %d", resp.StatusCode)
	}
	return nil
}

// Close releases any resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// statusError reads a bounded slice of the error body and classifies the
// status: 429 and 5xx are retryable, everything else is permanent.
func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s: %s", op, string(body)),
		}
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, string(body))
}

// RetryableError indicates a transient failure that can be retried. A zero
// StatusCode means the request never got a response.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("retryable error: %s", truncate(e.Message, 200))
	}
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
