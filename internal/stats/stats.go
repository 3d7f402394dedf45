package stats

import (
	"sort"
	"sync"
	"time"
)

// Operation keys used in snapshots of the ingest pipeline.
const (
	OpParse = "parse"
	OpChunk = "chunk"
	OpPush  = "push"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
}

// Snapshot is a point-in-time aggregate of one operation's latency samples.
type Snapshot struct {
	Count    int     `json:"count"`
	Failures int64   `json:"failures"`
	MinMs    int64   `json:"min_ms"`
	MaxMs    int64   `json:"max_ms"`
	AvgMs    float64 `json:"avg_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
}

// OpStats tracks recent latencies for one pipeline operation within a
// rolling window.
type OpStats struct {
	mu       sync.Mutex
	samples  []sample
	failures int64
	maxAge   time.Duration
}

func NewOpStats(maxAge time.Duration) *OpStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &OpStats{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

// Record adds a successful operation's duration to the window.
func (s *OpStats) Record(d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples = append(s.samples, sample{
		timestamp:  now,
		durationMs: ms,
	})
}

// RecordFailure counts a failed operation. Failures carry no latency sample
// and do not expire with the window.
func (s *OpStats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
}

func (s *OpStats) Snapshot() Snapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	if len(s.samples) == 0 {
		return Snapshot{Failures: s.failures}
	}

	values := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	return Snapshot{
		Count:    len(values),
		Failures: s.failures,
		MinMs:    values[0],
		MaxMs:    values[len(values)-1],
		AvgMs:    float64(sum) / float64(len(values)),
		P50Ms:    percentile(values, 50),
		P95Ms:    percentile(values, 95),
		P99Ms:    percentile(values, 99),
	}
}

func (s *OpStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	writeIdx := 0
	for _, sm := range s.samples {
		if !sm.timestamp.Before(cutoff) {
			s.samples[writeIdx] = sm
			writeIdx++
		}
	}
	s.samples = s.samples[:writeIdx]
}

// Tracker bundles the per-operation stats the ingest pipeline records into.
type Tracker struct {
	Parse *OpStats
	Chunk *OpStats
	Push  *OpStats
}

func NewTracker(maxAge time.Duration) *Tracker {
	return &Tracker{
		Parse: NewOpStats(maxAge),
		Chunk: NewOpStats(maxAge),
		Push:  NewOpStats(maxAge),
	}
}

// Snapshot aggregates every operation, keyed for the stats endpoint.
func (t *Tracker) Snapshot() map[string]Snapshot {
	return map[string]Snapshot{
		OpParse: t.Parse.Snapshot(),
		OpChunk: t.Chunk.Snapshot(),
		OpPush:  t.Push.Snapshot(),
	}
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}
