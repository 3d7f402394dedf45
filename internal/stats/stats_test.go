package stats

import (
	"testing"
	"time"
)

func TestOpStats_SnapshotPercentiles(t *testing.T) {
	s := NewOpStats(time.Hour)
	s.Record(100 * time.Millisecond)
	s.Record(200 * time.Millisecond)
	s.Record(300 * time.Millisecond)
	s.Record(400 * time.Millisecond)
	s.Record(500 * time.Millisecond)

	snap := s.Snapshot()
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 {
		t.Fatalf("expected min=100, got %d", snap.MinMs)
	}
	if snap.MaxMs != 500 {
		t.Fatalf("expected max=500, got %d", snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestOpStats_PrunesExpiredSamples(t *testing.T) {
	s := NewOpStats(10 * time.Millisecond)
	s.Record(100 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	snap := s.Snapshot()
	if snap.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Count)
	}

	s.Record(200 * time.Millisecond)
	snap = s.Snapshot()
	if snap.Count != 1 {
		t.Fatalf("expected count=1 for fresh sample, got %d", snap.Count)
	}
	if snap.MinMs != 200 || snap.MaxMs != 200 {
		t.Fatalf("expected min=max=200, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}

func TestOpStats_ClampsNegativeDuration(t *testing.T) {
	s := NewOpStats(time.Hour)
	s.Record(-10 * time.Millisecond)
	snap := s.Snapshot()
	if snap.Count != 1 {
		t.Fatalf("expected count=1, got %d", snap.Count)
	}
	if snap.MinMs != 0 || snap.MaxMs != 0 {
		t.Fatalf("expected clamped duration=0, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}

func TestOpStats_FailuresSurviveWindow(t *testing.T) {
	s := NewOpStats(10 * time.Millisecond)
	s.RecordFailure()
	s.RecordFailure()
	time.Sleep(25 * time.Millisecond)

	snap := s.Snapshot()
	if snap.Count != 0 {
		t.Fatalf("expected count=0, got %d", snap.Count)
	}
	if snap.Failures != 2 {
		t.Fatalf("expected failures=2, got %d", snap.Failures)
	}
}

func TestTracker_SnapshotKeysAllOperations(t *testing.T) {
	tr := NewTracker(time.Hour)
	tr.Parse.Record(50 * time.Millisecond)
	tr.Push.RecordFailure()

	snap := tr.Snapshot()
	for _, op := range []string{OpParse, OpChunk, OpPush} {
		if _, ok := snap[op]; !ok {
			t.Fatalf("expected snapshot to include %q", op)
		}
	}
	if snap[OpParse].Count != 1 {
		t.Errorf("expected one parse sample, got %d", snap[OpParse].Count)
	}
	if snap[OpChunk].Count != 0 {
		t.Errorf("expected no chunk samples, got %d", snap[OpChunk].Count)
	}
	if snap[OpPush].Failures != 1 {
		t.Errorf("expected one push failure, got %d", snap[OpPush].Failures)
	}
}
