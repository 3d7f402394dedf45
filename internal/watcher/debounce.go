package watcher

import (
	"sync"
	"time"
)

// Op is the coalesced kind of change observed for a path.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is a settled filesystem change.
type Event struct {
	Path string
	Op   Op
	At   time.Time
}

// debouncer folds bursts of raw notifications for the same path into a single
// event, emitted once the path has been quiet for the debounce window. Deletes
// wait out a longer grace period so editor save-by-rename sequences collapse
// into a modify instead of a delete+create pair.
type debouncer struct {
	window time.Duration
	grace  time.Duration

	mu      sync.Mutex
	pending map[string]*pendingChange
	out     chan Event
	done    chan struct{}
	closed  bool
}

type pendingChange struct {
	event Event
	timer *time.Timer
}

func newDebouncer(window, grace time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		grace:   grace,
		pending: make(map[string]*pendingChange),
		out:     make(chan Event, 256),
		done:    make(chan struct{}),
	}
}

// add folds a raw change into the pending set and (re)arms its timer.
func (d *debouncer) add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	path := ev.Path
	if pc, ok := d.pending[path]; ok {
		pc.timer.Stop()

		// A file created and removed inside the window never existed as far
		// as consumers care.
		if pc.event.Op == OpCreate && ev.Op == OpDelete {
			delete(d.pending, path)
			return
		}

		pc.event = merge(pc.event, ev)
		pc.timer = time.AfterFunc(d.delay(pc.event.Op), func() {
			d.fire(path)
		})
		return
	}

	pc := &pendingChange{event: ev}
	pc.timer = time.AfterFunc(d.delay(ev.Op), func() {
		d.fire(path)
	})
	d.pending[path] = pc
}

func (d *debouncer) events() <-chan Event {
	return d.out
}

// stop cancels pending timers and unblocks any in-flight emit. The output
// channel is left open; a timer that already fired may still be selecting on
// it, so lifecycle of downstream channels belongs to the Watcher.
func (d *debouncer) stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for path, pc := range d.pending {
		pc.timer.Stop()
		delete(d.pending, path)
	}
	d.mu.Unlock()

	close(d.done)
}

func (d *debouncer) fire(path string) {
	d.mu.Lock()
	pc, ok := d.pending[path]
	if !ok {
		d.mu.Unlock()
		return
	}
	ev := pc.event
	delete(d.pending, path)
	d.mu.Unlock()

	select {
	case d.out <- ev:
	case <-d.done:
	}
}

func (d *debouncer) delay(op Op) time.Duration {
	if op == OpDelete {
		return d.grace
	}
	return d.window
}

// merge resolves what a sequence of two changes means for a path.
func merge(old, next Event) Event {
	switch {
	case old.Op == OpCreate && next.Op == OpModify:
		// Still a brand new file.
		return Event{Path: next.Path, Op: OpCreate, At: next.At}
	case old.Op == OpDelete && next.Op == OpCreate:
		// Replaced in place (rename-over-save).
		return Event{Path: next.Path, Op: OpModify, At: next.At}
	case old.Op == OpModify && next.Op == OpDelete:
		return Event{Path: next.Path, Op: OpDelete, At: next.At}
	default:
		return next
	}
}

// pendingCount reports how many paths are waiting to settle.
func (d *debouncer) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
