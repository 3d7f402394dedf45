package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher turns raw fsnotify activity on a directory tree into settled
// document change events. Bursts of writes to one file collapse into a single
// event once the file goes quiet.
type Watcher struct {
	fsw *fsnotify.Watcher
	deb *debouncer
	log *slog.Logger

	accept func(path string) bool
	window time.Duration
	grace  time.Duration

	mu    sync.Mutex
	roots []string

	events   chan Event
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounceWindow sets how long a path must stay quiet before its event
// fires.
func WithDebounceWindow(d time.Duration) Option {
	return func(w *Watcher) { w.window = d }
}

// WithDeleteGrace sets the wait before a delete is trusted. Save-by-rename
// editors delete and recreate within this period.
func WithDeleteGrace(d time.Duration) Option {
	return func(w *Watcher) { w.grace = d }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) { w.log = log }
}

// WithAccept sets the file filter. The default accepts any non-hidden file.
func WithAccept(fn func(path string) bool) Option {
	return func(w *Watcher) { w.accept = fn }
}

// New creates a Watcher. Call Add for each root, then Start.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsw:    fsw,
		log:    slog.Default(),
		window: 500 * time.Millisecond,
		grace:  2 * time.Second,
		accept: func(path string) bool {
			return !strings.HasPrefix(filepath.Base(path), ".")
		},
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.deb = newDebouncer(w.window, w.grace)
	return w, nil
}

// Add registers a directory tree. Hidden directories are not descended into.
func (w *Watcher) Add(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return fmt.Errorf("stat %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", absRoot)
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable subtree, keep going
		}
		if !d.IsDir() {
			return nil
		}
		if path != absRoot && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.log.Warn("watch add failed", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.roots = append(w.roots, absRoot)
	w.mu.Unlock()
	w.log.Info("watching", "root", absRoot)
	return nil
}

// Roots returns the registered watch roots.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string{}, w.roots...)
}

// Events returns the settled event stream. Closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins translating raw notifications into settled events.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(2)
	go w.readRaw(ctx)
	go w.forward(ctx)
}

// Stop shuts down the watcher and closes the event channel.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.deb.stop()
		w.wg.Wait()
		close(w.events)
	})
	return err
}

func (w *Watcher) readRaw(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleRaw(ev fsnotify.Event) {
	if isEditorNoise(ev.Name) {
		return
	}

	// New directories join the watch set instead of producing events.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(ev.Name), ".") {
				if err := w.fsw.Add(ev.Name); err != nil {
					w.log.Warn("watch add failed", "path", ev.Name, "error", err)
				}
			}
			return
		}
	}

	if !w.accept(ev.Name) {
		return
	}

	var op Op
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		op = OpDelete
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	default:
		return // chmod only
	}

	w.deb.add(Event{Path: ev.Name, Op: op, At: time.Now()})
}

func (w *Watcher) forward(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev := <-w.deb.events():
			if !w.confirm(&ev) {
				continue
			}
			select {
			case w.events <- ev:
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// confirm re-checks the filesystem once an event settles. A path that
// vanished becomes a delete; a delete whose path reappeared becomes a modify.
func (w *Watcher) confirm(ev *Event) bool {
	info, err := os.Stat(ev.Path)
	switch {
	case err != nil && os.IsNotExist(err):
		ev.Op = OpDelete
		return true
	case err != nil:
		w.log.Warn("stat failed", "path", ev.Path, "error", err)
		return false
	case info.IsDir():
		return false
	case ev.Op == OpDelete:
		ev.Op = OpModify
		return true
	default:
		return true
	}
}

// isEditorNoise reports transient artifacts editors leave during saves.
func isEditorNoise(path string) bool {
	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, ".swp"), strings.HasSuffix(name, ".swo"), strings.HasSuffix(name, ".swx"):
		return true
	case name == "4913": // vim's write-access probe
		return true
	case strings.HasPrefix(name, "#") && strings.HasSuffix(name, "#"):
		return true
	case strings.HasSuffix(name, "~"):
		return true
	}
	return false
}
