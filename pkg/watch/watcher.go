// Package watch re-scores datasets when their files change on disk.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	dgerrors "github.com/datagrade/datagrade/pkg/errors"
)

// DefaultDebounce is how long a dataset must stay quiet after a write
// before a rescan fires. Bulk exports rewrite files in many small writes.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors dataset files and triggers a rescan when one changes.
// A rescan for a dataset never overlaps itself: events arriving while its
// scan is in flight are dropped, and the modtime/size check on the next
// event catches anything the scan already covered.
type Watcher struct {
	fs       *fsnotify.Watcher
	mu       sync.RWMutex
	datasets map[string]*datasetState
	debounce time.Duration

	// OnChange runs after the debounce window for a changed dataset.
	// It receives the absolute dataset path and should perform the rescan.
	OnChange func(ctx context.Context, path string) error

	// OnError receives watch and rescan failures. Path is empty for
	// watcher-level errors.
	OnError func(path string, err error)
}

type datasetState struct {
	path     string
	modTime  time.Time
	size     int64
	scanning bool
}

// New creates a dataset watcher with the default debounce window.
func New() (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, dgerrors.Wrap(err, dgerrors.CodeFatalSource, "cannot create file watcher")
	}
	return &Watcher{
		fs:       fs,
		datasets: make(map[string]*datasetState),
		debounce: DefaultDebounce,
	}, nil
}

// SetDebounce overrides the debounce window. Must be called before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Add registers a dataset file for change tracking. The containing
// directory is watched; editors and exporters often replace files via
// rename, which only the directory watch observes.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeFatalSource, "cannot resolve dataset path")
	}
	stat, err := os.Stat(abs)
	if err != nil {
		return dgerrors.FileNotFound(abs)
	}
	if stat.IsDir() {
		return dgerrors.New(dgerrors.CodeInvalidFormat, "dataset must be a file").
			WithContext("path", abs)
	}

	w.mu.Lock()
	w.datasets[abs] = &datasetState{
		path:    abs,
		modTime: stat.ModTime(),
		size:    stat.Size(),
	}
	w.mu.Unlock()

	if err := w.fs.Add(filepath.Dir(abs)); err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeFatalSource, "cannot watch dataset directory")
	}
	return nil
}

// Run blocks delivering change notifications until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	timers := make(map[string]*time.Timer)
	var timerMu sync.Mutex

	defer func() {
		timerMu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			w.fs.Close()
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			w.mu.RLock()
			state, tracked := w.datasets[abs]
			w.mu.RUnlock()
			if !tracked {
				continue
			}

			timerMu.Lock()
			if t, exists := timers[abs]; exists {
				t.Stop()
			}
			timers[abs] = time.AfterFunc(w.debounce, func() {
				w.rescan(ctx, state)
			})
			timerMu.Unlock()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError("", err)
			}
		}
	}
}

func (w *Watcher) rescan(ctx context.Context, state *datasetState) {
	w.mu.Lock()
	if state.scanning {
		w.mu.Unlock()
		return
	}
	state.scanning = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		state.scanning = false
		w.mu.Unlock()
	}()

	stat, err := os.Stat(state.path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(state.path, err)
		}
		return
	}
	// Spurious event: nothing actually changed since the last scan.
	if stat.ModTime().Equal(state.modTime) && stat.Size() == state.size {
		return
	}

	w.mu.Lock()
	state.modTime = stat.ModTime()
	state.size = stat.Size()
	w.mu.Unlock()

	if w.OnChange == nil {
		return
	}
	if err := w.OnChange(ctx, state.path); err != nil {
		if w.OnError != nil {
			w.OnError(state.path, err)
		}
	}
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
