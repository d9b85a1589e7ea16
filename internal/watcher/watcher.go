// Package watcher observes a corpus directory and triggers reindexing when
// documents change. Rapid event bursts are debounced so a bulk copy produces
// one reindex, not hundreds.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the event coalescing window.
const DefaultDebounce = 500 * time.Millisecond

// Options configures the watcher.
type Options struct {
	// Debounce is the quiet period required before OnChange fires.
	Debounce time.Duration

	// Logger receives watch lifecycle and error logs. Nil uses
	// slog.Default.
	Logger *slog.Logger
}

// Watcher observes a directory tree for document changes.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	timer   *time.Timer
	stopped bool
}

// New creates a watcher over dir. onChange is invoked after the debounce
// window closes on a burst of relevant events; it runs on the watcher's
// goroutine and should hand off heavy work.
func New(dir string, onChange func(), opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		debounce: opts.Debounce,
		onChange: onChange,
		logger:   opts.Logger,
	}
}

// Start begins watching. It returns once the watch is established; events are
// processed until the context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := addRecursive(fsw, w.dir); err != nil {
		fsw.Close()
		return err
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	go w.run(ctx, fsw)

	w.logger.Info("watching corpus directory", slog.String("dir", w.dir))
	return nil
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, event fsnotify.Event) {
	// New subdirectories must be added to the watch before their contents
	// generate events.
	if event.Op.Has(fsnotify.Create) {
		if isDir(event.Name) && !isHidden(event.Name) {
			if err := addRecursive(fsw, event.Name); err != nil {
				w.logger.Warn("watching new directory failed",
					slog.String("dir", event.Name),
					slog.String("error", err.Error()))
			}
		}
	}

	if !relevant(event) {
		return
	}

	w.logger.Debug("corpus change detected",
		slog.String("path", event.Name),
		slog.String("op", event.Op.String()))
	w.scheduleChange()
}

// scheduleChange resets the debounce timer; OnChange fires once the burst
// quiets down.
func (w *Watcher) scheduleChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

// relevant reports whether an event should trigger reindexing: write, create,
// remove, or rename of a .txt/.md file.
func relevant(event fsnotify.Event) bool {
	const ops = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	if event.Op&ops == 0 {
		return false
	}
	if isHidden(event.Name) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	return ext == ".txt" || ext == ".md"
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
