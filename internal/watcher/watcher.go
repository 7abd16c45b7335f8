// Package watcher watches the dataset directory and reports changed card
// images, debounced into batches so a burst of copies triggers one refresh.
package watcher

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher watches a dataset root and invokes a callback with the batch of
// changed image paths once the directory goes quiet.
type Watcher struct {
	root       string
	extensions []string
	onChange   func(paths []string)
	debounce   time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	watcher *fsnotify.Watcher
	started bool

	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger // optional; when set, logs events
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for event logging.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the quiet period before a batch is reported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher over root. extensions filters which files count as
// cards (empty = all); onChange receives each debounced batch, sorted.
func New(root string, extensions []string, onChange func(paths []string), opts ...Option) *Watcher {
	w := &Watcher{
		root:       root,
		extensions: extensions,
		onChange:   onChange,
		debounce:   defaultDebounce,
		pending:    make(map[string]struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fsw.Add(w.root); err != nil {
		_ = fsw.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = fsw
	w.started = true
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Info("watching dataset directory",
			zap.String("root", w.root),
			zap.Strings("extensions", w.extensions),
		)
	}
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !w.matchExtension(ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if w.logger != nil {
		w.logger.Debug("dataset change",
			zap.String("op", ev.Op.String()),
			zap.String("path", ev.Name),
		)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[filepath.Clean(ev.Name)] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush hands the accumulated batch to the callback.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(paths)
	if w.onChange != nil {
		w.onChange(paths)
	}
}

func (w *Watcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
		w.started = false
		w.mu.Unlock()
	})
}
