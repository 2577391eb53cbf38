package scene

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// LibraryWatcher is a [Source] backed by a library file that is reloaded
// when it changes on disk. It polls rather than using fsnotify. A reload that
// fails to parse keeps the previous library.
type LibraryWatcher struct {
	path     string
	interval time.Duration
	onChange func(*Library)

	mu       sync.Mutex
	current  *Library
	done     chan struct{}
	stopOnce sync.Once

	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

var _ Source = (*LibraryWatcher)(nil)

// WatcherOption configures a [LibraryWatcher].
type WatcherOption func(*LibraryWatcher)

// WithPollInterval sets the polling interval. The default is 5 seconds.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *LibraryWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOnChange registers a callback invoked after every successful reload.
func WithOnChange(fn func(*Library)) WatcherOption {
	return func(w *LibraryWatcher) {
		w.onChange = fn
	}
}

// NewLibraryWatcher loads the library at path and starts polling it.
func NewLibraryWatcher(path string, opts ...WatcherOption) (*LibraryWatcher, error) {
	w := &LibraryWatcher{
		path:     path,
		interval: 5 * time.Second,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	lib, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("scene: watcher initial load: %w", err)
	}
	w.current = lib
	w.lastHash = hash
	w.lastMtime = mtime

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid library.
func (w *LibraryWatcher) Current() *Library {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// LoadSection loads from the current library.
func (w *LibraryWatcher) LoadSection(ctx context.Context, levelID, sectionID string) (*Section, error) {
	return w.Current().LoadSection(ctx, levelID, sectionID)
}

// ListSections lists from the current library.
func (w *LibraryWatcher) ListSections(ctx context.Context, levelID string) ([]Section, error) {
	return w.Current().ListSections(ctx, levelID)
}

// Stop stops polling. It is safe to call more than once.
func (w *LibraryWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *LibraryWatcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *LibraryWatcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("scene watcher: cannot stat library", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()
	if info.ModTime().Equal(mtime) {
		return
	}

	lib, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("scene watcher: keeping previous library", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}
	w.current = lib
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	slog.Info("scene watcher: library reloaded", "path", w.path)

	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(lib)
	}
}

func (w *LibraryWatcher) loadAndHash() (*Library, [sha256.Size]byte, time.Time, error) {
	var zero [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	lib, err := LoadLibraryFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	return lib, sha256.Sum256(data), info.ModTime(), nil
}
