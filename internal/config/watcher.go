package config

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

// Change is delivered to the [Watcher] callback after a valid edit.
type Change struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher polls a config file for edits. A changed file that still
// validates becomes current and is reported with its [Diff]; an invalid edit
// is logged, remembered in [Watcher.Err] and otherwise ignored.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(Change)

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	hash    [sha256.Size]byte
	lastErr error
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and returns a watcher holding it as the current
// config. Polling starts with [Watcher.Run].
func NewWatcher(path string, onChange func(Change), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtime, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.hash, w.mtime = cfg, hash, mtime
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Err returns why the latest edit was rejected, or nil when the file on disk
// is the current config.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.reject(err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.mtime) && w.lastErr == nil
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, hash, mtime, err := w.load()
	if err != nil {
		w.reject(err)
		return
	}

	w.mu.Lock()
	w.mtime = mtime
	w.lastErr = nil
	if hash == w.hash {
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.hash = cfg, hash
	w.mu.Unlock()

	change := Change{Old: old, New: cfg, Diff: Diff(old, cfg)}
	slog.Info("config watcher: configuration reloaded", "path", w.path,
		"hot_reload", !change.Diff.Empty(), "restart_required", change.Diff.RestartRequired)

	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(change)
	}
}

func (w *Watcher) reject(err error) {
	w.mu.Lock()
	first := w.lastErr == nil
	w.lastErr = err
	w.mu.Unlock()
	if first {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
	}
}

func (w *Watcher) load() (*Config, [sha256.Size]byte, time.Time, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
