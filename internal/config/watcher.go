package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// defaultPollInterval is how often the Watcher checks the file when no
// interval is configured.
const defaultPollInterval = 5 * time.Second

// Watcher polls a config file and calls a callback when its content changes.
// Polling keeps the dependency surface small; mtime plus a content hash
// avoids false triggers from touch-without-change.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config

	done     chan struct{}
	stopOnce sync.Once

	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithPollInterval overrides the default 5 s poll interval.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.interval = d }
}

// NewWatcher loads the config at path and returns a Watcher that invokes
// onChange(old, new) whenever a subsequent load produces a different, valid
// config. Invalid edits are logged and skipped; the previous config stays
// active.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w.current = cfg

	if mtime, hash, err := w.fileState(); err == nil {
		w.lastMtime, w.lastHash = mtime, hash
	}

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends the polling loop. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) loop() {
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

// check reloads the file when its mtime or content hash moved.
func (w *Watcher) check() {
	mtime, hash, err := w.fileState()
	if err != nil {
		slog.Warn("config poll failed", "path", w.path, "err", err)
		return
	}
	if mtime.Equal(w.lastMtime) && hash == w.lastHash {
		return
	}
	w.lastMtime, w.lastHash = mtime, hash

	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("config reload failed, keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// fileState returns the file's mtime and content hash.
func (w *Watcher) fileState() (time.Time, [sha256.Size]byte, error) {
	var zero [sha256.Size]byte
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, zero, fmt.Errorf("config: stat %q: %w", w.path, err)
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return time.Time{}, zero, fmt.Errorf("config: read %q: %w", w.path, err)
	}
	return info.ModTime(), sha256.Sum256(data), nil
}
