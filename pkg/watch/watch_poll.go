//go:build !linux

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const pollInterval = 250 * time.Millisecond

// Watcher reports writes by polling modification times.
type Watcher struct {
	mu    sync.Mutex
	mtime map[string]time.Time
	deb   *debouncer
}

func New(onChange func(string), delay time.Duration) (*Watcher, error) {
	return &Watcher{
		mtime: make(map[string]time.Time),
		deb:   newDebouncer(delay, onChange),
	}, nil
}

func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.mtime[abs] = info.ModTime()
	w.mu.Unlock()
	return nil
}

func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, last := range w.mtime {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(last) {
			w.mtime[path] = info.ModTime()
			w.deb.trigger(path)
		}
	}
}

func (w *Watcher) Close() error {
	w.deb.stop()
	return nil
}
