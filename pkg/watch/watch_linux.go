//go:build linux

package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const watchMask = unix.IN_MODIFY | unix.IN_CLOSE_WRITE

// Watcher reports writes through inotify.
type Watcher struct {
	fd    int
	mu    sync.Mutex
	paths map[int]string
	deb   *debouncer
}

// New returns a watcher calling onChange with the absolute path of each
// written file once it has been quiet for delay.
func New(onChange func(string), delay time.Duration) (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init: %w", err)
	}
	return &Watcher{
		fd:    fd,
		paths: make(map[int]string),
		deb:   newDebouncer(delay, onChange),
	}, nil
}

func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	wd, err := unix.InotifyAddWatch(w.fd, abs, watchMask)
	if err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}
	w.mu.Lock()
	w.paths[wd] = abs
	w.mu.Unlock()
	return nil
}

// Run reads events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*8)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(100 * time.Millisecond):
				}
				continue
			}
			return fmt.Errorf("read inotify events: %w", err)
		}

		for off := 0; off+unix.SizeofInotifyEvent <= n; {
			ev := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
			off += unix.SizeofInotifyEvent + int(ev.Len)
			if ev.Mask&watchMask == 0 {
				continue
			}
			w.mu.Lock()
			path := w.paths[int(ev.Wd)]
			w.mu.Unlock()
			if path != "" {
				w.deb.trigger(path)
			}
		}
	}
}

func (w *Watcher) Close() error {
	w.deb.stop()
	return unix.Close(w.fd)
}
