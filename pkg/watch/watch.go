// Package watch calls back when watched files are written. Bursts of
// writes to one file are collapsed into a single callback.
package watch

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period used when New is given zero.
const DefaultDebounce = 500 * time.Millisecond

type debouncer struct {
	delay  time.Duration
	fn     func(string)
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newDebouncer(delay time.Duration, fn func(string)) *debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &debouncer{delay: delay, fn: fn, timers: make(map[string]*time.Timer)}
}

// trigger (re)arms the timer for path.
func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.timers[path]; ok {
		timer.Stop()
	}
	d.timers[path] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()
		d.fn(path)
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, timer := range d.timers {
		timer.Stop()
		delete(d.timers, path)
	}
}
