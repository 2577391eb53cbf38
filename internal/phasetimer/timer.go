// Package phasetimer provides a restartable countdown with tick and finish
// callbacks.
//
// Each Start begins a new run in its own goroutine. A run ends either when
// its duration elapses or when it is cancelled, and in both cases its
// onFinish callback runs exactly once, so downstream finalisation does not
// need to care why the countdown stopped. Starting a new run cancels the
// previous one.
//
// Callbacks are invoked from the run's goroutine, never from within Start or
// Cancel, so callers may hold their own locks while calling into the Timer.
package phasetimer

import (
	"sync"
	"time"
)

const defaultInterval = time.Second

// Option configures a [Timer].
type Option func(*Timer)

// WithInterval sets the length of one countdown step. The default is one
// second; tests use a few milliseconds.
func WithInterval(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// Timer is a restartable countdown. The zero value is not usable; use New.
type Timer struct {
	interval time.Duration

	mu  sync.Mutex
	cur *run
	wg  sync.WaitGroup
}

type run struct {
	stop chan struct{}
	once sync.Once
}

func (r *run) cancel() {
	r.once.Do(func() { close(r.stop) })
}

// New returns an idle Timer.
func New(opts ...Option) *Timer {
	t := &Timer{interval: defaultInterval}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start begins a countdown of seconds steps. onTick receives the remaining
// step count after every step except the last; onFinish runs once when the
// countdown elapses or is cancelled. A non-positive seconds finishes
// immediately. Either callback may be nil.
func (t *Timer) Start(seconds int, onTick func(remaining int), onFinish func()) {
	r := &run{stop: make(chan struct{})}

	t.mu.Lock()
	prev := t.cur
	t.cur = r
	t.wg.Add(1)
	t.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	go t.loop(r, seconds, onTick, onFinish)
}

// Cancel stops the current run early. Its onFinish still fires. Cancel is a
// no-op when nothing is running.
func (t *Timer) Cancel() {
	t.mu.Lock()
	r := t.cur
	t.cur = nil
	t.mu.Unlock()

	if r != nil {
		r.cancel()
	}
}

// Wait blocks until every run, including its onFinish, has returned. It must
// not be called from a callback.
func (t *Timer) Wait() {
	t.wg.Wait()
}

func (t *Timer) loop(r *run, seconds int, onTick func(int), onFinish func()) {
	defer t.wg.Done()

	if seconds > 0 {
		ticker := time.NewTicker(t.interval)
	countdown:
		for remaining := seconds; remaining > 0; {
			select {
			case <-r.stop:
				break countdown
			case <-ticker.C:
				remaining--
				if remaining > 0 && onTick != nil {
					select {
					case <-r.stop:
						break countdown
					default:
					}
					onTick(remaining)
				}
			}
		}
		ticker.Stop()
	}

	t.mu.Lock()
	if t.cur == r {
		t.cur = nil
	}
	t.mu.Unlock()

	if onFinish != nil {
		onFinish()
	}
}
