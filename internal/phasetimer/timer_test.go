package phasetimer

import (
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const step = 5 * time.Millisecond

type recorder struct {
	mu       sync.Mutex
	ticks    []int
	finishes atomic.Int32
	done     chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{}, 8)}
}

func (r *recorder) tick(n int) {
	r.mu.Lock()
	r.ticks = append(r.ticks, n)
	r.mu.Unlock()
}

func (r *recorder) finish() {
	r.finishes.Add(1)
	r.done <- struct{}{}
}

func (r *recorder) Ticks() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.ticks)
}

func (r *recorder) waitFinish(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for onFinish")
	}
}

func TestTimer_CountsDownAndFinishesOnce(t *testing.T) {
	tm := New(WithInterval(step))
	rec := newRecorder()

	tm.Start(3, rec.tick, rec.finish)
	rec.waitFinish(t)
	tm.Wait()

	if got := rec.Ticks(); !slices.Equal(got, []int{2, 1}) {
		t.Errorf("ticks = %v, want [2 1]", got)
	}
	if n := rec.finishes.Load(); n != 1 {
		t.Errorf("onFinish fired %d times, want 1", n)
	}
	if running(tm) {
		t.Error("timer still running after finish")
	}
}

func running(tm *Timer) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.cur != nil
}

func TestTimer_CancelFiresFinishOnce(t *testing.T) {
	tm := New(WithInterval(time.Hour))
	rec := newRecorder()

	tm.Start(10, rec.tick, rec.finish)
	if !running(tm) {
		t.Fatal("expected running")
	}
	tm.Cancel()
	tm.Cancel()
	rec.waitFinish(t)
	tm.Wait()

	if n := rec.finishes.Load(); n != 1 {
		t.Errorf("onFinish fired %d times, want 1", n)
	}
	if len(rec.Ticks()) != 0 {
		t.Errorf("unexpected ticks %v", rec.Ticks())
	}
}

func TestTimer_RestartCancelsPrevious(t *testing.T) {
	tm := New(WithInterval(time.Hour))
	first, second := newRecorder(), newRecorder()

	tm.Start(10, first.tick, first.finish)
	tm.Start(10, second.tick, second.finish)

	first.waitFinish(t)
	if !running(tm) {
		t.Error("second run should still be running")
	}
	if n := second.finishes.Load(); n != 0 {
		t.Errorf("second run finished early (%d)", n)
	}

	tm.Cancel()
	second.waitFinish(t)
	tm.Wait()
	if first.finishes.Load() != 1 || second.finishes.Load() != 1 {
		t.Errorf("finishes = %d/%d, want 1/1", first.finishes.Load(), second.finishes.Load())
	}
}

func TestTimer_ZeroDurationFinishesImmediately(t *testing.T) {
	tm := New(WithInterval(time.Hour))
	rec := newRecorder()
	tm.Start(0, rec.tick, rec.finish)
	rec.waitFinish(t)
	tm.Wait()
}

func TestTimer_CallbacksMayRestart(t *testing.T) {
	tm := New(WithInterval(step))
	second := newRecorder()

	tm.Start(1, nil, func() {
		tm.Start(2, second.tick, second.finish)
	})
	second.waitFinish(t)
	tm.Wait()
	if got := second.Ticks(); !slices.Equal(got, []int{1}) {
		t.Errorf("ticks = %v, want [1]", got)
	}
}

func TestTimer_CancelIdleIsNoop(t *testing.T) {
	tm := New()
	tm.Cancel()
	tm.Wait()
	if tm.interval != time.Second {
		t.Errorf("default interval = %v", tm.interval)
	}
}
