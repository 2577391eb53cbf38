package session

import (
	"context"
	"sync"
)

// resources owns the background goroutines a session run starts. Nothing
// outlives the scope once Release returns.
//
// All methods are safe for concurrent use.
type resources struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	released bool
}

func newResources(parent context.Context) *resources {
	ctx, cancel := context.WithCancel(parent)
	return &resources{ctx: ctx, cancel: cancel}
}

// Context returns the scope's context. It is cancelled by Cancel and Release.
func (r *resources) Context() context.Context { return r.ctx }

// Go runs fn in a tracked goroutine. It reports false without running fn
// once the scope has been cancelled.
func (r *resources) Go(fn func(ctx context.Context)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released || r.ctx.Err() != nil {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(r.ctx)
	}()
	return true
}

// Cancel signals every goroutine to stop without waiting for them.
func (r *resources) Cancel() {
	r.cancel()
}

// Release cancels the scope and waits for all goroutines. It must not be
// called from a goroutine started with Go. Calling Release more than once is
// safe.
func (r *resources) Release() {
	r.mu.Lock()
	r.released = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
