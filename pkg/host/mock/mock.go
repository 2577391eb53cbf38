// Package mock provides test doubles for the host package interfaces.
//
// MediaPlayer records every Play call and holds on to the onEnded callbacks
// so a test can decide when playback "finishes". PermissionGate answers with
// a fixed verdict, or blocks on a channel when the test wants to control
// timing.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/rehearsal/pkg/host"
	"github.com/MrWong99/rehearsal/pkg/types"
)

// PlayCall records a single invocation of MediaPlayer.Play.
type PlayCall struct {
	// Ref is the media reference passed to Play.
	Ref string

	onEnded func()
}

// MediaPlayer is a mock implementation of host.MediaPlayer.
type MediaPlayer struct {
	mu sync.Mutex

	// AutoEnd, when true, fires onEnded from a new goroutine right away.
	AutoEnd bool

	// Calls records every call to Play.
	Calls []PlayCall

	// Notify, if non-nil, receives the ref of every Play call. Sends are
	// non-blocking.
	Notify chan string
}

// Play records the call.
func (m *MediaPlayer) Play(ref string, onEnded func()) {
	m.mu.Lock()
	m.Calls = append(m.Calls, PlayCall{Ref: ref, onEnded: onEnded})
	auto := m.AutoEnd
	notify := m.Notify
	m.mu.Unlock()

	if notify != nil {
		select {
		case notify <- ref:
		default:
		}
	}
	if auto {
		go onEnded()
	}
}

// Refs returns the refs of every Play call in order. Thread-safe.
func (m *MediaPlayer) Refs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		refs[i] = c.Ref
	}
	return refs
}

// EndLast fires the onEnded callback of the most recent Play call and
// reports whether there was one. Thread-safe.
func (m *MediaPlayer) EndLast() bool {
	m.mu.Lock()
	if len(m.Calls) == 0 {
		m.mu.Unlock()
		return false
	}
	cb := m.Calls[len(m.Calls)-1].onEnded
	m.mu.Unlock()
	cb()
	return true
}

// Ensure MediaPlayer implements host.MediaPlayer at compile time.
var _ host.MediaPlayer = (*MediaPlayer)(nil)

// PermissionGate is a mock implementation of host.PermissionGate.
type PermissionGate struct {
	mu sync.Mutex

	// Granted is the verdict returned by Request.
	Granted bool

	// Err, if non-nil, is returned by Request.
	Err error

	// Answers, if non-nil, overrides Granted: Request blocks until a verdict
	// is received or ctx is done.
	Answers chan bool

	// Requests records the capabilities of every call.
	Requests [][]types.Capability
}

// Request records the call and returns the configured verdict.
func (g *PermissionGate) Request(ctx context.Context, caps []types.Capability) (bool, error) {
	g.mu.Lock()
	g.Requests = append(g.Requests, append([]types.Capability(nil), caps...))
	answers, granted, err := g.Answers, g.Granted, g.Err
	g.mu.Unlock()

	if err != nil {
		return false, err
	}
	if answers == nil {
		return granted, nil
	}
	select {
	case v := <-answers:
		return v, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// RequestCount returns the number of Request calls. Thread-safe.
func (g *PermissionGate) RequestCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}

// Ensure PermissionGate implements host.PermissionGate at compile time.
var _ host.PermissionGate = (*PermissionGate)(nil)
