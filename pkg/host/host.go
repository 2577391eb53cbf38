// Package host defines the side-effect capabilities the practice engine
// delegates to the embedding application.
//
// The engine never plays media or prompts for device permissions itself. It
// asks the host through these interfaces and reacts to the completion
// callbacks. The websocket bridge implements both against a browser client;
// tests use the recording doubles in host/mock.
package host

import (
	"context"

	"github.com/MrWong99/rehearsal/pkg/types"
)

// MediaPlayer plays a media reference (a video URI or asset key).
type MediaPlayer interface {
	// Play starts playback of ref and returns immediately. onEnded must be
	// called exactly once when playback finishes or is abandoned. It may be
	// called from any goroutine, but never synchronously from within Play.
	Play(ref string, onEnded func())
}

// PermissionGate asks the user for device capabilities.
type PermissionGate interface {
	// Request blocks until the user answers or ctx is done. granted reports
	// whether every requested capability was allowed.
	Request(ctx context.Context, caps []types.Capability) (granted bool, err error)
}
