package session

import (
	"github.com/MrWong99/rehearsal/internal/practice"
	"github.com/MrWong99/rehearsal/internal/scene"
	"github.com/MrWong99/rehearsal/internal/scoring"
)

// Snapshot is the observable state of a [Controller], as shown by the host
// UI. Scores are shared and must not be modified.
type Snapshot struct {
	// SessionID identifies the controller in logs and telemetry.
	SessionID string

	Phase practice.State

	// AwaitingPermission is set while camera and microphone access is
	// being requested.
	AwaitingPermission bool

	SceneIndex int
	SceneCount int
	SceneType  scene.Type
	PromptText string

	ShowMicControls bool
	MicSeconds      int

	SecondsRemaining int

	// ShowAnalysisButton is set once at least one capture has been scored.
	ShowAnalysisButton bool

	PlayingResponse bool

	LastScore  *scoring.SessionScore
	FinalScore *scoring.SessionScore

	// Err is set in the terminal error states: ErrSectionLoad and
	// ErrPermissionDenied.
	Err error
}

// subscribers fans snapshots out to latest-wins channels. It is guarded by
// the controller's lock.
type subscribers struct {
	next uint64
	subs map[uint64]chan Snapshot
}

func (s *subscribers) add() (uint64, chan Snapshot) {
	if s.subs == nil {
		s.subs = make(map[uint64]chan Snapshot)
	}
	s.next++
	ch := make(chan Snapshot, 1)
	s.subs[s.next] = ch
	return s.next, ch
}

func (s *subscribers) remove(id uint64) {
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *subscribers) publish(snap Snapshot) {
	for _, ch := range s.subs {
		// Replace a snapshot the reader has not picked up yet.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *subscribers) closeAll() {
	for id := range s.subs {
		s.remove(id)
	}
}
