package bridge

import (
	"time"

	"github.com/MrWong99/rehearsal/internal/scoring"
	"github.com/MrWong99/rehearsal/internal/session"
	"github.com/MrWong99/rehearsal/pkg/types"
)

// Client message types. Audio is not listed: it travels as binary websocket
// messages of raw PCM.
const (
	msgLoad             = "load"
	msgStart            = "start"
	msgPermission       = "permission"
	msgBeginCapture     = "begin_capture"
	msgAcknowledge      = "acknowledge"
	msgAdvance          = "advance"
	msgComplete         = "complete"
	msgMediaEnded       = "media_ended"
	msgFrame            = "frame"
	msgClassifierScore  = "classifier_score"
	msgTranscript       = "transcript"
	msgTranscriberError = "transcriber_error"
)

// Server message types.
const (
	msgHello             = "hello"
	msgState             = "state"
	msgPlay              = "play"
	msgPermissionRequest = "permission_request"
	msgCaptureScore      = "capture_score"
	msgSectionComplete   = "section_complete"
	msgError             = "error"
)

// inbound is every client message, flattened. Only the fields of the given
// Type are read.
type inbound struct {
	Type string `json:"type"`

	// load
	Level   string `json:"level,omitempty"`
	Section string `json:"section,omitempty"`

	// permission
	Granted bool `json:"granted,omitempty"`

	// media_ended
	Token uint64 `json:"token,omitempty"`

	// frame
	Frame *frameMessage `json:"frame,omitempty"`

	// classifier_score: points the client computed itself.
	Score int `json:"score,omitempty"`

	// transcript, transcriber_error
	Text    string `json:"text,omitempty"`
	Final   bool   `json:"final,omitempty"`
	Message string `json:"message,omitempty"`
}

// frameMessage carries one camera frame. Data is base64 in JSON.
type frameMessage struct {
	Data        []byte `json:"data"`
	Format      string `json:"format"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	TimestampMS int64  `json:"timestampMs,omitempty"`
}

func (f frameMessage) frame() types.Frame {
	return types.Frame{
		Data:      f.Data,
		Format:    f.Format,
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: time.Duration(f.TimestampMS) * time.Millisecond,
	}
}

type helloMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type playMessage struct {
	Type  string `json:"type"`
	Token uint64 `json:"token"`
	Ref   string `json:"ref"`
}

type permissionRequestMessage struct {
	Type         string             `json:"type"`
	Capabilities []types.Capability `json:"capabilities"`
}

type captureScoreMessage struct {
	Type             string `json:"type"`
	ConfidencePoints int    `json:"confidencePoints"`
	SpeechPoints     int    `json:"speechPoints"`
}

type sectionCompleteMessage struct {
	Type  string               `json:"type"`
	Score scoring.SessionScore `json:"score"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// stateMessage is the wire form of [session.Snapshot].
type stateMessage struct {
	Type               string                `json:"type"`
	Phase              string                `json:"phase"`
	AwaitingPermission bool                  `json:"awaitingPermission"`
	SceneIndex         int                   `json:"sceneIndex"`
	SceneCount         int                   `json:"sceneCount"`
	SceneType          string                `json:"sceneType,omitempty"`
	PromptText         string                `json:"promptText,omitempty"`
	ShowMicControls    bool                  `json:"showMicControls"`
	MicSeconds         int                   `json:"micSeconds"`
	SecondsRemaining   int                   `json:"secondsRemaining"`
	ShowAnalysisButton bool                  `json:"showAnalysisButton"`
	PlayingResponse    bool                  `json:"playingResponse"`
	LastScore          *scoring.SessionScore `json:"lastScore,omitempty"`
	FinalScore         *scoring.SessionScore `json:"finalScore,omitempty"`
	Error              string                `json:"error,omitempty"`
}

func newStateMessage(s session.Snapshot) stateMessage {
	m := stateMessage{
		Type:               msgState,
		Phase:              s.Phase.String(),
		AwaitingPermission: s.AwaitingPermission,
		SceneIndex:         s.SceneIndex,
		SceneCount:         s.SceneCount,
		SceneType:          string(s.SceneType),
		PromptText:         s.PromptText,
		ShowMicControls:    s.ShowMicControls,
		MicSeconds:         s.MicSeconds,
		SecondsRemaining:   s.SecondsRemaining,
		ShowAnalysisButton: s.ShowAnalysisButton,
		PlayingResponse:    s.PlayingResponse,
		LastScore:          s.LastScore,
		FinalScore:         s.FinalScore,
	}
	if s.Err != nil {
		m.Error = s.Err.Error()
	}
	return m
}
