// Package scene describes practice sections: ordered lists of typed scenes
// that the practice runner executes one after another.
//
// Sections are immutable once loaded. Callers that need to hand a section to
// another goroutine or mutate a copy use [Section.Clone].
package scene

import (
	"errors"
	"fmt"
	"maps"
)

// Type identifies the kind of a scene.
type Type string

const (
	TypePlayVideo         Type = "PLAY_VIDEO"
	TypeShowInstruction   Type = "SHOW_INSTRUCTION"
	TypeSpeechPractice    Type = "SPEECH_PRACTICE"
	TypeShadowingPractice Type = "SHADOWING_PRACTICE"
)

// Authoring defaults applied by the constructors. The runner never invents a
// missing duration.
const (
	DefaultSpeechSeconds        = 20
	DefaultShadowPrepSeconds    = 10
	DefaultShadowCaptureSeconds = 10
)

var (
	// ErrUnknownType is returned by [Scene.Validate] for a type outside the
	// closed set.
	ErrUnknownType = errors.New("scene: unknown scene type")

	// ErrMissingDuration is returned by [Scene.Validate] for a capture scene
	// without a positive duration.
	ErrMissingDuration = errors.New("scene: capture scene has no duration")

	// ErrMissingMedia is returned by [Scene.Validate] for a PLAY_VIDEO scene
	// without a media reference.
	ErrMissingMedia = errors.New("scene: video scene has no media reference")

	// ErrEmptySection is returned by [Section.Validate] for a section without
	// any scenes.
	ErrEmptySection = errors.New("scene: section has no scenes")
)

// IsValid reports whether t is one of the known scene types.
func (t Type) IsValid() bool {
	switch t {
	case TypePlayVideo, TypeShowInstruction, TypeSpeechPractice, TypeShadowingPractice:
		return true
	}
	return false
}

// IsCapture reports whether scenes of type t record the learner.
func (t Type) IsCapture() bool {
	return t == TypeSpeechPractice || t == TypeShadowingPractice
}

// Scene is one atomic step of a section. Which fields are meaningful depends
// on Type.
type Scene struct {
	Type Type `yaml:"type" json:"type"`

	// VideoRef is the media reference played by PLAY_VIDEO scenes.
	VideoRef string `yaml:"video_ref,omitempty" json:"videoRef,omitempty"`

	// PromptText is shown by instruction and capture scenes.
	PromptText string `yaml:"prompt_text,omitempty" json:"promptText,omitempty"`

	// DurationSeconds is the capture length. Required for capture scenes.
	DurationSeconds *int `yaml:"duration_seconds,omitempty" json:"durationSeconds,omitempty"`

	// PrepSeconds is the preparation countdown of shadowing scenes. Nil means
	// DefaultShadowPrepSeconds; zero disables the prep phase.
	PrepSeconds *int `yaml:"prep_seconds,omitempty" json:"prepSeconds,omitempty"`

	// ReferenceSentence is the key sentence spoken transcripts are matched
	// against.
	ReferenceSentence string `yaml:"reference_sentence,omitempty" json:"referenceSentence,omitempty"`

	// ResponseVariants maps an outcome label ("fluent", "nervous",
	// "no_speech") to the media reference played in response.
	ResponseVariants map[string]string `yaml:"response_variants,omitempty" json:"responseVariants,omitempty"`
}

// Validate reports whether the scene can be executed.
func (s Scene) Validate() error {
	if !s.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, s.Type)
	}
	if s.Type.IsCapture() && (s.DurationSeconds == nil || *s.DurationSeconds <= 0) {
		return fmt.Errorf("%w: %s", ErrMissingDuration, s.Type)
	}
	if s.Type == TypePlayVideo && s.VideoRef == "" {
		return ErrMissingMedia
	}
	return nil
}

// Prep returns the shadowing prep length in seconds.
func (s Scene) Prep() int {
	if s.PrepSeconds == nil {
		return DefaultShadowPrepSeconds
	}
	return max(*s.PrepSeconds, 0)
}

// Clone returns a deep copy of s.
func (s Scene) Clone() Scene {
	c := s
	if s.DurationSeconds != nil {
		c.DurationSeconds = Seconds(*s.DurationSeconds)
	}
	if s.PrepSeconds != nil {
		c.PrepSeconds = Seconds(*s.PrepSeconds)
	}
	if s.ResponseVariants != nil {
		c.ResponseVariants = maps.Clone(s.ResponseVariants)
	}
	return c
}

// Section is an ordered list of scenes.
type Section struct {
	ID     string  `yaml:"id" json:"id"`
	Title  string  `yaml:"title" json:"title"`
	Order  int     `yaml:"order" json:"order"`
	Scenes []Scene `yaml:"scenes" json:"scenes"`

	// Locked is derived from learner progress by [ApplyProgress]; it is never
	// authored.
	Locked bool `yaml:"-" json:"locked"`
}

// Validate reports whether the section can be started. Individual malformed
// scenes are not an error here; the runner skips them.
func (s *Section) Validate() error {
	if s == nil {
		return ErrEmptySection
	}
	if len(s.Scenes) == 0 {
		return fmt.Errorf("%w: %q", ErrEmptySection, s.ID)
	}
	return nil
}

// Clone returns a deep copy of s.
func (s *Section) Clone() *Section {
	if s == nil {
		return nil
	}
	c := *s
	c.Scenes = make([]Scene, len(s.Scenes))
	for i, sc := range s.Scenes {
		c.Scenes[i] = sc.Clone()
	}
	return &c
}

// Seconds returns a pointer to n, for populating optional duration fields.
func Seconds(n int) *int { return &n }

// NewVideo returns a PLAY_VIDEO scene.
func NewVideo(ref string) Scene {
	return Scene{Type: TypePlayVideo, VideoRef: ref}
}

// NewInstruction returns a SHOW_INSTRUCTION scene.
func NewInstruction(prompt string) Scene {
	return Scene{Type: TypeShowInstruction, PromptText: prompt}
}

// NewSpeechPractice returns a SPEECH_PRACTICE scene with the default
// duration. variants may be nil.
func NewSpeechPractice(prompt, reference string, variants map[string]string) Scene {
	return Scene{
		Type:              TypeSpeechPractice,
		PromptText:        prompt,
		DurationSeconds:   Seconds(DefaultSpeechSeconds),
		ReferenceSentence: reference,
		ResponseVariants:  variants,
	}
}

// NewShadowing returns a SHADOWING_PRACTICE scene with the default prep and
// capture durations.
func NewShadowing(reference string) Scene {
	return Scene{
		Type:              TypeShadowingPractice,
		DurationSeconds:   Seconds(DefaultShadowCaptureSeconds),
		PrepSeconds:       Seconds(DefaultShadowPrepSeconds),
		ReferenceSentence: reference,
	}
}
