package scene

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleLibrary = `
levels:
  - id: beginner
    title: First steps
    sections:
      - id: greetings
        title: Greetings
        order: 2
        scenes:
          - type: PLAY_VIDEO
            video_ref: media://intro.mp4
          - type: SHADOWING_PRACTICE
            duration_seconds: 10
            reference_sentence: hello world
      - id: food
        title: Food
        order: 1
        scenes:
          - type: SPEECH_PRACTICE
            prompt_text: What do you like to eat?
            duration_seconds: 20
            reference_sentence: I like to eat apples
            response_variants:
              fluent: media://great.mp4
              no_speech: media://try-again.mp4
          - type: SPEECH_PRACTICE
            prompt_text: missing duration is skipped at runtime
`

func TestLoadLibraryFromReader(t *testing.T) {
	lib, err := LoadLibraryFromReader(strings.NewReader(sampleLibrary))
	if err != nil {
		t.Fatalf("LoadLibraryFromReader: %v", err)
	}

	sec, err := lib.LoadSection(context.Background(), "beginner", "food")
	if err != nil {
		t.Fatalf("LoadSection: %v", err)
	}
	if len(sec.Scenes) != 2 {
		t.Fatalf("len(Scenes) = %d, want 2", len(sec.Scenes))
	}
	sp := sec.Scenes[0]
	if sp.Type != TypeSpeechPractice || *sp.DurationSeconds != 20 || sp.ResponseVariants["no_speech"] != "media://try-again.mp4" {
		t.Errorf("unexpected scene: %+v", sp)
	}
	if !errors.Is(sec.Scenes[1].Validate(), ErrMissingDuration) {
		t.Error("expected second scene to be malformed but kept")
	}

	// Returned sections are copies.
	sec.Scenes[0].PromptText = "mutated"
	again, _ := lib.LoadSection(context.Background(), "beginner", "food")
	if again.Scenes[0].PromptText == "mutated" {
		t.Error("LoadSection returned shared state")
	}
}

func TestLibrary_NotFound(t *testing.T) {
	lib, _ := LoadLibraryFromReader(strings.NewReader(sampleLibrary))
	for _, ids := range [][2]string{{"beginner", "nope"}, {"expert", "greetings"}} {
		if _, err := lib.LoadSection(context.Background(), ids[0], ids[1]); !errors.Is(err, ErrSectionNotFound) {
			t.Errorf("LoadSection(%s/%s) err = %v, want ErrSectionNotFound", ids[0], ids[1], err)
		}
	}
}

func TestLibrary_SectionsSortedByOrder(t *testing.T) {
	lib, _ := LoadLibraryFromReader(strings.NewReader(sampleLibrary))
	got := lib.Sections("beginner")
	if len(got) != 2 || got[0].ID != "food" || got[1].ID != "greetings" {
		t.Errorf("Sections order = %v", got)
	}
	if lv := lib.Levels(); len(lv) != 1 || lv[0] != "beginner" {
		t.Errorf("Levels() = %v", lv)
	}
}

func TestLibrary_ListSections(t *testing.T) {
	lib, _ := LoadLibraryFromReader(strings.NewReader(sampleLibrary))
	var _ Lister = lib

	got, err := lib.ListSections(context.Background(), "beginner")
	if err != nil {
		t.Fatalf("ListSections: %v", err)
	}
	if len(got) != 2 || got[0].ID != "food" {
		t.Errorf("ListSections = %v", got)
	}
	if _, err := lib.ListSections(context.Background(), "expert"); !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("unknown level err = %v", err)
	}
}

func TestLoadLibraryFromReader_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "levels:\n  - id: a\n    colour: red\n", "colour"},
		{"missing level id", "levels:\n  - title: x\n", "id is required"},
		{"duplicate level", "levels:\n  - id: a\n  - id: a\n", "duplicate level id"},
		{"duplicate section", "levels:\n  - id: a\n    sections:\n      - id: s\n      - id: s\n", "duplicate section id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadLibraryFromReader(strings.NewReader(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadLibrary_Empty(t *testing.T) {
	lib, err := LoadLibraryFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty library: %v", err)
	}
	if len(lib.Levels()) != 0 {
		t.Error("expected no levels")
	}
}

func TestLibraryWatcher_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.yaml")
	write := func(content string, mtime time.Time) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	base := time.Now().Add(-time.Hour)
	write(sampleLibrary, base)

	reloaded := make(chan *Library, 4)
	w, err := NewLibraryWatcher(path,
		WithPollInterval(10*time.Millisecond),
		WithOnChange(func(l *Library) { reloaded <- l }),
	)
	if err != nil {
		t.Fatalf("NewLibraryWatcher: %v", err)
	}
	t.Cleanup(w.Stop)

	if _, err := w.LoadSection(context.Background(), "beginner", "greetings"); err != nil {
		t.Fatalf("initial LoadSection: %v", err)
	}

	// Broken content keeps the previous library.
	write("levels: [", base.Add(time.Minute))
	time.Sleep(50 * time.Millisecond)
	if _, err := w.LoadSection(context.Background(), "beginner", "greetings"); err != nil {
		t.Fatalf("LoadSection after broken reload: %v", err)
	}

	write("levels:\n  - id: expert\n    sections:\n      - id: debate\n        scenes:\n          - type: SHOW_INSTRUCTION\n", base.Add(2*time.Minute))
	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
	if _, err := w.LoadSection(context.Background(), "expert", "debate"); err != nil {
		t.Errorf("LoadSection after reload: %v", err)
	}
	if _, err := w.LoadSection(context.Background(), "beginner", "greetings"); !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("old section still present: %v", err)
	}
}

func TestNewLibraryWatcher_MissingFile(t *testing.T) {
	if _, err := NewLibraryWatcher(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadLibrary_ExampleSections(t *testing.T) {
	lib, err := LoadLibrary("../../configs/sections.yaml")
	if err != nil {
		t.Fatalf("example library does not load: %v", err)
	}
	for _, level := range lib.Levels() {
		for _, sec := range lib.Sections(level) {
			if err := sec.Validate(); err != nil {
				t.Errorf("%s/%s: %v", level, sec.ID, err)
			}
			for i, sc := range sec.Scenes {
				if err := sc.Validate(); err != nil {
					t.Errorf("%s/%s scene %d: %v", level, sec.ID, i, err)
				}
			}
		}
	}
}
