package scene

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// LibraryFile is the top-level structure of a section library YAML file.
//
// Example:
//
//	levels:
//	  - id: beginner
//	    title: "First steps"
//	    sections:
//	      - id: greetings
//	        title: "Greetings"
//	        order: 1
//	        scenes:
//	          - type: PLAY_VIDEO
//	            video_ref: "media://intro.mp4"
//	          - type: SHADOWING_PRACTICE
//	            duration_seconds: 10
//	            reference_sentence: "hello world"
type LibraryFile struct {
	Levels []Level `yaml:"levels"`
}

// Level groups the sections of one difficulty level.
type Level struct {
	ID       string    `yaml:"id"`
	Title    string    `yaml:"title"`
	Sections []Section `yaml:"sections"`
}

// Library is an in-memory [Source] built from a [LibraryFile]. It is
// read-only after construction and safe for concurrent use.
type Library struct {
	levels map[string]map[string]*Section
	order  []string
}

var _ Source = (*Library)(nil)

// LoadLibrary reads and parses a library YAML file from disk.
func LoadLibrary(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scene: open library %q: %w", path, err)
	}
	defer f.Close()

	lib, err := LoadLibraryFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("scene: parse library %q: %w", path, err)
	}
	return lib, nil
}

// LoadLibraryFromReader parses library YAML from r and validates it.
func LoadLibraryFromReader(r io.Reader) (*Library, error) {
	var lf LibraryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&lf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("scene: decode library yaml: %w", err)
	}
	return NewLibrary(lf)
}

// NewLibrary indexes lf. Duplicate or missing IDs are rejected; malformed
// scenes are only logged because the runner skips them at play time.
func NewLibrary(lf LibraryFile) (*Library, error) {
	lib := &Library{levels: make(map[string]map[string]*Section)}
	var errs []error

	for li, lvl := range lf.Levels {
		if lvl.ID == "" {
			errs = append(errs, fmt.Errorf("levels[%d]: id is required", li))
			continue
		}
		if _, dup := lib.levels[lvl.ID]; dup {
			errs = append(errs, fmt.Errorf("levels[%d]: duplicate level id %q", li, lvl.ID))
			continue
		}
		sections := make(map[string]*Section, len(lvl.Sections))
		for si := range lvl.Sections {
			sec := lvl.Sections[si].Clone()
			if sec.ID == "" {
				errs = append(errs, fmt.Errorf("levels[%s].sections[%d]: id is required", lvl.ID, si))
				continue
			}
			if _, dup := sections[sec.ID]; dup {
				errs = append(errs, fmt.Errorf("levels[%s].sections[%d]: duplicate section id %q", lvl.ID, si, sec.ID))
				continue
			}
			if err := sec.Validate(); err != nil {
				slog.Warn("scene library: section cannot be started", "level", lvl.ID, "section", sec.ID, "err", err)
			}
			for i, sc := range sec.Scenes {
				if err := sc.Validate(); err != nil {
					slog.Warn("scene library: malformed scene will be skipped",
						"level", lvl.ID, "section", sec.ID, "index", i, "err", err)
				}
			}
			sections[sec.ID] = sec
		}
		lib.levels[lvl.ID] = sections
		lib.order = append(lib.order, lvl.ID)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("scene: invalid library: %w", err)
	}
	return lib, nil
}

// LoadSection returns a copy of the requested section.
func (l *Library) LoadSection(_ context.Context, levelID, sectionID string) (*Section, error) {
	sec, ok := l.levels[levelID][sectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrSectionNotFound, levelID, sectionID)
	}
	return sec.Clone(), nil
}

// Levels returns the level IDs in file order.
func (l *Library) Levels() []string {
	return slices.Clone(l.order)
}

// Sections returns copies of a level's sections sorted by Order.
func (l *Library) Sections(levelID string) []Section {
	out := make([]Section, 0, len(l.levels[levelID]))
	for _, sec := range l.levels[levelID] {
		out = append(out, *sec.Clone())
	}
	slices.SortFunc(out, func(a, b Section) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// ListSections implements [Lister]. An unknown level yields
// [ErrSectionNotFound].
func (l *Library) ListSections(_ context.Context, levelID string) ([]Section, error) {
	if _, ok := l.levels[levelID]; !ok {
		return nil, fmt.Errorf("%w: level %s", ErrSectionNotFound, levelID)
	}
	return l.Sections(levelID), nil
}
