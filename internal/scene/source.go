package scene

import (
	"context"
	"errors"
)

// ErrSectionNotFound is returned by a [Source] when no section matches the
// requested level and section IDs.
var ErrSectionNotFound = errors.New("scene: section not found")

// Source loads sections from structured storage. The returned section is
// owned by the caller.
type Source interface {
	LoadSection(ctx context.Context, levelID, sectionID string) (*Section, error)
}

// Lister enumerates the sections of a level, sorted by Order. All built-in
// sources implement it.
type Lister interface {
	ListSections(ctx context.Context, levelID string) ([]Section, error)
}

// SourceFunc adapts a plain function to the [Source] interface.
type SourceFunc func(ctx context.Context, levelID, sectionID string) (*Section, error)

// LoadSection calls f.
func (f SourceFunc) LoadSection(ctx context.Context, levelID, sectionID string) (*Section, error) {
	return f(ctx, levelID, sectionID)
}
