package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the practice_sections table. Execute it via
// [PostgresSource.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS practice_sections (
    level_id    TEXT NOT NULL,
    section_id  TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    sort_order  INTEGER NOT NULL DEFAULT 0,
    scenes      JSONB NOT NULL DEFAULT '[]',
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (level_id, section_id)
);
CREATE INDEX IF NOT EXISTS idx_practice_sections_order ON practice_sections(level_id, sort_order);
`

// DB is the database interface used by [PostgresSource]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSource is a [Source] backed by PostgreSQL. Scenes are stored as a
// JSONB array using the JSON tags of [Scene].
type PostgresSource struct {
	db DB
}

var _ Source = (*PostgresSource)(nil)

// NewPostgresSource returns a source using db. Call Migrate before the first
// query if the schema may not exist yet.
func NewPostgresSource(db DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Migrate executes [Schema].
func (s *PostgresSource) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("scene: migrate: %w", err)
	}
	return nil
}

// Ping checks that the database answers queries.
func (s *PostgresSource) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("scene: ping: %w", err)
	}
	return nil
}

// LoadSection fetches one section.
func (s *PostgresSource) LoadSection(ctx context.Context, levelID, sectionID string) (*Section, error) {
	const query = `
		SELECT section_id, title, sort_order, scenes
		FROM practice_sections
		WHERE level_id = $1 AND section_id = $2`

	var sec Section
	var scenesJSON []byte
	err := s.db.QueryRow(ctx, query, levelID, sectionID).Scan(&sec.ID, &sec.Title, &sec.Order, &scenesJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrSectionNotFound, levelID, sectionID)
		}
		return nil, fmt.Errorf("scene: load %s/%s: %w", levelID, sectionID, err)
	}
	if err := json.Unmarshal(scenesJSON, &sec.Scenes); err != nil {
		return nil, fmt.Errorf("scene: unmarshal scenes of %s/%s: %w", levelID, sectionID, err)
	}
	return &sec, nil
}

// ListSections returns the sections of a level ordered by sort order.
func (s *PostgresSource) ListSections(ctx context.Context, levelID string) ([]Section, error) {
	const query = `
		SELECT section_id, title, sort_order, scenes
		FROM practice_sections
		WHERE level_id = $1
		ORDER BY sort_order, section_id`

	rows, err := s.db.Query(ctx, query, levelID)
	if err != nil {
		return nil, fmt.Errorf("scene: list %s: %w", levelID, err)
	}
	defer rows.Close()

	var out []Section
	for rows.Next() {
		var sec Section
		var scenesJSON []byte
		if err := rows.Scan(&sec.ID, &sec.Title, &sec.Order, &scenesJSON); err != nil {
			return nil, fmt.Errorf("scene: scan section: %w", err)
		}
		if err := json.Unmarshal(scenesJSON, &sec.Scenes); err != nil {
			return nil, fmt.Errorf("scene: unmarshal scenes of %s/%s: %w", levelID, sec.ID, err)
		}
		out = append(out, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scene: list %s: %w", levelID, err)
	}
	return out, nil
}

// Put inserts or replaces a section. Used by the import command and tests.
func (s *PostgresSource) Put(ctx context.Context, levelID string, sec *Section) error {
	if levelID == "" || sec == nil || sec.ID == "" {
		return errors.New("scene: put: level and section ids are required")
	}
	scenes := sec.Scenes
	if scenes == nil {
		scenes = []Scene{}
	}
	scenesJSON, err := json.Marshal(scenes)
	if err != nil {
		return fmt.Errorf("scene: marshal scenes: %w", err)
	}

	const query = `
		INSERT INTO practice_sections (level_id, section_id, title, sort_order, scenes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (level_id, section_id) DO UPDATE SET
			title = EXCLUDED.title, sort_order = EXCLUDED.sort_order,
			scenes = EXCLUDED.scenes, updated_at = now()`

	if _, err := s.db.Exec(ctx, query, levelID, sec.ID, sec.Title, sec.Order, scenesJSON); err != nil {
		return fmt.Errorf("scene: put %s/%s: %w", levelID, sec.ID, err)
	}
	return nil
}
