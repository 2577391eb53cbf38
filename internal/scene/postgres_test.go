package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Test helpers: mock DB types
// ---------------------------------------------------------------------------

type mockRow struct {
	values []any
	err    error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error { return scanInto(r.data[r.idx-1], dest) }

func scanInto(row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *[]byte:
			*d = v.([]byte)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type mockDB struct {
	row       *mockRow
	rows      *mockRows
	queryErr  error
	execErr   error
	execCalls []execCall
	lastArgs  []any
}

func (m *mockDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	m.lastArgs = args
	return m.row
}

func (m *mockDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	m.lastArgs = args
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.rows, nil
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execCalls = append(m.execCalls, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, m.execErr
}

func scenesJSON(t *testing.T, scenes ...Scene) []byte {
	t.Helper()
	b, err := json.Marshal(scenes)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPostgresSource_LoadSection(t *testing.T) {
	db := &mockDB{row: &mockRow{values: []any{
		"greetings", "Greetings", 2,
		scenesJSON(t, NewVideo("media://intro.mp4"), NewShadowing("hello world")),
	}}}
	src := NewPostgresSource(db)

	sec, err := src.LoadSection(context.Background(), "beginner", "greetings")
	if err != nil {
		t.Fatalf("LoadSection: %v", err)
	}
	if db.lastArgs[0] != "beginner" || db.lastArgs[1] != "greetings" {
		t.Errorf("query args = %v", db.lastArgs)
	}
	if sec.ID != "greetings" || sec.Order != 2 || len(sec.Scenes) != 2 {
		t.Fatalf("unexpected section: %+v", sec)
	}
	if sec.Scenes[1].ReferenceSentence != "hello world" || *sec.Scenes[1].PrepSeconds != DefaultShadowPrepSeconds {
		t.Errorf("shadowing scene not decoded: %+v", sec.Scenes[1])
	}
}

func TestPostgresSource_LoadSection_NotFound(t *testing.T) {
	src := NewPostgresSource(&mockDB{row: &mockRow{err: pgx.ErrNoRows}})
	_, err := src.LoadSection(context.Background(), "a", "b")
	if !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("err = %v, want ErrSectionNotFound", err)
	}
}

func TestPostgresSource_LoadSection_BadJSON(t *testing.T) {
	src := NewPostgresSource(&mockDB{row: &mockRow{values: []any{"s", "", 0, []byte("{")}}})
	if _, err := src.LoadSection(context.Background(), "a", "s"); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestPostgresSource_ListSections(t *testing.T) {
	rows := &mockRows{data: [][]any{
		{"food", "Food", 1, scenesJSON(t, NewInstruction("hi"))},
		{"greetings", "Greetings", 2, []byte("[]")},
	}}
	src := NewPostgresSource(&mockDB{rows: rows})

	got, err := src.ListSections(context.Background(), "beginner")
	if err != nil {
		t.Fatalf("ListSections: %v", err)
	}
	if len(got) != 2 || got[0].ID != "food" || got[1].ID != "greetings" {
		t.Errorf("unexpected sections: %+v", got)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}
}

func TestPostgresSource_ListSections_QueryError(t *testing.T) {
	src := NewPostgresSource(&mockDB{queryErr: errors.New("connection refused")})
	if _, err := src.ListSections(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestPostgresSource_Put(t *testing.T) {
	db := &mockDB{}
	src := NewPostgresSource(db)

	sec := &Section{ID: "s", Title: "T", Order: 3}
	if err := src.Put(context.Background(), "lvl", sec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(db.execCalls) != 1 {
		t.Fatalf("exec calls = %d, want 1", len(db.execCalls))
	}
	args := db.execCalls[0].args
	if args[0] != "lvl" || args[1] != "s" || args[3] != 3 {
		t.Errorf("unexpected args: %v", args)
	}
	if string(args[4].([]byte)) != "[]" {
		t.Errorf("nil scenes should be stored as [], got %s", args[4])
	}

	if err := src.Put(context.Background(), "", sec); err == nil {
		t.Error("expected error for empty level id")
	}
}

func TestPostgresSource_MigrateAndPing(t *testing.T) {
	db := &mockDB{}
	src := NewPostgresSource(db)
	if err := src.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if !strings.Contains(db.execCalls[0].sql, "CREATE TABLE IF NOT EXISTS practice_sections") {
		t.Error("Migrate did not execute the schema")
	}
	if err := src.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	db.execErr = errors.New("down")
	if err := src.Ping(context.Background()); err == nil {
		t.Error("expected ping error")
	}
}
