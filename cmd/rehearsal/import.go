package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/rehearsal/internal/scene"
)

// sectionWriter is the write side of scene.PostgresSource.
type sectionWriter interface {
	Put(ctx context.Context, levelID string, sec *scene.Section) error
}

// runImport implements the import subcommand: it copies every section of a
// YAML library into the postgres section store.
func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	libraryPath := fs.String("library", "", "section library YAML to import (default: scenes.library_file)")
	dsn := fs.String("dsn", "", "postgres DSN (default: scenes.postgres_dsn)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var libFile, pgDSN string
	if cfg, err := loadConfig(*configPath); err == nil {
		libFile, pgDSN = cfg.Scenes.LibraryFile, cfg.Scenes.PostgresDSN
	} else if *libraryPath == "" || *dsn == "" {
		fmt.Fprintf(os.Stderr, "rehearsal import: %v\n", err)
		return 1
	}
	if *libraryPath != "" {
		libFile = *libraryPath
	}
	if *dsn != "" {
		pgDSN = *dsn
	}
	if libFile == "" || pgDSN == "" {
		fmt.Fprintln(os.Stderr, "rehearsal import: both a library file and a postgres DSN are required")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lib, err := scene.LoadLibrary(libFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rehearsal import: %v\n", err)
		return 1
	}
	pool, err := pgxpool.New(ctx, pgDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rehearsal import: connect postgres: %v\n", err)
		return 1
	}
	defer pool.Close()

	src := scene.NewPostgresSource(pool)
	if err := src.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rehearsal import: %v\n", err)
		return 1
	}
	n, err := importLibrary(ctx, lib, src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rehearsal import: %v\n", err)
		return 1
	}
	slog.Info("sections imported", "library", libFile, "count", n)
	return 0
}

// importLibrary writes every section of lib and returns how many were
// written. It keeps going after a failed write and reports all failures.
func importLibrary(ctx context.Context, lib *scene.Library, w sectionWriter) (int, error) {
	var (
		n    int
		errs []error
	)
	for _, level := range lib.Levels() {
		for _, sec := range lib.Sections(level) {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			if err := w.Put(ctx, level, &sec); err != nil {
				errs = append(errs, err)
				continue
			}
			n++
		}
	}
	return n, errors.Join(errs...)
}
