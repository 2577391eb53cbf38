package config_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/rehearsal/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
scenes:
  library_file: sections.yaml
`

const watcherUpdatedYAML = `
server:
  log_level: debug
practice:
  tick_interval: 250ms
scenes:
  library_file: sections.yaml
`

const watcherInvalidYAML = `
server:
  log_level: bananas
scenes:
  library_file: sections.yaml
`

// writeFile writes content and pushes the mtime forward so coarse
// filesystem clocks still register a change.
func writeFile(t *testing.T, path, content string, bump time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
	if bump > 0 {
		mt := time.Now().Add(bump)
		if err := os.Chtimes(path, mt, mt); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
}

type change struct {
	old, new *config.Config
	diff     config.ConfigDiff
}

func startWatcher(t *testing.T, path string) (*config.Watcher, <-chan change) {
	t.Helper()
	changes := make(chan change, 4)
	w, err := config.NewWatcher(path, func(old, new *config.Config, d config.ConfigDiff) {
		changes <- change{old, new, d}
	},
		config.WithInterval(20*time.Millisecond),
		config.WithWatcherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return w, changes
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML, 0)

	w, _ := startWatcher(t, path)
	if cfg := w.Current(); cfg == nil || cfg.Server.LogLevel != config.LogInfo {
		t.Fatalf("Current() = %+v", cfg)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML, 0)
	w, changes := startWatcher(t, path)

	writeFile(t, path, watcherUpdatedYAML, 2*time.Second)

	select {
	case c := <-changes:
		if c.old.Server.LogLevel != config.LogInfo || c.new.Server.LogLevel != config.LogDebug {
			t.Errorf("levels = %q -> %q", c.old.Server.LogLevel, c.new.Server.LogLevel)
		}
		if !c.diff.LogLevelChanged || !c.diff.PracticeChanged || len(c.diff.RestartRequired) != 0 {
			t.Errorf("diff = %+v", c.diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("change not reported")
	}
	if w.Current().Practice.TickInterval != 250*time.Millisecond {
		t.Errorf("Current() not updated")
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML, 0)
	w, changes := startWatcher(t, path)

	writeFile(t, path, watcherInvalidYAML, 2*time.Second)

	select {
	case c := <-changes:
		t.Fatalf("unexpected change %+v", c.diff)
	case <-time.After(200 * time.Millisecond):
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("Current() log_level = %q, want info", w.Current().Server.LogLevel)
	}

	// A later valid edit is still picked up.
	writeFile(t, path, watcherUpdatedYAML, 4*time.Second)
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("recovery edit not reported")
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML, 0)
	_, changes := startWatcher(t, path)

	mt := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case c := <-changes:
		t.Fatalf("touch reported as change %+v", c.diff)
	case <-time.After(200 * time.Millisecond):
	}
}
