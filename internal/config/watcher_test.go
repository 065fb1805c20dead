package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	if testing.Short() {
		t.Skip("debounce timing")
	}

	path := filepath.Join(t.TempDir(), "aikun.yaml")
	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(next *Config) {
		select {
		case reloaded <- next:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	cfg.Reply.RecencyDays = 7
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case next := <-reloaded:
		if next.Reply.RecencyDays != 7 {
			t.Errorf("recency = %d, want 7", next.Reply.RecencyDays)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}
}

func TestWatcher_FailedStartCanRetry(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "missing")
	path := filepath.Join(parent, "aikun.yaml")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	if err := w.Start(context.Background()); err == nil {
		t.Fatal("Start must fail when the config directory does not exist")
	}

	// A failed start leaves the watcher stopped: retry works once the
	// directory exists, and Stop must not block.
	if err := os.MkdirAll(parent, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("retry Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked")
	}
}

func TestWatcher_StopWithoutStartReleases(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "aikun.yaml"), nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop on a never-started watcher blocked")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aikun.yaml")
	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Stop()
	w.Stop()
}
