package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

func eventFor(path string) fsnotify.Event {
	return fsnotify.Event{Name: path, Op: fsnotify.Write}
}

type recordingInvalidator struct {
	mu    sync.Mutex
	stale []string
}

func (r *recordingInvalidator) MarkStale(envID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale = append(r.stale, envID)
}

func (r *recordingInvalidator) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stale...)
}

func TestNew_NilInvalidator(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("New() should reject a nil invalidator")
	}
}

func TestWatch_MissingDirSkipped(t *testing.T) {
	inv := &recordingInvalidator{}
	w, err := New(inv, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer w.Stop()

	env := &pyenv.Environment{
		ID:           "env-1",
		SitePackages: []string{filepath.Join(t.TempDir(), "does-not-exist")},
	}
	if err := w.Watch(env); err != nil {
		t.Fatalf("Watch() should not fail on a missing directory: %v", err)
	}
	if len(w.dirs) != 0 {
		t.Errorf("missing directory should not be registered, got %v", w.dirs)
	}
}

func TestDebouncedInvalidation(t *testing.T) {
	dir := t.TempDir()
	inv := &recordingInvalidator{}

	w, err := New(inv, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	w.debounce = 50 * time.Millisecond
	defer w.Stop()

	env := &pyenv.Environment{ID: "env-1", SitePackages: []string{dir}}
	if err := w.Watch(env); err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}
	w.Start()

	// A burst of writes, like an install dropping many files.
	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "pkg", "file")
		if i == 0 {
			if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
				t.Fatalf("MkdirAll: %v", err)
			}
		}
		if err := os.WriteFile(name, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(inv.calls()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	calls := inv.calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one debounced invalidation, got %d: %v", len(calls), calls)
	}
	if calls[0] != "env-1" {
		t.Errorf("MarkStale env = %s, want env-1", calls[0])
	}
}

func TestUnrelatedPathIgnored(t *testing.T) {
	watched := t.TempDir()
	inv := &recordingInvalidator{}

	w, err := New(inv, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	w.debounce = 10 * time.Millisecond
	defer w.Stop()

	env := &pyenv.Environment{ID: "env-1", SitePackages: []string{watched}}
	if err := w.Watch(env); err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}

	// Deliver a synthetic event for a path outside any watched dir.
	w.handle(eventFor(filepath.Join(t.TempDir(), "elsewhere.txt")))

	time.Sleep(50 * time.Millisecond)
	if len(inv.calls()) != 0 {
		t.Errorf("event outside watched dirs should be ignored, got %v", inv.calls())
	}
}
