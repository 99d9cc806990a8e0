package spool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sghs/shothammer/internal/event"
)

func eventJSON(id int) string {
	return fmt.Sprintf(`{"entity":{"type":"Shot","id":%d,"name":"sh"},`+
		`"project":{"type":"Project","id":5,"name":"demo"},`+
		`"meta":{"type":"attribute_change","added":[{"name":"sghs:hero"}],"removed":[]}}`, id)
}

type recorder struct {
	mu  sync.Mutex
	ids []int64
	err map[int64]error
}

func (r *recorder) handle(ctx context.Context, path string, ev *event.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, ev.EntityID)
	return r.err[ev.EntityID]
}

func (r *recorder) seen() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", (&recorder{}).handle, DefaultConfig()); err == nil {
		t.Error("expected error for empty dir")
	}
	if _, err := New(t.TempDir(), nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil handler")
	}

	dir := filepath.Join(t.TempDir(), "spool")
	if _, err := New(dir, (&recorder{}).handle, DefaultConfig()); err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, sub := range []string{DoneDir, FailedDir} {
		if !exists(filepath.Join(dir, sub)) {
			t.Errorf("%s/ not created", sub)
		}
	}
}

func TestDrainInNameOrder(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{err: map[int64]error{3: errors.New("backend down")}}
	s, err := New(dir, rec.handle, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	writeFile(t, dir, "0003.json", eventJSON(3))
	writeFile(t, dir, "0001.json", eventJSON(1))
	writeFile(t, dir, "0002.json", `{"not":"an event"}`)
	writeFile(t, dir, ".0004.json", eventJSON(4))
	writeFile(t, dir, "notes.txt", "ignored")

	n, err := s.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 3 {
		t.Errorf("Drain() = %d, want 3", n)
	}
	if diff := cmp.Diff([]int64{1, 3}, rec.seen()); diff != "" {
		t.Errorf("handled ids mismatch (-want +got):\n%s", diff)
	}

	checks := map[string]bool{
		filepath.Join(dir, DoneDir, "0001.json"):   true,
		filepath.Join(dir, FailedDir, "0002.json"): true,
		filepath.Join(dir, FailedDir, "0003.json"): true,
		filepath.Join(dir, ".0004.json"):           true,
		filepath.Join(dir, "notes.txt"):            true,
		filepath.Join(dir, "0001.json"):            false,
	}
	for path, want := range checks {
		if got := exists(path); got != want {
			t.Errorf("exists(%s) = %v, want %v", path, got, want)
		}
	}
}

func TestRunWatchesNewFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	s, err := New(dir, rec.handle, Config{DebounceInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeFile(t, dir, "0001.json", eventJSON(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool { return len(rec.seen()) == 1 })

	// Write under a dotfile name, then rename into place.
	tmp := filepath.Join(dir, ".incoming")
	if err := os.WriteFile(tmp, []byte(eventJSON(2)), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, "0002.json")); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	waitFor(t, func() bool { return exists(filepath.Join(dir, DoneDir, "0002.json")) })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if diff := cmp.Diff([]int64{1, 2}, rec.seen()); diff != "" {
		t.Errorf("handled ids mismatch (-want +got):\n%s", diff)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
