// Package capture persists change events for offline inspection and
// manual replay.
//
// Two kinds of record are written:
//   - the "last event" slot, a single file overwritten by every event when
//     capture-last-event mode is on
//   - failure captures, one file per event whose shot path could not be
//     composed, named shot_id-<id>-<YYYY-MM-DD_HH-MM-SS>.json
//
// Records hold the event exactly as it was received, so they can be fed
// back through event.Decode.
package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sghs/shothammer/internal/event"
)

// Extension is the capture file suffix.
const Extension = ".json"

// TimestampLayout formats the event time in failure capture names.
const TimestampLayout = "2006-01-02_15-04-05"

const filePrefix = "shot_id-"

// maxCollisions bounds the numeric suffixes tried for a taken name.
const maxCollisions = 1000

// Store writes capture records.
type Store struct {
	// Dir holds failure captures.
	Dir string

	// LastEventFile is the fixed last-event slot.
	LastEventFile string

	// Now supplies the timestamp for events without created_at.
	Now func() time.Time
}

// NewStore creates a Store writing failure captures under dir.
func NewStore(dir, lastEventFile string) *Store {
	return &Store{Dir: dir, LastEventFile: lastEventFile, Now: time.Now}
}

// FailureName returns the capture filename for ev. The event's created_at
// is used; now is the fallback when the event has none.
func FailureName(ev *event.ChangeEvent, now time.Time) string {
	ts := ev.CreatedAt
	if ts.IsZero() {
		ts = now
	}
	return fmt.Sprintf("%s%d-%s%s", filePrefix, ev.EntityID, ts.Format(TimestampLayout), Extension)
}

// Failure writes ev as a failure capture and returns the file path.
//
// An existing capture with the same name is never overwritten; a numeric
// suffix is added instead. Write errors are returned to the caller.
func (s *Store) Failure(ev *event.ChangeEvent) (string, error) {
	data, err := encode(ev)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir(), 0755); err != nil {
		return "", fmt.Errorf("failed to create capture directory: %w", err)
	}

	name := FailureName(ev, s.now())
	base := strings.TrimSuffix(name, Extension)
	for i := 0; i < maxCollisions; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", base, i, Extension)
		}
		path := filepath.Join(s.dir(), candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create capture file %s: %w", path, err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("failed to write capture file %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close capture file %s: %w", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("failed to find a free capture name for %s", name)
}

// LastEvent overwrites the last-event slot with ev.
func (s *Store) LastEvent(ev *event.ChangeEvent) error {
	if s.LastEventFile == "" {
		return fmt.Errorf("last event file not configured")
	}
	data, err := encode(ev)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.LastEventFile); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for last event: %w", err)
		}
	}

	// The slot is replaced by rename; readers never see a partial file.
	tmp := s.LastEventFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write last event: %w", err)
	}
	if err := os.Rename(tmp, s.LastEventFile); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace last event: %w", err)
	}
	return nil
}

// Load reads a capture record back into an event.
func Load(path string) (*event.ChangeEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture %s: %w", path, err)
	}
	ev, err := event.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode capture %s: %w", path, err)
	}
	return ev, nil
}

// Entry describes one failure capture on disk.
type Entry struct {
	Path    string
	ShotID  string
	ModTime time.Time
	Size    int64
}

// List returns the failure captures in the store directory, oldest first.
// A missing directory yields an empty list.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read capture directory: %w", err)
	}

	var out []Entry
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id, _, _ := strings.Cut(strings.TrimPrefix(e.Name(), filePrefix), "-")
		out = append(out, Entry{
			Path:    filepath.Join(s.dir(), e.Name()),
			ShotID:  id,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].Path < out[j].Path
		}
		return out[i].ModTime.Before(out[j].ModTime)
	})
	return out, nil
}

func (s *Store) dir() string {
	if s.Dir == "" {
		return "."
	}
	return s.Dir
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func encode(ev *event.ChangeEvent) ([]byte, error) {
	data, err := ev.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode event for shot %d: %w", ev.EntityID, err)
	}
	return data, nil
}
