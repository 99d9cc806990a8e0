// Package spool is the event source for watch mode.
//
// Upstream delivers each change event as a JSON file dropped into a spool
// directory. The spool:
//  1. Drains files already present, in name order
//  2. Watches the directory for new *.json files
//  3. Hands each decoded event to the handler, one at a time
//  4. Moves the file to done/ or failed/ afterwards
//
// Writers should create files under a dot-prefixed name and rename them
// into place; dotfiles are ignored.
package spool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/sghs/shothammer/internal/event"
)

// Subdirectories processed files are moved to.
const (
	DoneDir   = "done"
	FailedDir = "failed"
	Extension = ".json"
)

// Handler processes one event read from path.
type Handler func(ctx context.Context, path string, ev *event.ChangeEvent) error

// Config holds configuration for the spool.
type Config struct {
	// DebounceInterval is how long a file must be quiet before it is read
	DebounceInterval time.Duration

	// Logger for spool activity
	Logger zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceInterval: 100 * time.Millisecond,
		Logger:           zerolog.Nop(),
	}
}

// Spool watches a directory and feeds its event files to a Handler.
type Spool struct {
	dir     string
	handler Handler
	config  Config
	log     zerolog.Logger

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // path -> last seen
	changeQueueMu sync.Mutex

	wg sync.WaitGroup
}

// New creates a Spool over dir, creating dir and its done/ and failed/
// subdirectories when missing. Use Run to start processing.
func New(dir string, handler Handler, config Config) (*Spool, error) {
	if dir == "" {
		return nil, fmt.Errorf("spool dir cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	for _, d := range []string{dir, filepath.Join(dir, DoneDir), filepath.Join(dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create spool directory %s: %w", d, err)
		}
	}

	return &Spool{
		dir:         dir,
		handler:     handler,
		config:      config,
		log:         config.Logger.With().Str("component", "spool").Logger(),
		changeQueue: make(map[string]time.Time),
	}, nil
}

// Dir returns the watched directory.
func (s *Spool) Dir() string {
	return s.dir
}

// Run drains the spool, then watches it until ctx is cancelled.
func (s *Spool) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	s.watcher = watcher

	// Watch before draining so files arriving mid-drain are not missed.
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch spool directory %s: %w", s.dir, err)
	}

	if _, err := s.Drain(ctx); err != nil {
		watcher.Close()
		return err
	}

	s.log.Info().Str("dir", s.dir).Msg("watching spool")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.wg.Add(2)
	go s.watchFileEvents(ctx)
	go s.processChangeQueue(ctx)

	<-ctx.Done()
	if err := watcher.Close(); err != nil {
		s.log.Warn().Err(err).Msg("error closing watcher")
	}
	s.wg.Wait()
	s.log.Info().Msg("spool stopped")
	return nil
}

// Drain processes every event file currently in the spool, in name order,
// and returns how many were handled.
func (s *Spool) Drain(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read spool directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isEventFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(paths)

	if len(paths) > 0 {
		s.log.Info().Int("files", len(paths)).Msg("draining spool")
	}
	for i, path := range paths {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		s.process(ctx, path)
	}
	return len(paths), nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (s *Spool) watchFileEvents(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if filepath.Dir(ev.Name) != filepath.Clean(s.dir) || !isEventFile(filepath.Base(ev.Name)) {
				continue
			}
			s.log.Debug().Str("op", ev.Op.String()).Str("file", ev.Name).Msg("file event")
			s.queueChange(ev.Name)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (s *Spool) queueChange(path string) {
	s.changeQueueMu.Lock()
	defer s.changeQueueMu.Unlock()

	s.changeQueue[path] = time.Now()
}

// processChangeQueue processes queued files once they have been quiet for
// the debounce interval.
func (s *Spool) processChangeQueue(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			for _, path := range s.readyChanges() {
				if ctx.Err() != nil {
					return
				}
				s.process(ctx, path)
			}
		}
	}
}

// readyChanges removes and returns, in name order, the queued files that
// have been quiet long enough.
func (s *Spool) readyChanges() []string {
	s.changeQueueMu.Lock()
	defer s.changeQueueMu.Unlock()

	now := time.Now()
	var ready []string
	for path, queuedAt := range s.changeQueue {
		if now.Sub(queuedAt) < s.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(s.changeQueue, path)
	}
	sort.Strings(ready)
	return ready
}

// process handles one file and moves it out of the spool.
func (s *Spool) process(ctx context.Context, path string) {
	log := s.log.With().Str("file", filepath.Base(path)).Logger()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		// Already processed by Drain or removed by hand.
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to read event file")
		s.move(path, FailedDir, log)
		return
	}

	ev, err := event.Decode(data)
	if err != nil {
		log.Error().Err(err).Msg("malformed event file")
		s.move(path, FailedDir, log)
		return
	}

	if err := s.handler(ctx, path, ev); err != nil {
		log.Error().Err(err).Int64("shot_id", ev.EntityID).Msg("failed to handle event")
		s.move(path, FailedDir, log)
		return
	}
	s.move(path, DoneDir, log)
}

func (s *Spool) move(path, sub string, log zerolog.Logger) {
	target := filepath.Join(s.dir, sub, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		log.Error().Err(err).Str("target", target).Msg("failed to move event file")
	}
}

func isEventFile(name string) bool {
	return strings.HasSuffix(name, Extension) && !strings.HasPrefix(name, ".")
}
