// Package logging configures zerolog for shothammer.
//
// Call Init once from main; components receive zerolog.Logger values
// derived from Logger() and add their own "component" field:
//
//	logging.Init(logging.Config{Level: "debug", Format: "console"})
//	log := logging.Logger().With().Str("component", "watch").Logger()
//	log.Info().Str("dir", dir).Msg("watching spool")
//
// With File set, output also goes to a size-rotated file.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	// Default: info
	Level string

	// Format is json or console. Default: json
	Format string

	// File, when set, receives a copy of every entry, rotated by lumberjack.
	File string

	// MaxSizeMB is the size at which File is rotated (default 50).
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept (default 5).
	MaxBackups int

	// Output is the primary writer. Default: os.Stderr
	Output io.Writer
}

var (
	log    = zerolog.New(os.Stderr).With().Timestamp().Logger()
	closer io.Closer
	mu     sync.RWMutex
)

// Init configures the global logger. It is safe to call more than once;
// a previously opened log file is closed.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		_ = closer.Close()
		closer = nil
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			Compress:   true,
		}
		closer = lj
		out = zerolog.MultiLevelWriter(out, lj)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log = zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// Close flushes and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// ParseLevel converts a level name to a zerolog level; unknown names map
// to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
