// Package config loads the shothammer configuration from a TOML file and
// the environment.
//
// Sources, lowest precedence first: built-in defaults, the config file,
// SGHS_* environment variables, explicit overrides (command-line flags).
// SG_ED_SITE_URL is honored for the site URL as in existing deployments.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Default values.
const (
	DefaultPathTemplate  = "work_shot_area"
	DefaultHSBinary      = "hs"
	DefaultHSTimeout     = 30 * time.Second
	DefaultEpisodeField  = "sg_episode"
	DefaultSequenceField = "sg_sequence"
	DefaultCaptureDir    = "."
	DefaultLastEventFile = "last_event.json"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	EnvPrefix            = "SGHS"
	SiteURLEnv           = "SG_ED_SITE_URL"
	FileName             = "shothammer"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the effective configuration. It is built once by Load and
// passed by value; nothing mutates it afterwards.
type Config struct {
	// Name and Key are the tracking-system script credentials.
	Name    string `mapstructure:"name"`
	Key     string `mapstructure:"key"`
	SiteURL string `mapstructure:"site_url" validate:"omitempty,url"`

	// Projects is the project allow-list. Empty means every project.
	Projects []int64 `mapstructure:"-" validate:"dive,gt=0"`

	// TagNamespace is the prefix a tag needs to be mirrored. Event
	// processing refuses to start without one (see RequireTracking).
	TagNamespace string `mapstructure:"tag_namespace"`

	CaptureLastEvent bool   `mapstructure:"capture_last_event"`
	LastEventFile    string `mapstructure:"last_event_file" validate:"required_if=CaptureLastEvent true"`
	CaptureDir       string `mapstructure:"capture_dir" validate:"required"`

	ToolkitRoot   string `mapstructure:"toolkit_root"`
	PathTemplate  string `mapstructure:"path_template" validate:"required"`
	EpisodeField  string `mapstructure:"episode_field" validate:"required"`
	SequenceField string `mapstructure:"sequence_field" validate:"required"`

	HSBinary  string        `mapstructure:"hs_binary" validate:"required"`
	HSTimeout time.Duration `mapstructure:"hs_timeout" validate:"gte=0"`

	JournalPath string `mapstructure:"journal_path"`
	SpoolDir    string `mapstructure:"spool_dir"`
	FeedAddr    string `mapstructure:"feed_addr" validate:"omitempty,hostname_port"`

	Log LogConfig `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error off disabled"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
	File   string `mapstructure:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CaptureDir:    DefaultCaptureDir,
		LastEventFile: DefaultLastEventFile,
		PathTemplate:  DefaultPathTemplate,
		EpisodeField:  DefaultEpisodeField,
		SequenceField: DefaultSequenceField,
		HSBinary:      DefaultHSBinary,
		HSTimeout:     DefaultHSTimeout,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// RequireTracking reports whether the options needed to talk to the
// tracking system and the template engine are present. Commands that only
// read local state do not call it.
func (c Config) RequireTracking() error {
	var missing []string
	if c.Name == "" {
		missing = append(missing, "name")
	}
	if c.Key == "" {
		missing = append(missing, "key")
	}
	if c.SiteURL == "" {
		missing = append(missing, "site_url")
	}
	if c.TagNamespace == "" {
		missing = append(missing, "tag_namespace")
	}
	if c.ToolkitRoot == "" {
		missing = append(missing, "toolkit_root")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrInvalid, missing)
	}
	return nil
}
