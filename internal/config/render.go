package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
)

const redacted = "********"

type fileView struct {
	Name             string      `toml:"name"`
	Key              string      `toml:"key"`
	SiteURL          string      `toml:"site_url"`
	Projects         []int64     `toml:"projects"`
	TagNamespace     string      `toml:"tag_namespace"`
	CaptureLastEvent bool        `toml:"capture_last_event"`
	LastEventFile    string      `toml:"last_event_file"`
	CaptureDir       string      `toml:"capture_dir"`
	ToolkitRoot      string      `toml:"toolkit_root"`
	PathTemplate     string      `toml:"path_template"`
	EpisodeField     string      `toml:"episode_field"`
	SequenceField    string      `toml:"sequence_field"`
	HSBinary         string      `toml:"hs_binary"`
	HSTimeout        string      `toml:"hs_timeout"`
	JournalPath      string      `toml:"journal_path"`
	SpoolDir         string      `toml:"spool_dir"`
	FeedAddr         string      `toml:"feed_addr"`
	Log              logFileView `toml:"log"`
}

type logFileView struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// TOML renders c in config-file form. The script key is redacted.
func (c Config) TOML() ([]byte, error) {
	view := fileView{
		Name:             c.Name,
		SiteURL:          c.SiteURL,
		Projects:         c.Projects,
		TagNamespace:     c.TagNamespace,
		CaptureLastEvent: c.CaptureLastEvent,
		LastEventFile:    c.LastEventFile,
		CaptureDir:       c.CaptureDir,
		ToolkitRoot:      c.ToolkitRoot,
		PathTemplate:     c.PathTemplate,
		EpisodeField:     c.EpisodeField,
		SequenceField:    c.SequenceField,
		HSBinary:         c.HSBinary,
		HSTimeout:        c.HSTimeout.String(),
		JournalPath:      c.JournalPath,
		SpoolDir:         c.SpoolDir,
		FeedAddr:         c.FeedAddr,
		Log:              logFileView(c.Log),
	}
	if c.Key != "" {
		view.Key = redacted
	}
	if view.Projects == nil {
		view.Projects = []int64{}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(view); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}
