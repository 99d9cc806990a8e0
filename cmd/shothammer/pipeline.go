package main

import (
	"fmt"
	"path/filepath"

	"github.com/sghs/shothammer/internal/capture"
	"github.com/sghs/shothammer/internal/config"
	"github.com/sghs/shothammer/internal/hammer"
	"github.com/sghs/shothammer/internal/hs"
	"github.com/sghs/shothammer/internal/journal"
	"github.com/sghs/shothammer/internal/reconcile"
	"github.com/sghs/shothammer/internal/shot"
	"github.com/sghs/shothammer/internal/template"
	"github.com/sghs/shothammer/internal/tracking"
)

// pipeline is everything needed to handle events, built from cfg.
type pipeline struct {
	hammer  *hammer.Hammer
	journal *journal.Journal
}

func (p *pipeline) Close() error {
	if p.journal != nil {
		return p.journal.Close()
	}
	return nil
}

func newHSClient(c config.Config) *hs.Client {
	return hs.New(&hs.ExecRunner{Binary: c.HSBinary, Timeout: c.HSTimeout}, log)
}

func newCaptureStore(c config.Config) *capture.Store {
	lastEvent := c.LastEventFile
	if lastEvent != "" && !filepath.IsAbs(lastEvent) {
		lastEvent = filepath.Join(c.CaptureDir, lastEvent)
	}
	return capture.NewStore(c.CaptureDir, lastEvent)
}

func newPipeline(c config.Config) (*pipeline, error) {
	if err := c.RequireTracking(); err != nil {
		return nil, err
	}

	templates, err := template.LoadToolkit(c.ToolkitRoot)
	if err != nil {
		return nil, err
	}
	if _, err := templates.Get(c.PathTemplate); err != nil {
		return nil, fmt.Errorf("toolkit %s: %w", c.ToolkitRoot, err)
	}

	backend, err := tracking.NewShotGrid(tracking.Config{
		SiteURL:    c.SiteURL,
		ScriptName: c.Name,
		ScriptKey:  c.Key,
	}, templates, log)
	if err != nil {
		return nil, err
	}

	p := &pipeline{}
	var recorder hammer.Recorder
	if c.JournalPath != "" {
		j, err := journal.Open(c.JournalPath)
		if err != nil {
			return nil, err
		}
		p.journal = j
		recorder = j
	}

	rc := reconcile.New(newHSClient(c), c.TagNamespace, log)
	p.hammer = hammer.New(hammer.Options{
		AllowedProjects:  c.Projects,
		Template:         c.PathTemplate,
		Fields:           shot.FieldNames{Sequence: c.SequenceField, Episode: c.EpisodeField},
		CaptureLastEvent: c.CaptureLastEvent,
	}, backend, rc, newCaptureStore(c), recorder, log)

	return p, nil
}
