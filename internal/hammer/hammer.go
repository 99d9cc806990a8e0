// Package hammer runs one change event through the whole pipeline:
// classify, resolve the shot, compose its work-area path and mirror the
// tag change onto the file system as keywords.
//
// Events whose path cannot be composed are captured to disk for manual
// replay instead of failing the caller. Events are handled one at a time;
// a Hammer is not safe for concurrent Handle calls.
package hammer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sghs/shothammer/internal/capture"
	"github.com/sghs/shothammer/internal/event"
	"github.com/sghs/shothammer/internal/logging"
	"github.com/sghs/shothammer/internal/metrics"
	"github.com/sghs/shothammer/internal/reconcile"
	"github.com/sghs/shothammer/internal/shot"
	"github.com/sghs/shothammer/internal/tracking"
)

// State is a stage of the per-event pipeline.
type State string

const (
	StateReceived      State = "received"
	StateClassified    State = "classified"
	StateResolving     State = "resolving"
	StateComposed      State = "composed"
	StateCaptureFailed State = "capture_failed"
	StateReconciled    State = "reconciled"
	StateDone          State = "done"
)

// Outcome describes how one event was handled.
type Outcome struct {
	// CorrelationID ties together the log lines of this event
	CorrelationID string `json:"correlation_id"`

	// ShotID is the entity id carried by the event
	ShotID int64 `json:"shot_id"`

	// State is the last stage reached before Done: classified for
	// out-of-scope events, capture_failed or reconciled otherwise
	State State `json:"state"`

	// Verdict is the classifier's decision
	Verdict event.Verdict `json:"verdict"`

	// Path is the composed work-area path (empty unless composed)
	Path string `json:"path,omitempty"`

	// CaptureFile is the file the event was saved to when composition failed
	CaptureFile string `json:"capture_file,omitempty"`

	// Report lists the keyword operations (nil unless reconciled)
	Report *reconcile.Report `json:"report,omitempty"`

	// Duration is the wall time spent in Handle
	Duration time.Duration `json:"duration_ns"`

	// Error is the error Handle returned, if any
	Error string `json:"error,omitempty"`
}

// Recorder receives the report of every reconcile pass.
// *journal.Journal implements it.
type Recorder interface {
	Record(ctx context.Context, shotID int64, report *reconcile.Report) error
}

// Options configures a Hammer.
type Options struct {
	// AllowedProjects is the project allow-list; empty allows all
	AllowedProjects []int64

	// Template names the path template used for the shot work area
	Template string

	// Fields names the shot's sequence and episode link fields
	Fields shot.FieldNames

	// CaptureLastEvent saves every incoming event to the last-event slot
	CaptureLastEvent bool
}

// Hammer is the event orchestrator.
type Hammer struct {
	opts       Options
	backend    tracking.Backend
	reconciler *reconcile.Reconciler
	captures   *capture.Store
	recorder   Recorder
	observers  []func(*Outcome)
	log        zerolog.Logger
}

// New creates a Hammer. recorder may be nil.
func New(opts Options, backend tracking.Backend, reconciler *reconcile.Reconciler, captures *capture.Store, recorder Recorder, log zerolog.Logger) *Hammer {
	if opts.Fields == (shot.FieldNames{}) {
		opts.Fields = shot.DefaultFieldNames
	}
	return &Hammer{
		opts:       opts,
		backend:    backend,
		reconciler: reconciler,
		captures:   captures,
		recorder:   recorder,
		log:        log.With().Str("component", "hammer").Logger(),
	}
}

// Observe registers fn to be called with every Outcome Handle produces.
func (h *Hammer) Observe(fn func(*Outcome)) {
	h.observers = append(h.observers, fn)
}

// Handle processes one event. Out-of-scope events and composition
// failures are not errors; the returned error is reserved for failures
// the caller must see (tracking backend unreachable, capture not written).
//
// Once started, an event runs to completion: cancellation of ctx is
// ignored so a shutdown cannot interrupt a half-applied tag change. Callers
// stop between events instead.
func (h *Hammer) Handle(ctx context.Context, ev *event.ChangeEvent) (out *Outcome, err error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	out = &Outcome{
		CorrelationID: logging.GenerateCorrelationID(),
		ShotID:        ev.EntityID,
		State:         StateReceived,
	}
	ctx = logging.ContextWithCorrelationID(ctx, out.CorrelationID)
	log := logging.WithCorrelationID(ctx, h.log).With().Int64("shot_id", ev.EntityID).Logger()

	defer func() {
		out.Duration = time.Since(start)
		if err != nil {
			out.Error = err.Error()
		}
		metrics.HandleDuration.WithLabelValues(string(out.State)).Observe(out.Duration.Seconds())
		for _, fn := range h.observers {
			fn(out)
		}
	}()

	if h.opts.CaptureLastEvent {
		if err := h.captures.LastEvent(ev); err != nil {
			log.Warn().Err(err).Msg("failed to save last event")
		}
	}

	out.Verdict = event.Classify(ev, h.opts.AllowedProjects)
	out.State = StateClassified
	metrics.EventsTotal.WithLabelValues(verdictLabel(out.Verdict), out.Verdict.Reason).Inc()
	if !out.Verdict.InScope {
		if out.Verdict.Reason == event.ReasonNoProject {
			log.Warn().Str("entity", ev.EntityName).Msg("project is none in event, ignoring")
		} else {
			log.Debug().Str("reason", out.Verdict.Reason).Msg("event out of scope")
		}
		return out, nil
	}

	out.State = StateResolving
	log.Info().Strs("added", ev.AddedTags).Strs("removed", ev.RemovedTags).Msg("tag change")

	path, captured, err := h.resolvePath(ctx, ev, log)
	if err != nil {
		return out, err
	}
	if captured != "" {
		out.State = StateCaptureFailed
		out.CaptureFile = captured
		return out, nil
	}
	out.State = StateComposed
	out.Path = path

	out.Report = h.reconciler.Reconcile(ctx, path, ev.AddedTags, ev.RemovedTags)
	out.State = StateReconciled
	log.Info().
		Str("path", path).
		Int("issued", out.Report.Count(reconcile.ResultIssued)).
		Int("skipped", out.Report.Count(reconcile.ResultSkipped)).
		Int("failed", out.Report.Count(reconcile.ResultFailed)).
		Msg("tags reconciled")

	if h.recorder != nil {
		if err := h.recorder.Record(ctx, ev.EntityID, out.Report); err != nil {
			log.Warn().Err(err).Msg("failed to journal keyword operations")
		}
	}
	return out, nil
}

// resolvePath opens a session for the shot, composes its work-area path
// and closes the session on every exit path. When the path cannot be
// composed the event is captured and the capture file name is returned
// in place of a path.
func (h *Hammer) resolvePath(ctx context.Context, ev *event.ChangeEvent, log zerolog.Logger) (path, captured string, err error) {
	sess, err := h.backend.Open(ctx, tracking.EntityRef{Type: shot.EntityType, ID: ev.EntityID})
	if err != nil {
		return "", "", fmt.Errorf("failed to open tracking session for shot %d: %w", ev.EntityID, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to close tracking session")
		}
	}()

	tmpl, err := sess.Template(h.opts.Template)
	if err != nil {
		return "", "", fmt.Errorf("failed to load template %q: %w", h.opts.Template, err)
	}

	rec, err := shot.Resolve(ctx, sess, ev.EntityID, h.opts.Fields)
	if err != nil {
		return "", "", err
	}

	path, err = shot.Compose(rec, tmpl)
	var compErr *shot.CompositionError
	switch {
	case errors.As(err, &compErr):
		file, cerr := h.captures.Failure(ev)
		if cerr != nil {
			return "", "", fmt.Errorf("failed to capture event for shot %d: %w", ev.EntityID, cerr)
		}
		metrics.CapturesTotal.Inc()
		log.Error().Str("capture", file).Str("reason", compErr.Error()).Msg("unable to apply all required fields, event captured")
		return "", file, nil
	case err != nil:
		return "", "", fmt.Errorf("failed to compose path for shot %d: %w", ev.EntityID, err)
	}

	log.Debug().Str("path", path).Msg("full path")
	return path, "", nil
}

func verdictLabel(v event.Verdict) string {
	if v.InScope {
		return "in_scope"
	}
	return "out_of_scope"
}
