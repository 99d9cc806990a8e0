// Package shot resolves a shot id to its tracking record and composes the
// shot's filesystem path from a path template.
package shot

import (
	"context"
	"errors"
	"fmt"

	"github.com/sghs/shothammer/internal/template"
	"github.com/sghs/shothammer/internal/tracking"
)

// EntityType is the tracking entity type for shots.
const EntityType = "Shot"

// Template field names filled from a ShotRecord.
const (
	FieldShot     = "Shot"
	FieldSequence = "Sequence"
	FieldEpisode  = "Episode"
)

// FieldNames names the tracking fields that hold the sequence and episode
// links. Sites configure these differently.
type FieldNames struct {
	Sequence string
	Episode  string
}

// DefaultFieldNames are the stock ShotGrid shot fields.
var DefaultFieldNames = FieldNames{Sequence: "sg_sequence", Episode: "sg_episode"}

// Record is the snapshot of a shot needed for path composition. Any of the
// name fields may be nil.
type Record struct {
	ID           int64
	Type         string
	Code         *string
	SequenceName *string
	EpisodeName  *string
}

// Complete reports whether every field a shot path needs is present.
func (r Record) Complete() bool {
	return len(r.absent()) == 0
}

// absent lists the template keys whose record field is nil.
func (r Record) absent() []string {
	var keys []string
	if r.Code == nil {
		keys = append(keys, FieldShot)
	}
	if r.SequenceName == nil {
		keys = append(keys, FieldSequence)
	}
	if r.EpisodeName == nil {
		keys = append(keys, FieldEpisode)
	}
	return keys
}

// Resolve looks up shot id with a single query.
//
// A missing record is not an error: the returned Record has nil name fields
// and composition reports what is missing.
func Resolve(ctx context.Context, finder tracking.Finder, id int64, names FieldNames) (Record, error) {
	if names.Sequence == "" {
		names.Sequence = DefaultFieldNames.Sequence
	}
	if names.Episode == "" {
		names.Episode = DefaultFieldNames.Episode
	}

	fields := []string{"id", "type", "code", names.Episode, names.Sequence}
	rec, err := finder.FindOne(ctx, EntityType, []tracking.Filter{tracking.Is("id", id)}, fields)
	if err != nil {
		return Record{}, fmt.Errorf("failed to resolve shot %d: %w", id, err)
	}

	out := Record{ID: id, Type: EntityType}
	if rec == nil {
		return out, nil
	}
	out.Code = rec.String("code")
	out.SequenceName = rec.LinkName(names.Sequence)
	out.EpisodeName = rec.LinkName(names.Episode)
	return out, nil
}

// CompositionError is returned by Compose when the template lacks fields.
type CompositionError struct {
	ShotID  int64
	Missing []string
	Err     error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("shot %d: %v", e.ShotID, e.Err)
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

// Compose materializes the shot path from tmpl.
//
// A path is only produced for a complete record: a nil Shot, Sequence or
// Episode yields a *CompositionError even when tmpl does not use that key,
// as does any field the template reports missing. Other template errors are
// returned as-is.
func Compose(rec Record, tmpl *template.Template) (string, error) {
	if !rec.Complete() {
		absent := rec.absent()
		err := &template.MissingFieldsError{Template: tmpl.Name, Missing: absent}
		return "", &CompositionError{ShotID: rec.ID, Missing: absent, Err: err}
	}

	path, err := tmpl.ApplyFields(map[string]string{
		FieldShot:     *rec.Code,
		FieldSequence: *rec.SequenceName,
		FieldEpisode:  *rec.EpisodeName,
	})
	if err != nil {
		var missing *template.MissingFieldsError
		if errors.As(err, &missing) {
			return "", &CompositionError{ShotID: rec.ID, Missing: missing.Missing, Err: err}
		}
		return "", err
	}
	return path, nil
}
