// Package event models ShotGrid change events and decides whether they are
// in scope for keyword mirroring.
package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// MetaAttributeChange is the meta.type ShotGrid uses for field edits.
const MetaAttributeChange = "attribute_change"

// ErrMalformedEvent is returned when a record lacks keys every event must have.
var ErrMalformedEvent = errors.New("malformed event")

// ChangeEvent is a tag change on a shot, as delivered by the event daemon.
//
// A ChangeEvent is immutable once decoded. It keeps the bytes it was decoded
// from so a capture can persist the record verbatim.
type ChangeEvent struct {
	EntityID    int64
	EntityName  string
	ProjectID   *int64
	ProjectName *string
	CreatedAt   time.Time
	MetaType    string
	AddedTags   []string
	RemovedTags []string

	raw []byte
}

// wire types mirror the EventLogEntry dictionary.
type wireEvent struct {
	ID            int64       `json:"id,omitempty"`
	EventType     string      `json:"event_type,omitempty"`
	AttributeName string      `json:"attribute_name,omitempty"`
	Entity        *wireEntity `json:"entity"`
	Project       *wireEntity `json:"project"`
	Meta          *wireMeta   `json:"meta"`
	CreatedAt     string      `json:"created_at,omitempty"`
}

type wireEntity struct {
	Type string  `json:"type,omitempty"`
	ID   *int64  `json:"id"`
	Name *string `json:"name,omitempty"`
}

type wireMeta struct {
	Type          string     `json:"type"`
	AttributeName string     `json:"attribute_name,omitempty"`
	EntityType    string     `json:"entity_type,omitempty"`
	Added         []wireName `json:"added"`
	Removed       []wireName `json:"removed"`
}

type wireName struct {
	Type string `json:"type,omitempty"`
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// timeLayouts are the created_at encodings seen from the event daemon.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
}

// Decode parses one event record.
//
// The entity (with an id) and meta keys are required; a missing or null
// project is allowed and left nil for the classifier to report.
func Decode(data []byte) (*ChangeEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if w.Entity == nil || w.Entity.ID == nil {
		return nil, fmt.Errorf("%w: missing entity id", ErrMalformedEvent)
	}
	if w.Meta == nil {
		return nil, fmt.Errorf("%w: missing meta", ErrMalformedEvent)
	}

	ev := &ChangeEvent{
		EntityID:    *w.Entity.ID,
		MetaType:    w.Meta.Type,
		AddedTags:   names(w.Meta.Added),
		RemovedTags: names(w.Meta.Removed),
		raw:         append([]byte(nil), data...),
	}
	if w.Entity.Name != nil {
		ev.EntityName = *w.Entity.Name
	}
	if w.Project != nil && w.Project.ID != nil {
		id := *w.Project.ID
		ev.ProjectID = &id
		if w.Project.Name != nil {
			name := *w.Project.Name
			ev.ProjectName = &name
		}
	}
	if w.CreatedAt != "" {
		t, err := parseTime(w.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: created_at: %v", ErrMalformedEvent, err)
		}
		ev.CreatedAt = t
	}

	return ev, nil
}

func names(in []wireName) []string {
	out := make([]string, 0, len(in))
	for _, n := range in {
		out = append(out, n.Name)
	}
	return out
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON returns the original record when available, otherwise a record
// in the same nested shape Decode accepts.
func (e *ChangeEvent) MarshalJSON() ([]byte, error) {
	if len(e.raw) > 0 {
		return e.raw, nil
	}

	id := e.EntityID
	name := e.EntityName
	w := wireEvent{
		Entity: &wireEntity{Type: "Shot", ID: &id, Name: &name},
		Meta: &wireMeta{
			Type:    e.MetaType,
			Added:   toWireNames(e.AddedTags),
			Removed: toWireNames(e.RemovedTags),
		},
	}
	if e.ProjectID != nil {
		pid := *e.ProjectID
		w.Project = &wireEntity{Type: "Project", ID: &pid, Name: e.ProjectName}
	}
	if !e.CreatedAt.IsZero() {
		w.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	return json.Marshal(w)
}

func toWireNames(tags []string) []wireName {
	out := make([]wireName, 0, len(tags))
	for _, t := range tags {
		out = append(out, wireName{Type: "Tag", Name: t})
	}
	return out
}

// HasProject reports whether the event carries a project id.
func (e *ChangeEvent) HasProject() bool {
	return e.ProjectID != nil
}
