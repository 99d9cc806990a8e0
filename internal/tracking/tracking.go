// Package tracking talks to the production-tracking backend (ShotGrid).
//
// Work happens inside a Session opened for one entity. A Session must be
// closed when the caller is done with it, on every exit path:
//
//	sess, err := backend.Open(ctx, tracking.EntityRef{Type: "Shot", ID: id})
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
package tracking

import (
	"context"
	"errors"

	"github.com/goccy/go-json"

	"github.com/sghs/shothammer/internal/template"
)

// Common errors returned by tracking operations.
var (
	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("session closed")

	// ErrAuthFailed is returned when the backend rejects the script credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrUnavailable is returned when the circuit breaker is open.
	ErrUnavailable = errors.New("tracking backend unavailable")
)

// EntityRef identifies one entity in the backend.
type EntityRef struct {
	Type string
	ID   int64
}

// Filter is a single [field, operator, value] condition.
type Filter struct {
	Field    string
	Operator string
	Value    any
}

// Is builds an equality filter.
func Is(field string, value any) Filter {
	return Filter{Field: field, Operator: "is", Value: value}
}

// MarshalJSON encodes the filter in ShotGrid's array form.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Field, f.Operator, f.Value})
}

// Record is one entity as returned by a query. Linked entities are maps
// with type, id and name keys.
type Record map[string]any

// String returns the string value of field, or nil when it is absent,
// null or not a string.
func (r Record) String(field string) *string {
	if s, ok := r[field].(string); ok {
		return &s
	}
	return nil
}

// LinkName returns the display name of a linked entity field. A plain
// string value is returned as-is.
func (r Record) LinkName(field string) *string {
	switch v := r[field].(type) {
	case string:
		return &v
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			return &name
		}
	}
	return nil
}

// Finder performs single-record lookups.
type Finder interface {
	// FindOne returns the first matching record, or nil when none match.
	FindOne(ctx context.Context, entityType string, filters []Filter, fields []string) (Record, error)
}

// Session is an authenticated, entity-scoped connection to the backend.
type Session interface {
	Finder

	// Template returns a path template from the configuration that applies
	// to the session's entity.
	Template(name string) (*template.Template, error)

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Backend opens sessions.
type Backend interface {
	Open(ctx context.Context, ref EntityRef) (Session, error)
}
