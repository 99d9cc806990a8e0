// Package reconcile turns an event's added and removed tags into keyword
// operations on a shot path.
package reconcile

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sghs/shothammer/internal/metrics"
)

// Op is a keyword operation kind.
type Op string

const (
	OpAdd    Op = "add"
	OpDelete Op = "delete"
)

// Result is the outcome of one operation.
type Result string

const (
	ResultIssued  Result = "issued"
	ResultSkipped Result = "skipped"
	ResultFailed  Result = "failed"
)

// KeywordSetter applies filesystem keywords. *hs.Client satisfies it.
type KeywordSetter interface {
	KeywordAdd(ctx context.Context, path, keyword string, recursive bool) error
	KeywordDelete(ctx context.Context, path, keyword string, recursive bool) error
}

// Operation is one keyword operation and what became of it.
type Operation struct {
	Path    string `json:"path"`
	Keyword string `json:"keyword"`
	Op      Op     `json:"op"`
	Result  Result `json:"result"`
	Err     error  `json:"-"`
}

// Report lists the operations of one reconcile pass in execution order.
type Report struct {
	Operations []Operation `json:"operations"`
}

// Count returns the number of operations with the given result.
func (r *Report) Count(res Result) int {
	n := 0
	for _, op := range r.Operations {
		if op.Result == res {
			n++
		}
	}
	return n
}

// Reconciler mirrors namespaced tags as keywords.
type Reconciler struct {
	setter    KeywordSetter
	namespace string
	log       zerolog.Logger
}

// New creates a Reconciler. Only tags starting with namespace are mirrored.
func New(setter KeywordSetter, namespace string, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		setter:    setter,
		namespace: namespace,
		log:       log.With().Str("component", "reconcile").Logger(),
	}
}

// Reconcile issues a keyword add for every namespaced tag in added, then a
// keyword delete for every namespaced tag in removed.
//
// Order and duplicates are preserved. Tags outside the namespace are
// skipped silently. A failed operation is logged and the rest of the batch
// still runs; Reconcile never stops early.
func (r *Reconciler) Reconcile(ctx context.Context, path string, added, removed []string) *Report {
	report := &Report{Operations: make([]Operation, 0, len(added)+len(removed))}

	r.log.Debug().Str("path", path).Strs("added", added).Strs("removed", removed).Msg("reconciling tags")

	for _, tag := range added {
		report.Operations = append(report.Operations, r.apply(ctx, OpAdd, path, tag))
	}
	for _, tag := range removed {
		report.Operations = append(report.Operations, r.apply(ctx, OpDelete, path, tag))
	}
	return report
}

func (r *Reconciler) apply(ctx context.Context, op Op, path, tag string) Operation {
	o := Operation{Path: path, Keyword: tag, Op: op}

	if !strings.HasPrefix(tag, r.namespace) {
		r.log.Debug().Str("tag", tag).Str("namespace", r.namespace).Msg("tag not in namespace, skipping")
		o.Result = ResultSkipped
		metrics.KeywordOpsTotal.WithLabelValues(string(op), string(o.Result)).Inc()
		return o
	}

	var err error
	switch op {
	case OpAdd:
		r.log.Info().Str("keyword", tag).Str("path", path).Msg("setting keyword")
		err = r.setter.KeywordAdd(ctx, path, tag, false)
	case OpDelete:
		r.log.Info().Str("keyword", tag).Str("path", path).Msg("removing keyword")
		err = r.setter.KeywordDelete(ctx, path, tag, false)
	}

	if err != nil {
		r.log.Error().Err(err).Str("op", string(op)).Str("keyword", tag).Str("path", path).Msg("keyword operation failed")
		o.Result = ResultFailed
		o.Err = err
	} else {
		o.Result = ResultIssued
	}
	metrics.KeywordOpsTotal.WithLabelValues(string(op), string(o.Result)).Inc()
	return o
}
