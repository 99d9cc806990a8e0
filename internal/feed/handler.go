package feed

import (
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/sghs/shothammer/internal/hammer"
	"github.com/sghs/shothammer/internal/reconcile"
)

// Stats are running totals over the outcomes seen by a Handler.
type Stats struct {
	Events       int `json:"events"`
	OutOfScope   int `json:"out_of_scope"`
	Reconciled   int `json:"reconciled"`
	Captured     int `json:"captured"`
	Errors       int `json:"errors"`
	KeywordOps   int `json:"keyword_ops"`
	KeywordFails int `json:"keyword_failures"`
}

// Handler turns hammer outcomes into feed messages.
type Handler struct {
	server *Server

	mu    sync.Mutex
	stats Stats
}

// NewHandler connects a Handler to server. New clients receive the
// current totals on connect.
func NewHandler(server *Server) *Handler {
	h := &Handler{server: server}
	server.snapshot = h.statsMessage
	return h
}

// OnOutcome records out and broadcasts it with the updated totals. It has
// the signature hammer.Hammer.Observe expects.
func (h *Handler) OnOutcome(out *hammer.Outcome) {
	h.mu.Lock()
	h.stats.Events++
	switch {
	case out.Error != "":
		h.stats.Errors++
	case out.State == hammer.StateClassified:
		h.stats.OutOfScope++
	case out.State == hammer.StateCaptureFailed:
		h.stats.Captured++
	case out.State == hammer.StateReconciled:
		h.stats.Reconciled++
	}
	if out.Report != nil {
		for _, op := range out.Report.Operations {
			switch op.Result {
			case reconcile.ResultIssued:
				h.stats.KeywordOps++
			case reconcile.ResultFailed:
				h.stats.KeywordFails++
			}
		}
	}
	h.mu.Unlock()

	data, err := json.Marshal(out)
	if err != nil {
		h.server.log.Error().Err(err).Msg("failed to marshal outcome")
		return
	}
	h.server.Broadcast(Message{Type: MessageTypeOutcome, Timestamp: time.Now().UTC(), Data: data})
	h.server.Broadcast(h.statsMessage())
}

// Stats returns a copy of the running totals.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) statsMessage() Message {
	data, _ := json.Marshal(h.Stats())
	return Message{Type: MessageTypeStats, Timestamp: time.Now().UTC(), Data: data}
}
