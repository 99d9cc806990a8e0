package feed

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/sghs/shothammer/internal/event"
	"github.com/sghs/shothammer/internal/hammer"
	"github.com/sghs/shothammer/internal/reconcile"
)

func startServer(t *testing.T) (*Server, *Handler) {
	t.Helper()
	server := NewServer(Config{Addr: "127.0.0.1:0"})
	handler := NewHandler(server)
	if err := server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return server, handler
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return msg
}

func TestWelcomeStats(t *testing.T) {
	server, _ := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Errorf("welcome type = %s, want %s", msg.Type, MessageTypeStats)
	}
	if server.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", server.ClientCount())
	}
}

func TestOutcomeBroadcast(t *testing.T) {
	server, handler := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn)

	handler.OnOutcome(&hammer.Outcome{
		ShotID:  9502,
		State:   hammer.StateReconciled,
		Verdict: event.InScope,
		Path:    "/proj/seq01/ep01/sh010",
		Report: &reconcile.Report{Operations: []reconcile.Operation{
			{Path: "/proj/seq01/ep01/sh010", Keyword: "sghs:hero", Op: reconcile.OpAdd, Result: reconcile.ResultIssued},
			{Path: "/proj/seq01/ep01/sh010", Keyword: "other", Op: reconcile.OpAdd, Result: reconcile.ResultSkipped},
		}},
	})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeOutcome {
		t.Fatalf("type = %s, want %s", msg.Type, MessageTypeOutcome)
	}
	var out hammer.Outcome
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		t.Fatalf("Unmarshal outcome: %v", err)
	}
	if out.ShotID != 9502 || out.Path != "/proj/seq01/ep01/sh010" {
		t.Errorf("outcome = %+v", out)
	}

	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("type = %s, want %s", msg.Type, MessageTypeStats)
	}
	var stats Stats
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Unmarshal stats: %v", err)
	}
	want := Stats{Events: 1, Reconciled: 1, KeywordOps: 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlerStats(t *testing.T) {
	handler := NewHandler(NewServer(DefaultConfig()))

	handler.OnOutcome(&hammer.Outcome{State: hammer.StateClassified, Verdict: event.OutOfScope(event.ReasonNoProject)})
	handler.OnOutcome(&hammer.Outcome{State: hammer.StateCaptureFailed})
	handler.OnOutcome(&hammer.Outcome{State: hammer.StateResolving, Error: "tracking backend unavailable"})

	want := Stats{Events: 3, OutOfScope: 1, Captured: 1, Errors: 1}
	if diff := cmp.Diff(want, handler.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	server, _ := startServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	resp, err = http.Get("http://" + server.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Errorf("unexpected /metrics response %d", resp.StatusCode)
	}
}
