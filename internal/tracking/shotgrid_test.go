package tracking

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/sghs/shothammer/internal/template"
)

const testTemplates = `
roots:
  primary: /proj
paths:
  work_shot_area: "{Sequence}/{Episode}/{Shot}"
`

type fakeSite struct {
	t        *testing.T
	authCode int
	searches atomic.Int32
	lastBody struct {
		Filters [][]any    `json:"filters"`
		Fields  []string   `json:"fields"`
		Page    searchPage `json:"page"`
	}
	data     string
}

func (f *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/auth/access_token":
		if err := r.ParseForm(); err != nil {
			f.t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" || r.PostForm.Get("client_id") != "sghs" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if f.authCode != 0 {
			w.WriteHeader(f.authCode)
			return
		}
		_, _ = io.WriteString(w, `{"token_type":"Bearer","access_token":"tok-1","expires_in":600}`)

	case "/api/v1/entity/shots/_search":
		f.searches.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != searchMediaType {
			f.t.Errorf("Content-Type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &f.lastBody); err != nil {
			f.t.Errorf("search body: %v", err)
		}
		_, _ = io.WriteString(w, f.data)

	default:
		http.NotFound(w, r)
	}
}

func newTestBackend(t *testing.T, site *fakeSite) *ShotGrid {
	t.Helper()
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)

	set, err := template.Parse([]byte(testTemplates))
	if err != nil {
		t.Fatalf("template.Parse: %v", err)
	}
	sg, err := NewShotGrid(Config{SiteURL: srv.URL, ScriptName: "sghs", ScriptKey: "secret"}, set, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewShotGrid: %v", err)
	}
	return sg
}

func TestShotGridFindOne(t *testing.T) {
	site := &fakeSite{t: t, data: `{"data":[{"id":9502,"type":"Shot",
		"attributes":{"code":"sh010"},
		"relationships":{
			"sg_sequence":{"data":{"type":"Sequence","id":3,"name":"seq01"}},
			"sg_episode":{"data":{"type":"Episode","id":4,"name":"ep01"}}}}]}`}
	sg := newTestBackend(t, site)
	ctx := context.Background()

	sess, err := sg.Open(ctx, EntityRef{Type: "Shot", ID: 9502})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	rec, err := sess.FindOne(ctx, "Shot", []Filter{Is("id", 9502)}, []string{"id", "type", "code", "sg_episode", "sg_sequence"})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record")
	}
	if got := rec.String("code"); got == nil || *got != "sh010" {
		t.Errorf("code = %v", got)
	}
	if got := rec.LinkName("sg_sequence"); got == nil || *got != "seq01" {
		t.Errorf("sg_sequence = %v", got)
	}
	if got := rec.LinkName("sg_episode"); got == nil || *got != "ep01" {
		t.Errorf("sg_episode = %v", got)
	}

	if len(site.lastBody.Filters) != 1 || site.lastBody.Page.Size != 1 {
		t.Errorf("unexpected search body: %+v", site.lastBody)
	}
	if site.searches.Load() != 1 {
		t.Errorf("searches = %d, want 1", site.searches.Load())
	}
}

func TestShotGridFindOneNoMatch(t *testing.T) {
	site := &fakeSite{t: t, data: `{"data":[]}`}
	sg := newTestBackend(t, site)

	sess, err := sg.Open(context.Background(), EntityRef{Type: "Shot", ID: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	rec, err := sess.FindOne(context.Background(), "Shot", []Filter{Is("id", 1)}, []string{"code"})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %v", rec)
	}
}

func TestShotGridAuthFailure(t *testing.T) {
	site := &fakeSite{t: t, authCode: http.StatusUnauthorized}
	sg := newTestBackend(t, site)

	_, err := sg.Open(context.Background(), EntityRef{Type: "Shot", ID: 1})
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}

func TestSessionClose(t *testing.T) {
	site := &fakeSite{t: t, data: `{"data":[]}`}
	sg := newTestBackend(t, site)

	sess, err := sg.Open(context.Background(), EntityRef{Type: "Shot", ID: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := sess.Template("work_shot_area"); err != nil {
		t.Errorf("Template: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	if _, err := sess.FindOne(context.Background(), "Shot", nil, nil); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := sess.Template("work_shot_area"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if site.searches.Load() != 0 {
		t.Error("closed session must not reach the backend")
	}
}

func TestNewShotGridValidation(t *testing.T) {
	set, _ := template.Parse([]byte(testTemplates))
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad url", Config{SiteURL: "not a url", ScriptName: "a", ScriptKey: "b"}},
		{"missing key", Config{SiteURL: "https://x.example.com", ScriptName: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewShotGrid(tt.cfg, set, zerolog.Nop()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFilterMarshal(t *testing.T) {
	data, err := json.Marshal([]Filter{Is("id", 9502)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got := string(data); got != `[["id","is",9502]]` {
		t.Errorf("Marshal() = %s", got)
	}
}

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"code":        "sh010",
		"sg_sequence": "seq01",
		"sg_episode":  map[string]any{"type": "Episode", "id": 4, "name": "ep01"},
		"empty_link":  nil,
	}
	if got := rec.LinkName("sg_sequence"); got == nil || *got != "seq01" {
		t.Errorf("string link = %v", got)
	}
	if got := rec.LinkName("sg_episode"); got == nil || *got != "ep01" {
		t.Errorf("map link = %v", got)
	}
	if got := rec.LinkName("empty_link"); got != nil {
		t.Errorf("null link = %v", *got)
	}
	if got := rec.String("missing"); got != nil {
		t.Errorf("missing = %v", *got)
	}
}

func TestCollection(t *testing.T) {
	for in, want := range map[string]string{"Shot": "shots", "Sequence": "sequences", "Assets": "assets"} {
		if got := collection(in); got != want {
			t.Errorf("collection(%q) = %q, want %q", in, got, want)
		}
	}
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }
func (failingBody) Close() error             { return nil }

type truncatingTransport struct{}

func (truncatingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       failingBody{},
		Request:    r,
	}, nil
}

func TestShotGridTruncatedResponse(t *testing.T) {
	sg := newTestBackend(t, &fakeSite{t: t})
	sg.http = &http.Client{Transport: truncatingTransport{}}

	_, err := sg.Open(context.Background(), EntityRef{Type: "Shot", ID: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) || !strings.Contains(err.Error(), "read response") {
		t.Errorf("Open() error = %v, want wrapped read failure", err)
	}
}

func TestSessionTemplateSharedAcrossEntities(t *testing.T) {
	site := &fakeSite{t: t, data: `{"data":[]}`}
	sg := newTestBackend(t, site)
	ctx := context.Background()

	var got []*template.Template
	for _, id := range []int64{9502, 7001} {
		sess, err := sg.Open(ctx, EntityRef{Type: "Shot", ID: id})
		if err != nil {
			t.Fatalf("Open(%d): %v", id, err)
		}
		tmpl, err := sess.Template("work_shot_area")
		if err != nil {
			t.Fatalf("Template: %v", err)
		}
		got = append(got, tmpl)
		_ = sess.Close()
	}
	if got[0] != got[1] {
		t.Error("sessions for different shots returned different templates")
	}
}
