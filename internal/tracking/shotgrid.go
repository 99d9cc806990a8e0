package tracking

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sghs/shothammer/internal/metrics"
	"github.com/sghs/shothammer/internal/template"
)

// DefaultTimeout bounds each HTTP round trip to the ShotGrid site.
const DefaultTimeout = 30 * time.Second

const (
	apiPrefix       = "/api/v1"
	searchMediaType = "application/vnd+shotgun.api3_array+json"
	breakerName     = "shotgrid-api"
	maxBodyBytes    = 1 << 20
)

// Config holds ShotGrid connection settings.
type Config struct {
	// SiteURL is the site root, e.g. https://studio.shotgrid.autodesk.com
	SiteURL string

	// ScriptName and ScriptKey are the API script credentials.
	ScriptName string
	ScriptKey  string

	// Timeout bounds each HTTP request (default: DefaultTimeout).
	Timeout time.Duration

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("shotgrid: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("shotgrid: status=%d body=%s", e.StatusCode, e.Body)
}

// ShotGrid is a Backend for the ShotGrid REST API.
//
// Each Open performs a client-credentials token exchange, so every session
// carries its own access token and nothing is shared across events. Calls
// go through a circuit breaker; there is no retry.
type ShotGrid struct {
	cfg       Config
	baseURL   string
	http      *http.Client
	templates *template.Set
	breaker   *gobreaker.CircuitBreaker[any]
	log       zerolog.Logger
}

// NewShotGrid creates a ShotGrid backend. Templates are served to sessions
// from the given set.
func NewShotGrid(cfg Config, templates *template.Set, log zerolog.Logger) (*ShotGrid, error) {
	u, err := url.ParseRequestURI(strings.TrimSpace(cfg.SiteURL))
	if err != nil {
		return nil, fmt.Errorf("invalid site url: %w", err)
	}
	if cfg.ScriptName == "" || cfg.ScriptKey == "" {
		return nil, fmt.Errorf("%w: script name and key are required", ErrAuthFailed)
	}
	if templates == nil {
		return nil, fmt.Errorf("templates cannot be nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	tr := cfg.Transport
	if tr == nil {
		tr = http.DefaultTransport
	}

	log = log.With().Str("component", "shotgrid").Logger()
	return &ShotGrid{
		cfg:       cfg,
		baseURL:   strings.TrimRight(u.String(), "/") + apiPrefix,
		http:      &http.Client{Timeout: cfg.Timeout, Transport: tr},
		templates: templates,
		breaker:   newBreaker(log),
		log:       log,
	}, nil
}

func newBreaker(log zerolog.Logger) *gobreaker.CircuitBreaker[any] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// 4xx responses do not count against the breaker.
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
				return true
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

// Open authenticates and returns a session scoped to ref.
func (s *ShotGrid) Open(ctx context.Context, ref EntityRef) (Session, error) {
	var tok tokenResponse
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.cfg.ScriptName},
		"client_secret": {s.cfg.ScriptKey},
	}
	err := s.do(ctx, http.MethodPost, "/auth/access_token", "",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &tok)
	if err != nil {
		metrics.TrackingSessionsTotal.WithLabelValues("error").Inc()
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusBadRequest || httpErr.StatusCode == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("failed to open session for %s %d: %w", ref.Type, ref.ID, err)
	}
	if tok.AccessToken == "" {
		metrics.TrackingSessionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}

	metrics.TrackingSessionsTotal.WithLabelValues("opened").Inc()
	s.log.Debug().Str("entity_type", ref.Type).Int64("entity_id", ref.ID).Msg("session opened")

	return &session{
		backend: s,
		ref:     ref,
		token:   tok.AccessToken,
	}, nil
}

type tokenResponse struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// do executes one request through the circuit breaker and decodes a JSON
// response into out.
func (s *ShotGrid) do(ctx context.Context, method, path, token, contentType string, body io.Reader, out any) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.roundTrip(ctx, method, path, token, contentType, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (s *ShotGrid) roundTrip(ctx context.Context, method, path, token, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("shotgrid: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("shotgrid: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("shotgrid: read response (status=%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("shotgrid: unmarshal json: %w", err)
	}
	return nil
}

// session is a ShotGrid Session holding one access token.
type session struct {
	backend *ShotGrid
	ref     EntityRef

	mu     sync.Mutex
	token  string
	closed bool
}

type searchRequest struct {
	Filters []Filter   `json:"filters"`
	Fields  []string   `json:"fields"`
	Page    searchPage `json:"page"`
}

type searchPage struct {
	Number int `json:"number"`
	Size   int `json:"size"`
}

type searchResponse struct {
	Data []struct {
		ID            int64                      `json:"id"`
		Type          string                     `json:"type"`
		Attributes    map[string]any             `json:"attributes"`
		Relationships map[string]json.RawMessage `json:"relationships"`
	} `json:"data"`
}

// FindOne runs a one-record search against the entity collection.
func (s *session) FindOne(ctx context.Context, entityType string, filters []Filter, fields []string) (Record, error) {
	token, err := s.currentToken()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(searchRequest{
		Filters: filters,
		Fields:  fields,
		Page:    searchPage{Number: 1, Size: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("shotgrid: marshal search: %w", err)
	}

	var resp searchResponse
	path := "/entity/" + collection(entityType) + "/_search"
	if err := s.backend.do(ctx, http.MethodPost, path, token, searchMediaType, bytes.NewReader(body), &resp); err != nil {
		return nil, fmt.Errorf("find %s: %w", entityType, err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}

	d := resp.Data[0]
	rec := Record{"id": d.ID, "type": d.Type}
	for k, v := range d.Attributes {
		rec[k] = v
	}
	for k, raw := range d.Relationships {
		var rel struct {
			Data any `json:"data"`
		}
		if err := json.Unmarshal(raw, &rel); err != nil {
			return nil, fmt.Errorf("shotgrid: relationship %s: %w", k, err)
		}
		rec[k] = rel.Data
	}
	return rec, nil
}

// Template looks name up in the backend's single template set. Every
// project shares one toolkit configuration, so the session's entity does
// not select the set.
func (s *session) Template(name string) (*template.Template, error) {
	if _, err := s.currentToken(); err != nil {
		return nil, err
	}
	return s.backend.templates.Get(name)
}

// Close forgets the access token. ShotGrid tokens expire on their own, so
// there is no server call to make.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.token = ""
	metrics.TrackingSessionsTotal.WithLabelValues("closed").Inc()
	s.backend.log.Debug().Str("entity_type", s.ref.Type).Int64("entity_id", s.ref.ID).Msg("session closed")
	return nil
}

func (s *session) currentToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	return s.token, nil
}

// collection maps an entity type to its REST collection name ("Shot" -> "shots").
func collection(entityType string) string {
	c := strings.ToLower(entityType)
	if strings.HasSuffix(c, "s") {
		return c
	}
	return c + "s"
}
