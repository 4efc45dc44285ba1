package sync

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)

const testTimestamp = "2024-01-31T12:00:00.000000Z"

func testConfig(baseURL string) Config {
	var cfg Config
	cfg.Organization.ID = "org-123"
	cfg.Organization.Name = "Test Org"
	cfg.API.BaseURL = baseURL
	cfg.API.Endpoints = map[string]string{
		"accounts": "/accounts",
		"entities": "/entities",
		"payroll":  "/payroll",
	}
	cfg.API.Order = []string{"accounts", "entities", "payroll"}
	cfg.API.Contexts = map[string]string{"payroll": "payroll"}
	cfg.Paths = Paths{Data: "data", Logs: "logs", Reports: "reports"}
	return cfg
}

func testEnv() MapEnv {
	return MapEnv{
		EnvClientID:  "client-1",
		EnvProgramID: "program-1",
	}
}

func testSession(cfg Config) (*Session, *test.Hook) {
	logger, hook := test.NewNullLogger()
	s := NewSession(cfg, LoadCredentials(testEnv()), logger)
	s.Now = func() time.Time { return testTime }
	return s, hook
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

// recordingServer records every request before passing it to the handler
// registered for its path. Unregistered paths return 404.
type recordingServer struct {
	*httptest.Server

	mu       gosync.Mutex
	requests []recordedRequest
	handlers map[string]http.HandlerFunc
}

func newRecordingServer(t *testing.T, handlers map[string]http.HandlerFunc) *recordingServer {
	rs := &recordingServer{handlers: handlers}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.requests = append(rs.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		h, exists := rs.handlers[r.URL.Path]
		rs.mu.Unlock()
		if !exists {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) Requests() []recordedRequest {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]recordedRequest(nil), rs.requests...)
}

func (rs *recordingServer) Paths() []string {
	var result []string
	for _, r := range rs.Requests() {
		result = append(result, r.Path)
	}
	return result
}

func jsonResponse(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// hangUp closes the connection without a response.
func hangUp(w http.ResponseWriter, r *http.Request) {
	conn, _, err := w.(http.Hijacker).Hijack()
	if err == nil {
		conn.Close()
	}
}

func records(t *testing.T, raw ...string) []json.RawMessage {
	t.Helper()
	var result []json.RawMessage
	for _, r := range raw {
		require.True(t, json.Valid([]byte(r)), r)
		result = append(result, json.RawMessage(r))
	}
	return result
}
