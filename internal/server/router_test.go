package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/faultline/internal/envelope"
	"github.com/telhawk-systems/faultline/internal/handlers"
	"github.com/telhawk-systems/faultline/internal/logging"
	"github.com/telhawk-systems/faultline/internal/models"
	"github.com/telhawk-systems/faultline/internal/notification"
	"github.com/telhawk-systems/faultline/internal/repository"
	"github.com/telhawk-systems/faultline/internal/service"
)

type testServer struct {
	repo    *repository.InMemoryRepository
	handler http.Handler
}

func newTestServer(t *testing.T, policy notification.Policy) *testServer {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	dispatcher := notification.NewDispatcher(repo,
		notification.NewTransport(notification.TransportConfig{Timeout: time.Second}),
		notification.DispatcherConfig{Policy: policy},
		logging.Discard())
	svc := service.NewIngestService(repo, dispatcher, service.WithLogger(logging.Discard()))
	h := handlers.NewEnvelopeHandler(svc, nil, repo, handlers.Config{
		MaxBodyBytes: 1 << 20,
		Link:         handlers.LinkConfig{Protocol: "http", Host: "localhost", Port: 8000},
	}, logging.Discard())
	return &testServer{repo: repo, handler: NewRouter(h, logging.Discard())}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func envelopeBody(t *testing.T, publicKey string, payload map[string]any) []byte {
	t.Helper()
	body, err := envelope.Encode(
		map[string]any{"event_id": "abc", "trace": map[string]any{"public_key": publicKey}},
		envelope.Part{Header: map[string]string{"type": "event"}, Payload: payload},
	)
	require.NoError(t, err)
	return body
}

func validPayload() map[string]any {
	return map[string]any{
		"timestamp": "2024-05-20T10:15:30.5Z",
		"exception": map[string]any{
			"values": []any{map[string]any{
				"type":  "KeyError",
				"value": "'user'",
				"stacktrace": map[string]any{
					"frames": []any{map[string]any{
						"abs_path":     "/srv/app/views.py",
						"function":     "profile",
						"lineno":       12,
						"pre_context":  []string{"def profile(request):"},
						"context_line": "    return request.session['user']",
					}},
				},
			}},
		},
	}
}

func post(path string, body []byte, encoding string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	return req
}

func TestEnvelopeEndpoint_Accepted(t *testing.T) {
	s := newTestServer(t, notification.PolicyIsolate)

	for _, path := range []string{"/api/7/envelope/", "/api/7/envelope"} {
		rr := s.do(post(path, envelopeBody(t, "trace-key", validPayload()), ""))
		require.Equal(t, http.StatusAccepted, rr.Code, path)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "received", resp["status"])
		assert.Equal(t, "7", resp["project_id"])
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	}
	assert.Len(t, s.repo.Events(), 2)
}

func TestEnvelopeEndpoint_ProjectComesFromTraceKey(t *testing.T) {
	s := newTestServer(t, notification.PolicyIsolate)

	rr := s.do(post("/api/path-project/envelope/", envelopeBody(t, "trace-project", validPayload()), ""))
	require.Equal(t, http.StatusAccepted, rr.Code)

	events := s.repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "trace-project", events[0].ProjectID)
	assert.Equal(t, 11, events[0].ContextStartLine)
}

func TestEnvelopeEndpoint_Gzip(t *testing.T) {
	s := newTestServer(t, notification.PolicyIsolate)

	gz, err := envelope.Gzip(envelopeBody(t, "k", validPayload()))
	require.NoError(t, err)

	rr := s.do(post("/api/1/envelope/", gz, "gzip"))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Len(t, s.repo.Events(), 1)
}

func TestEnvelopeEndpoint_BadRequests(t *testing.T) {
	noValues := validPayload()
	noValues["exception"] = map[string]any{"values": []any{}}

	tests := []struct {
		name     string
		body     []byte
		encoding string
	}{
		{"empty body", nil, ""},
		{"malformed gzip", []byte("plain text"), "gzip"},
		{"header not json", []byte("nope\n{}\n{}"), ""},
		{"missing exception values", envelopeBody(t, "k", noValues), ""},
		{"missing public key", envelopeBody(t, "", validPayload()), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, notification.PolicyIsolate)
			rr := s.do(post("/api/1/envelope/", tt.body, tt.encoding))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Empty(t, s.repo.Events())
		})
	}
}

func TestEnvelopeEndpoint_FanoutPolicies(t *testing.T) {
	var hits atomic.Int32
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	tests := []struct {
		policy notification.Policy
		status int
	}{
		{notification.PolicyAbort, http.StatusInternalServerError},
		{notification.PolicyIsolate, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			s := newTestServer(t, tt.policy)
			s.repo.AddChannel(models.NotificationChannel{ProjectID: "k", Kind: models.ChannelSlack, TargetURL: failing.URL})

			rr := s.do(post("/api/1/envelope/", envelopeBody(t, "k", validPayload()), ""))
			assert.Equal(t, tt.status, rr.Code)
			// Persisted either way.
			assert.Len(t, s.repo.Events(), 1)
		})
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestLinkEndpoint(t *testing.T) {
	s := newTestServer(t, notification.PolicyIsolate)

	rr := s.do(httptest.NewRequest(http.MethodGet, "/api/project/p-1/link", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "http://p-1@localhost:8000/0", resp["link"])
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t, notification.PolicyIsolate)

	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/readyz", nil)).Code)

	rr := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "faultline_")
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, notification.PolicyIsolate)
	rr := s.do(httptest.NewRequest(http.MethodGet, "/api/1/envelope/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
