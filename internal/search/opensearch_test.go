package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/faultline/internal/models"
)

// fakeCluster answers the handful of OpenSearch endpoints the indexer calls.
type fakeCluster struct {
	mu       sync.Mutex
	requests []string
	docs     map[string]map[string]any
	template map[string]any
	failDocs bool
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	t.Helper()
	fc := &fakeCluster{docs: make(map[string]map[string]any)}
	server := httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(server.Close)
	return fc, server
}

func (fc *fakeCluster) serve(w http.ResponseWriter, r *http.Request) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.requests = append(fc.requests, r.Method+" "+r.URL.Path)

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		_, _ = io.WriteString(w, `{"name":"fake","cluster_name":"test","version":{"number":"2.11.0","distribution":"opensearch"},"tagline":"The OpenSearch Project"}`)
	case r.Method == http.MethodPut && r.URL.Path == "/_index_template/faultline-events-template":
		_ = json.NewDecoder(r.Body).Decode(&fc.template)
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case r.Method == http.MethodPut || r.Method == http.MethodPost:
		if fc.failDocs {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"mapper_parsing_exception"}`)
			return
		}
		var doc map[string]any
		_ = json.NewDecoder(r.Body).Decode(&doc)
		fc.docs[r.URL.Path] = doc
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestIndexer(t *testing.T, url string) *OpenSearchIndexer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = url
	idx, err := NewOpenSearchIndexer(cfg)
	require.NoError(t, err)
	return idx
}

func TestInitialize_InstallsTemplate(t *testing.T) {
	fc, server := newFakeCluster(t)
	idx := newTestIndexer(t, server.URL)

	require.NoError(t, idx.Initialize(context.Background()))

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.NotNil(t, fc.template)
	assert.Equal(t, []any{"faultline-events-*"}, fc.template["index_patterns"])
}

func TestIndexEvent(t *testing.T) {
	fc, server := newFakeCluster(t)
	idx := newTestIndexer(t, server.URL)

	event := &models.Event{
		ID:            "0190f0a8-7f00-7000-8000-000000000001",
		ProjectID:     "proj-token",
		ExceptionType: "KeyError",
		Severity:      models.SeverityUnmarked,
		LineNumber:    3,
		Timestamp:     time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, idx.IndexEvent(context.Background(), event))

	fc.mu.Lock()
	defer fc.mu.Unlock()
	doc, ok := fc.docs["/faultline-events-2024.05/_doc/0190f0a8-7f00-7000-8000-000000000001"]
	require.True(t, ok, "requests: %v", fc.requests)
	assert.Equal(t, "KeyError", doc["exception_type"])
	assert.Equal(t, "proj-token", doc["project_id"])
}

func TestIndexEvent_ErrorResponse(t *testing.T) {
	fc, server := newFakeCluster(t)
	fc.failDocs = true
	idx := newTestIndexer(t, server.URL)

	err := idx.IndexEvent(context.Background(), &models.Event{ID: "x", Timestamp: time.Now()})
	assert.Error(t, err)
}

func TestIndexName(t *testing.T) {
	idx := newTestIndexer(t, "http://localhost:9200")
	assert.Equal(t, "faultline-events-2023.12", idx.IndexName(time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)))
}

func TestNoOpIndexer(t *testing.T) {
	var idx Indexer = NoOpIndexer{}
	assert.NoError(t, idx.Initialize(context.Background()))
	assert.NoError(t, idx.IndexEvent(context.Background(), &models.Event{}))
}
