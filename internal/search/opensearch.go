// Package search indexes persisted events into OpenSearch for querying.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/telhawk-systems/faultline/internal/models"
)

// Indexer writes events to a search backend.
type Indexer interface {
	Initialize(ctx context.Context) error
	IndexEvent(ctx context.Context, event *models.Event) error
}

// Config holds OpenSearch connection and index configuration
type Config struct {
	URL             string
	Username        string
	Password        string
	TLSSkipVerify   bool
	IndexPrefix     string
	ShardCount      int
	ReplicaCount    int
	RefreshInterval string
}

// DefaultConfig returns sensible defaults for OpenSearch configuration
func DefaultConfig() Config {
	return Config{
		URL:             "https://localhost:9200",
		Username:        "admin",
		Password:        "admin",
		TLSSkipVerify:   true,
		IndexPrefix:     "faultline-events",
		ShardCount:      1,
		ReplicaCount:    0,
		RefreshInterval: "5s",
	}
}

// OpenSearchIndexer stores one document per event in monthly indices.
type OpenSearchIndexer struct {
	client *opensearch.Client
	config Config
}

// NewOpenSearchIndexer creates an indexer. No request is made until Initialize or IndexEvent.
func NewOpenSearchIndexer(cfg Config) (*OpenSearchIndexer, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &OpenSearchIndexer{client: client, config: cfg}, nil
}

// Initialize verifies the connection and installs the index template.
func (i *OpenSearchIndexer) Initialize(ctx context.Context) error {
	info, err := i.client.Info(i.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	body, err := json.Marshal(i.indexTemplate())
	if err != nil {
		return err
	}

	res, err := i.client.Indices.PutIndexTemplate(
		i.config.IndexPrefix+"-template",
		bytes.NewReader(body),
		i.client.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("failed to create index template: %s - %s", res.Status(), string(bodyBytes))
	}
	return nil
}

// IndexName returns the index an event with timestamp ts is written to.
func (i *OpenSearchIndexer) IndexName(ts time.Time) string {
	return fmt.Sprintf("%s-%s", i.config.IndexPrefix, ts.UTC().Format("2006.01"))
}

// IndexEvent writes event using its ID as the document ID, so re-indexing is idempotent.
func (i *OpenSearchIndexer) IndexEvent(ctx context.Context, event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      i.IndexName(event.Timestamp),
		DocumentID: event.ID,
		Body:       bytes.NewReader(data),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("index event %s: %w", event.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index event %s: %s - %s", event.ID, res.Status(), string(bodyBytes))
	}
	return nil
}

func (i *OpenSearchIndexer) indexTemplate() map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	text := map[string]interface{}{"type": "text"}

	return map[string]interface{}{
		"index_patterns": []string{i.config.IndexPrefix + "-*"},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":   i.config.ShardCount,
				"number_of_replicas": i.config.ReplicaCount,
				"refresh_interval":   i.config.RefreshInterval,
			},
			"mappings": map[string]interface{}{
				"properties": map[string]interface{}{
					"id":                 keyword,
					"project_id":         keyword,
					"exception_type":     keyword,
					"exception_message":  text,
					"severity":           keyword,
					"line_number":        map[string]interface{}{"type": "integer"},
					"context_start_line": map[string]interface{}{"type": "integer"},
					"context_text":       text,
					"function_name":      keyword,
					"module_name":        keyword,
					"filename":           keyword,
					"absolute_path":      keyword,
					"runtime_name":       keyword,
					"runtime_version":    keyword,
					"runtime_build":      keyword,
					"platform":           keyword,
					"server_name":        keyword,
					"timestamp":          map[string]interface{}{"type": "date"},
				},
			},
		},
		"priority": 100,
	}
}

// NoOpIndexer discards events (used when OpenSearch is disabled)
type NoOpIndexer struct{}

func (NoOpIndexer) Initialize(ctx context.Context) error {
	return nil
}

func (NoOpIndexer) IndexEvent(ctx context.Context, event *models.Event) error {
	return nil
}
