package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/config"
	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

// ESClient indexes attack events so analysts can search payloads
// full-text. It doubles as a recorder sink.
type ESClient struct {
	Client *elasticsearch.Client
	index  string
	logger *zap.Logger
}

// NewElasticsearchClient builds and pings the ES client.
func NewElasticsearchClient(cfg *config.Config, logger *zap.Logger) (*ESClient, error) {
	esConfig := cfg.Elasticsearch
	if logger == nil {
		logger = util.Get()
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.IsDevelopment(),
		},
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esConfig.URL},
		Username:  esConfig.Username,
		Password:  esConfig.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	es := &ESClient{Client: client, index: esConfig.Index, logger: logger}
	if err := es.HealthCheck(); err != nil {
		return nil, fmt.Errorf("elasticsearch connection test failed: %w", err)
	}

	util.Info("Elasticsearch client initialized", zap.String("url", esConfig.URL), zap.String("index", esConfig.Index))
	return es, nil
}

// Name implements recorder.Sink.
func (e *ESClient) Name() string { return "elasticsearch" }

// Publish indexes a single event document under its event ID.
func (e *ESClient) Publish(ctx context.Context, event models.AttackEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event for indexing: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: event.EventID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, e.Client)
	if err != nil {
		return fmt.Errorf("failed to index event: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index request rejected: %s", string(msg))
	}
	return nil
}

// SearchPayloads runs a match query against stored payloads and returns the
// raw response body for the monitoring surface to render.
func (e *ESClient) SearchPayloads(ctx context.Context, query string) ([]byte, error) {
	var buf bytes.Buffer
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"match": map[string]interface{}{"payload": query},
		},
	}
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := e.Client.Search(
		e.Client.Search.WithContext(ctx),
		e.Client.Search.WithIndex(e.index),
		e.Client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("payload search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("payload search rejected: %s", string(msg))
	}
	return io.ReadAll(res.Body)
}

// HealthCheck pings the cluster.
func (e *ESClient) HealthCheck() error {
	res, err := e.Client.Ping()
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping returned %s", res.Status())
	}
	return nil
}

// Close logs shutdown; the underlying transport has no explicit close.
func (e *ESClient) Close() {
	util.Info("Elasticsearch client shutdown")
}
