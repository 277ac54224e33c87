// Package elasticsearch stores analyses and serves news evidence from Elasticsearch.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/MusheghMov/checkx/internal/logger"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Client wraps go-elasticsearch with helpers tailored to this project.
// index holds analysis records.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// New instantiates the Elasticsearch client.
func New(addr, index string, log *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &Client{es: es, index: index, log: logger.OrDiscard(log).With("component", "elasticsearch")}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Health reports cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("cluster health bad: %s", readError(res))
	}
	return nil
}

// EnsureIndex creates the analyses index with explicit mappings if it is missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index: %s", res.Status())
	}

	payload, err := json.Marshal(analysisMapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	// A concurrent creator may have won the race.
	if res.IsError() && !strings.Contains(readError(res), "resource_already_exists_exception") {
		return fmt.Errorf("create index failed: %s", res.Status())
	}

	c.log.Info("analyses index ready", slog.String("index", c.index))
	return nil
}

var analysisMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"post_id":            map[string]any{"type": "keyword"},
			"content":            map[string]any{"type": "text"},
			"author":             map[string]any{"type": "keyword"},
			"post_timestamp":     map[string]any{"type": "keyword"},
			"url":                map[string]any{"type": "keyword", "index": false},
			"confidence":         map[string]any{"type": "integer"},
			"rating":             map[string]any{"type": "keyword"},
			"topics":             map[string]any{"type": "keyword"},
			"reasoning":          map[string]any{"type": "text"},
			"source":             map[string]any{"type": "keyword"},
			"analysis_timestamp": map[string]any{"type": "date"},
			"evidence":           map[string]any{"type": "object", "enabled": false},
		},
	},
}

func readError(res *esapi.Response) string {
	data, _ := io.ReadAll(res.Body)
	return strings.TrimSpace(string(data))
}
