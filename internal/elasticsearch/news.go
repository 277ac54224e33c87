package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/MusheghMov/checkx/internal/models"
)

// NewsIndex searches a news article index. It satisfies evidence.Searcher.
type NewsIndex struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// News returns a searcher over index sharing the client's connection.
func (c *Client) News(index string) *NewsIndex {
	return &NewsIndex{es: c.es, index: index, log: c.log}
}

// Search runs a relevance-ranked full-text query over title and description.
func (n *NewsIndex) Search(ctx context.Context, query string, limit int) ([]models.NewsArticle, error) {
	if limit <= 0 {
		limit = 5
	}

	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"title^2", "description"},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal news query: %w", err)
	}

	res, err := n.es.Search(
		n.es.Search.WithContext(ctx),
		n.es.Search.WithIndex(n.index),
		n.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("news search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("news search failed: %s", readError(res))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.NewsArticle `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}

	articles := make([]models.NewsArticle, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		articles = append(articles, hit.Source)
	}
	n.log.Debug("news index search", slog.String("query", query), slog.Int("hits", len(articles)))
	return articles, nil
}
