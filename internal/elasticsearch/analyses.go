package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/MusheghMov/checkx/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// ListParams narrow the analyses listing.
type ListParams struct {
	Rating string
	Source string
	From   int
	Size   int
}

// AnalysisPage bundles hits and total count.
type AnalysisPage struct {
	Total int64
	Items []models.AnalysisRecord
}

// SaveAnalysis upserts a record keyed by post id, so re-analysis replaces the previous verdict.
func (c *Client) SaveAnalysis(ctx context.Context, rec models.AnalysisRecord) error {
	if rec.PostID == "" {
		return fmt.Errorf("analysis record has no post id")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: rec.PostID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index analysis: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index analysis failed: %s", readError(res))
	}

	c.log.Debug("analysis stored", slog.String("post_id", rec.PostID), slog.String("rating", string(rec.Rating)))
	return nil
}

// GetAnalysis loads the record for a post id.
func (c *Client) GetAnalysis(ctx context.Context, postID string) (*models.AnalysisRecord, error) {
	res, err := c.es.Get(c.index, postID, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("get analysis failed: %s", readError(res))
	}

	var parsed struct {
		Found  bool                  `json:"found"`
		Source models.AnalysisRecord `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	if !parsed.Found {
		return nil, ErrNotFound
	}

	return &parsed.Source, nil
}

// ListAnalyses returns records most recent first, optionally filtered by rating and source.
func (c *Client) ListAnalyses(ctx context.Context, params ListParams) (*AnalysisPage, error) {
	if params.Size <= 0 {
		params.Size = defaultPageSize
	}
	if params.Size > maxPageSize {
		params.Size = maxPageSize
	}
	if params.From < 0 {
		params.From = 0
	}

	body := map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query":            filterQuery(params.Rating, params.Source),
		"sort": []map[string]any{
			{"analysis_timestamp": map[string]any{"order": "desc"}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", readError(res))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.AnalysisRecord `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.AnalysisRecord, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return &AnalysisPage{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

// CountAnalyses counts stored records matching the optional filters.
func (c *Client) CountAnalyses(ctx context.Context, rating, source string) (int64, error) {
	payload, err := json.Marshal(map[string]any{"query": filterQuery(rating, source)})
	if err != nil {
		return 0, fmt.Errorf("marshal count body: %w", err)
	}

	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(c.index),
		c.es.Count.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("count failed: %s", readError(res))
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return parsed.Count, nil
}

// DeleteOlderThan removes analyses older than maxAge using batched delete-by-query.
// It loops until a batch returns fewer deleted documents than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	totalDeleted := int64(0)

	payload, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"analysis_timestamp": map[string]any{"lte": cutoff},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	for {
		deleted, err := c.deleteBatch(ctx, payload, batchSize)
		totalDeleted += deleted
		if err != nil {
			return totalDeleted, err
		}
		if deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// ClearAnalyses removes every stored analysis and reports how many were deleted.
func (c *Client) ClearAnalyses(ctx context.Context) (int64, error) {
	payload, err := json.Marshal(map[string]any{"query": map[string]any{"match_all": map[string]any{}}})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return 0, fmt.Errorf("clear analyses: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("clear analyses failed: %s", readError(res))
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	c.log.Info("analyses cleared", slog.Int64("deleted", parsed.Deleted))
	return parsed.Deleted, nil
}

func (c *Client) deleteBatch(ctx context.Context, payload []byte, batchSize int) (int64, error) {
	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithScrollSize(batchSize),
		c.es.DeleteByQuery.WithMaxDocs(batchSize),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("delete by query failed: %s", readError(res))
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return parsed.Deleted, nil
}

func filterQuery(rating, source string) map[string]any {
	filters := make([]map[string]any, 0, 2)
	if rating != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"rating": rating}})
	}
	if source != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"source": source}})
	}
	if len(filters) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{"bool": map[string]any{"filter": filters}}
}
