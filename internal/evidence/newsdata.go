package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/MusheghMov/checkx/internal/logger"
	"github.com/MusheghMov/checkx/internal/models"
)

const (
	DefaultNewsDataEndpoint = "https://newsdata.io/api/1/news"
	// newsDataMaxQuery is the longest q value the API accepts.
	newsDataMaxQuery = 100
)

// NewsDataConfig configures the NewsData.io searcher.
type NewsDataConfig struct {
	Endpoint     string
	APIKey       string
	Language     string
	RateInterval time.Duration
}

// NewsData searches the NewsData.io latest-news endpoint.
type NewsData struct {
	cfg     NewsDataConfig
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

type newsDataResponse struct {
	Status       string               `json:"status"`
	TotalResults int                  `json:"totalResults"`
	Results      []models.NewsArticle `json:"results"`
}

// NewNewsData builds a searcher. A zero RateInterval disables throttling.
func NewNewsData(cfg NewsDataConfig, client *http.Client, log *slog.Logger) *NewsData {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultNewsDataEndpoint
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	limit := rate.Inf
	if cfg.RateInterval > 0 {
		limit = rate.Every(cfg.RateInterval)
	}
	return &NewsData{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		log:     logger.OrDiscard(log),
	}
}

// Search implements Searcher.
func (n *NewsData) Search(ctx context.Context, query string, limit int) ([]models.NewsArticle, error) {
	if n.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	runes := []rune(query)
	if len(runes) > newsDataMaxQuery {
		query = string(runes[:newsDataMaxQuery])
	}

	params := url.Values{}
	params.Set("apikey", n.cfg.APIKey)
	params.Set("q", query)
	params.Set("language", n.cfg.Language)
	if limit > 0 {
		params.Set("size", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build newsdata request: %w", err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsdata request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsdata status %d", resp.StatusCode)
	}

	var body newsDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode newsdata response: %w", err)
	}
	if body.Status != "success" {
		return nil, fmt.Errorf("newsdata status %q", body.Status)
	}

	articles := body.Results
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	n.log.Debug("newsdata search", slog.String("query", query), slog.Int("total", body.TotalResults), slog.Int("returned", len(articles)))
	return articles, nil
}
