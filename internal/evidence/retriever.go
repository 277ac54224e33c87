// Package evidence retrieves news coverage for a post and scores how closely
// it relates to the post's keywords.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/MusheghMov/checkx/internal/cache"
	"github.com/MusheghMov/checkx/internal/logger"
	"github.com/MusheghMov/checkx/internal/models"
	"github.com/MusheghMov/checkx/internal/processing"
)

// DefaultLimit caps how many articles a single search returns.
const DefaultLimit = 5

// ErrNotConfigured is returned by searchers that lack credentials or an endpoint.
var ErrNotConfigured = errors.New("news search not configured")

// Searcher queries a news backend with free text.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.NewsArticle, error)
}

// Retriever fetches and scores evidence. Failures degrade to no evidence.
type Retriever struct {
	searcher Searcher
	limit    int
	cache    *cache.Cache[[]models.NewsResult]
	log      *slog.Logger
}

// NewRetriever wires a searcher. cache may be nil to disable result caching.
func NewRetriever(searcher Searcher, limit int, c *cache.Cache[[]models.NewsResult], log *slog.Logger) *Retriever {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Retriever{searcher: searcher, limit: limit, cache: c, log: logger.OrDiscard(log)}
}

// Fetch returns articles for keywords sorted by descending relevance.
// An empty keyword list never reaches the searcher.
func (r *Retriever) Fetch(ctx context.Context, keywords []string) []models.NewsResult {
	if len(keywords) == 0 || r.searcher == nil {
		return []models.NewsResult{}
	}

	query := strings.Join(keywords, " ")
	if r.cache != nil {
		if cached, ok := r.cache.Get(query); ok {
			return append([]models.NewsResult(nil), cached...)
		}
	}

	articles, err := r.search(ctx, query)
	if err != nil {
		r.log.Warn("evidence unavailable", slog.String("query", query), slog.Any("err", err))
		return []models.NewsResult{}
	}

	results := make([]models.NewsResult, 0, len(articles))
	for _, a := range articles {
		title := plainText(a.Title)
		results = append(results, models.NewsResult{
			Title:          title,
			Source:         a.SourceID,
			RelevanceScore: Relevance(keywords, title+" "+plainText(a.Description)),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})

	if r.cache != nil {
		r.cache.Put(query, append([]models.NewsResult(nil), results...))
	}
	r.log.Debug("evidence fetched", slog.String("query", query), slog.Int("articles", len(results)))
	return results
}

func (r *Retriever) search(ctx context.Context, query string) (articles []models.NewsArticle, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			articles, err = nil, fmt.Errorf("news search panicked: %v", rec)
		}
	}()
	return r.searcher.Search(ctx, query, r.limit)
}

// Relevance is the fraction of keyword tokens that overlap, as a substring in
// either direction, with some token of text.
func Relevance(keywords []string, text string) float64 {
	kwTokens := processing.Tokens(strings.Join(keywords, " "), 2)
	if len(kwTokens) == 0 {
		return 0
	}

	var textTokens []string
	for _, tok := range processing.Tokens(text, 3) {
		if !processing.IsStopword(tok) {
			textTokens = append(textTokens, tok)
		}
	}

	matches := 0
	for _, kw := range kwTokens {
		for _, tok := range textTokens {
			if strings.Contains(tok, kw) || strings.Contains(kw, tok) {
				matches++
				break
			}
		}
	}
	return float64(matches) / float64(len(kwTokens))
}

// Classify summarizes scored articles into an evidence context.
func Classify(results []models.NewsResult) models.EvidenceContext {
	if len(results) == 0 {
		return models.EvidenceContext{
			Articles:           []models.NewsResult{},
			VerificationStatus: models.StatusNoCoverage,
			Summary:            "No related news coverage found.",
			ConfidenceScore:    0,
		}
	}

	var total float64
	for _, r := range results {
		total += r.RelevanceScore
	}
	avg := total / float64(len(results))

	status := models.StatusNoCoverage
	switch {
	case avg > 0.4:
		status = models.StatusVerified
	case avg > 0.2:
		status = models.StatusMixed
	}

	return models.EvidenceContext{
		Articles:           append([]models.NewsResult(nil), results...),
		VerificationStatus: status,
		Summary:            summarize(results, avg),
		ConfidenceScore:    int(math.Round(avg * 100)),
	}
}

func summarize(results []models.NewsResult, avg float64) string {
	var sources []string
	seen := make(map[string]struct{})
	for _, r := range results {
		if r.Source == "" {
			continue
		}
		if _, ok := seen[r.Source]; ok {
			continue
		}
		seen[r.Source] = struct{}{}
		sources = append(sources, r.Source)
		if len(sources) == 3 {
			break
		}
	}

	summary := fmt.Sprintf("Found %d related news articles with average relevance %d%%.", len(results), int(math.Round(avg*100)))
	if len(sources) > 0 {
		summary += " Sources include " + strings.Join(sources, ", ") + "."
	}
	return summary
}

// FormatForPrompt renders evidence as a block for inclusion in a model prompt.
func FormatForPrompt(ev models.EvidenceContext) string {
	var b strings.Builder
	b.WriteString("[Related News Coverage]\n")
	b.WriteString(ev.Summary)
	b.WriteString("\n")
	for i, a := range ev.Articles {
		fmt.Fprintf(&b, "%d. %s", i+1, a.Title)
		if a.Source != "" {
			fmt.Fprintf(&b, " (%s)", a.Source)
		}
		fmt.Fprintf(&b, " - relevance %d%%\n", int(math.Round(a.RelevanceScore*100)))
	}
	return b.String()
}

// plainText strips markup that news APIs leave in titles and descriptions.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}
