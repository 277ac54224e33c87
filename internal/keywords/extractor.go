// Package keywords derives news search terms from post text.
package keywords

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/MusheghMov/checkx/internal/logger"
	"github.com/MusheghMov/checkx/internal/processing"
)

const (
	// MaxKeywords bounds every extraction path.
	MaxKeywords = 5
	minRunes    = 3
)

var errNoKeywords = errors.New("model returned no usable keywords")

var arrayLiteral = regexp.MustCompile(`(?s)\[.*?\]`)

// Prompter executes a single prompt against a model.
type Prompter interface {
	ExecutePrompt(ctx context.Context, prompt string, retries int) (string, error)
}

// Extractor asks the model for search terms and falls back to Heuristic.
type Extractor struct {
	prompter Prompter
	retries  int
	log      *slog.Logger
}

// New creates an extractor. A nil prompter always uses the heuristic.
func New(prompter Prompter, retries int, log *slog.Logger) *Extractor {
	return &Extractor{prompter: prompter, retries: retries, log: logger.OrDiscard(log)}
}

// Extract returns up to MaxKeywords search terms for content.
func (e *Extractor) Extract(ctx context.Context, content string) []string {
	if strings.TrimSpace(content) == "" {
		return []string{}
	}
	if e.prompter != nil {
		kws, err := e.fromModel(ctx, content)
		if err == nil {
			return kws
		}
		e.log.Debug("keyword extraction fell back to heuristic", slog.Any("err", err))
	}
	return Heuristic(content)
}

func (e *Extractor) fromModel(ctx context.Context, content string) (kws []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			kws, err = nil, fmt.Errorf("keyword extraction panicked: %v", r)
		}
	}()

	raw, err := e.prompter.ExecutePrompt(ctx, buildPrompt(content), e.retries)
	if err != nil {
		return nil, err
	}
	return ParseModelKeywords(raw)
}

func buildPrompt(content string) string {
	return fmt.Sprintf(`Extract 3-5 key search terms from this social media post that would help find related news articles.
Focus on named people, places, organizations, events and specific claims.

Post: %q

Return ONLY a JSON array of strings, for example: ["term one", "term two", "term three"]`, content)
}

// ParseModelKeywords reads the first JSON array in raw and keeps string
// entries longer than two characters.
func ParseModelKeywords(raw string) ([]string, error) {
	literal := arrayLiteral.FindString(raw)
	if literal == "" {
		return nil, errNoKeywords
	}

	var items []any
	if err := json.Unmarshal([]byte(literal), &items); err != nil {
		return nil, fmt.Errorf("decode keyword array: %w", err)
	}

	out := make([]string, 0, MaxKeywords)
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if len([]rune(s)) < minRunes {
			continue
		}
		out = append(out, s)
		if len(out) == MaxKeywords {
			break
		}
	}
	if len(out) == 0 {
		return nil, errNoKeywords
	}
	return out, nil
}

// Heuristic extracts keywords without a model: URLs, mentions, hashtags and
// punctuation are stripped, stop-words dropped, and the first distinct words
// longer than two characters kept in order of appearance.
func Heuristic(content string) []string {
	out := make([]string, 0, MaxKeywords)
	seen := make(map[string]struct{}, MaxKeywords)
	for _, word := range strings.Fields(strings.ToLower(processing.CleanText(content))) {
		if len([]rune(word)) < minRunes || processing.IsStopword(word) {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}
