package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/MusheghMov/checkx/internal/models"
)

var (
	urlRegex     = regexp.MustCompile(`https?://[^\s]+|www\.[^\s]+`)
	mentionRegex = regexp.MustCompile(`[@#][\p{L}\p{N}_]+`)
	whitespace   = regexp.MustCompile(`\s+`)
	punctuation  = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"being": {}, "have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {}, "might": {},
	"can": {}, "this": {}, "that": {}, "these": {}, "those": {}, "it": {}, "its": {},
	"they": {}, "them": {}, "their": {}, "we": {}, "you": {}, "your": {}, "our": {},
	"his": {}, "her": {}, "she": {}, "him": {}, "not": {}, "just": {}, "about": {},
	"what": {}, "which": {}, "who": {}, "when": {}, "where": {}, "why": {}, "how": {},
	"all": {}, "any": {}, "more": {}, "most": {}, "some": {}, "than": {}, "then": {},
	"there": {}, "here": {}, "into": {}, "out": {}, "over": {}, "very": {}, "now": {},
	"new": {}, "via": {}, "amp": {},
}

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// RemoveSocialMarkup removes URLs, @-mentions and hashtags.
func RemoveSocialMarkup(input string) string {
	return mentionRegex.ReplaceAllString(RemoveURLs(input), " ")
}

// CleanText strips HTML entities, social markup and punctuation and squeezes whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = RemoveSocialMarkup(decoded)
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// IsStopword reports whether the lowercase word carries no search value.
func IsStopword(word string) bool {
	_, ok := stopwords[word]
	return ok
}

// Tokens lowercases text and splits it into letter/number runs of at least minLen runes.
func Tokens(text string, minLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minLen {
			continue
		}
		out = append(out, f)
	}
	return out
}

// BuildDocumentID hashes the most stable post fields to form deterministic IDs.
func BuildDocumentID(author, content, timestamp string) string {
	s := sha1.Sum([]byte(author + "|" + content + "|" + timestamp))
	return hex.EncodeToString(s[:])
}

// PostID returns the post's own id, or derives one from its author, content
// and timestamp. Posts with neither author nor content get a random id.
func PostID(post models.PostRecord) string {
	if id := strings.TrimSpace(post.ID); id != "" {
		return id
	}
	if strings.TrimSpace(post.Content) == "" && strings.TrimSpace(post.Author) == "" {
		return uuid.NewString()
	}
	return BuildDocumentID(post.Author, post.Content, post.Timestamp)
}

// ParseTimestamp accepts the timestamp layouts social platforms commonly emit.
// It returns the zero time when nothing matches.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}
