package response

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	confidenceField = regexp.MustCompile(`(?i)confidence["']?\s*:\s*["']?(\d+)`)
	topicsField     = regexp.MustCompile(`(?is)topics["']?\s*:\s*\[(.*?)\]`)
	quotedValue     = regexp.MustCompile(`["']([^"']+)["']`)
	reasoningField  = regexp.MustCompile(`(?i)reasoning["']?\s*:\s*`)
)

var smartQuotes = strings.NewReplacer("\u201c", `"`, "\u201d", `"`, "\u2018", "'", "\u2019", "'")

var topicVocabulary = []string{
	"health",
	"politics",
	"technology",
	"climate",
	"economy",
	"science",
	"entertainment",
	"sports",
	"breaking news",
}

// fromFields recovers each field independently with pattern extraction.
func fromFields(raw string) (Result, bool) {
	raw = smartQuotes.Replace(raw)
	res := Result{
		Confidence: DefaultConfidence,
		Reasoning:  UnclearReasoning,
		Degraded:   true,
	}

	if v, ok := firstOf(raw, confidenceFromKey); ok {
		res.Confidence = v
	}
	if v, ok := firstOf(raw, topicsFromArray, topicsFromVocabulary); ok {
		res.Topics = v
	}
	if v, ok := firstOf(raw, reasoningFromKey); ok {
		res.Reasoning = v
	}
	return res, true
}

// firstOf runs extractors in order and returns the first value found.
// A panicking extractor counts as not found.
func firstOf[T any](raw string, extractors ...func(string) (T, bool)) (T, bool) {
	for _, extract := range extractors {
		if v, ok := safely(extract, raw); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func safely[T any](extract func(string) (T, bool), raw string) (v T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, ok = zero, false
		}
	}()
	return extract(raw)
}

func confidenceFromKey(raw string) (int, bool) {
	m := confidenceField.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// Digits that overflow int are still far above the scale.
		return 100, true
	}
	return n, true
}

func topicsFromArray(raw string) ([]string, bool) {
	m := topicsField.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	quoted := quotedValue.FindAllStringSubmatch(m[1], -1)
	if len(quoted) == 0 {
		return nil, false
	}
	topics := make([]string, 0, MaxTopics)
	for _, q := range quoted {
		topics = append(topics, q[1])
		if len(topics) == MaxTopics {
			break
		}
	}
	return topics, true
}

func topicsFromVocabulary(raw string) ([]string, bool) {
	lower := strings.ToLower(raw)
	topics := make([]string, 0, MaxTopics)
	for _, topic := range topicVocabulary {
		if strings.Contains(lower, topic) {
			topics = append(topics, topic)
			if len(topics) == MaxTopics {
				break
			}
		}
	}
	return topics, len(topics) > 0
}

// reasoningFromKey extracts the reasoning value even when it contains
// unescaped quotes. The closing quote is the last one that is followed by a
// comma, a closing brace, or nothing.
func reasoningFromKey(raw string) (string, bool) {
	loc := reasoningField.FindStringIndex(raw)
	if loc == nil {
		return "", false
	}
	rest := raw[loc[1]:]
	if rest == "" {
		return "", false
	}

	quote := rest[0]
	if quote != '"' && quote != '\'' {
		end := strings.IndexAny(rest, ",}")
		if end < 0 {
			end = len(rest)
		}
		value := strings.TrimSpace(rest[:end])
		return value, value != ""
	}

	var candidates []int
	for i := 1; i < len(rest); i++ {
		if rest[i] == quote {
			candidates = append(candidates, i)
		}
	}

	for i := len(candidates) - 1; i >= 0; i-- {
		end := candidates[i]
		after := strings.TrimSpace(rest[end+1:])
		if after == "" || after[0] == ',' || after[0] == '}' {
			value := strings.TrimSpace(rest[1:end])
			return value, value != ""
		}
	}

	if len(candidates) > 0 {
		value := strings.TrimSpace(rest[1:candidates[len(candidates)-1]])
		return value, value != ""
	}

	value := strings.TrimSpace(rest[1:])
	return value, value != ""
}
