// Package response turns free-form model output into a validated verdict.
//
// Model output is untrusted: it is supposed to hold one JSON object but often
// carries smart quotes, unescaped inner quotes or trailing prose. Parse tries
// an ordered list of strategies and never fails; fields that cannot be
// recovered fall back to defaults.
package response

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultConfidence = 50
	DefaultReasoning  = "AI analysis completed"
	// UnclearReasoning replaces reasoning that field extraction could not recover.
	UnclearReasoning = "Analysis completed but format unclear"
	MaxTopics        = 3
)

// Result is the validated content of a model reply.
type Result struct {
	Confidence int
	Topics     []string
	Reasoning  string
	// Degraded is set when the reply was not a valid JSON object and fields
	// were recovered by pattern extraction.
	Degraded bool
}

type strategy func(raw string) (Result, bool)

var strategies = []strategy{
	fromJSONObject,
	fromFields,
}

// Parse extracts confidence, topics and reasoning from raw model output.
func Parse(raw string) Result {
	for _, s := range strategies {
		if res, ok := attempt(s, raw); ok {
			return normalize(res)
		}
	}
	return normalize(Result{Confidence: DefaultConfidence, Reasoning: UnclearReasoning, Degraded: true})
}

func attempt(s strategy, raw string) (res Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			res, ok = Result{}, false
		}
	}()
	return s(raw)
}

var jsonObject = regexp.MustCompile(`(?s)\{.*?\}`)

func fromJSONObject(raw string) (Result, bool) {
	block := jsonObject.FindString(raw)
	if block == "" {
		return Result{}, false
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(block), &fields); err != nil {
		return Result{}, false
	}

	confidence, ok := coerceConfidence(fields["confidence"])
	if !ok {
		return Result{}, false
	}
	topics, ok := coerceTopics(fields["topics"])
	if !ok {
		return Result{}, false
	}
	reasoning, ok := coerceReasoning(fields["reasoning"])
	if !ok {
		return Result{}, false
	}

	return Result{Confidence: confidence, Topics: topics, Reasoning: reasoning}, true
}

func coerceConfidence(v any) (int, bool) {
	switch c := v.(type) {
	case nil:
		return DefaultConfidence, true
	case float64:
		return int(math.Round(c)), true
	case bool:
		if c {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(c), "%")), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int(math.Round(f)), true
	default:
		return 0, false
	}
}

func coerceTopics(v any) ([]string, bool) {
	if v == nil {
		return []string{}, true
	}
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	topics := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		topics = append(topics, s)
	}
	return topics, true
}

func coerceReasoning(v any) (string, bool) {
	if v == nil {
		return DefaultReasoning, true
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func normalize(r Result) Result {
	r.Confidence = clamp(r.Confidence)

	topics := make([]string, 0, MaxTopics)
	for _, t := range r.Topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		topics = append(topics, t)
		if len(topics) == MaxTopics {
			break
		}
	}
	r.Topics = topics

	r.Reasoning = strings.TrimSpace(r.Reasoning)
	if r.Reasoning == "" {
		r.Reasoning = DefaultReasoning
	}
	return r
}

func clamp(v int) int {
	return max(0, min(100, v))
}
