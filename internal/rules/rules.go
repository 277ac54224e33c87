// Package rules scores posts with fixed keyword and pattern heuristics. It never
// calls a model or the network and is deterministic for identical input.
package rules

import (
	"regexp"
	"strings"

	"github.com/MusheghMov/checkx/internal/rating"
)

const (
	baseConfidence  = 10
	keywordWeight   = 15
	patternWeight   = 20
	emphasisWeight  = 10
	maxCapsRuns     = 2
	baseExplanation = "Analysis based on content patterns"
)

var misinformationKeywords = []string{
	"fake news",
	"hoax",
	"conspiracy",
	"debunked",
	"false claim",
	"unverified",
	"misleading",
	"manipulated",
	"doctored",
}

var sensationalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(breaking|urgent|exclusive).*!{2,}`),
	regexp.MustCompile(`(?i)\b(they don'?t want you to know|hidden truth|cover.?up)\b`),
	regexp.MustCompile(`(?i)\b(miracle cure|doctors hate|secret method)\b`),
	regexp.MustCompile(`(?i)\b(will shock you|you won'?t believe)\b`),
}

var (
	excessPunctuation = regexp.MustCompile(`!{2,}|\.{3,}|\?{2,}`)
	capsRun           = regexp.MustCompile(`\b[A-Z]{3,}\b`)
)

type topicRule struct {
	topic string
	terms []string
}

var topicRules = []topicRule{
	{topic: "health", terms: []string{"covid", "vaccine"}},
	{topic: "politics", terms: []string{"election", "vote"}},
	{topic: "climate", terms: []string{"climate", "weather"}},
}

// Verdict is the outcome of the heuristic scan.
type Verdict struct {
	Confidence int
	Topics     []string
	Reasoning  string
	Keywords   []string
}

// Analyze scores content. Empty content yields the base confidence.
func Analyze(content string) Verdict {
	lower := strings.ToLower(content)
	confidence := baseConfidence
	reasons := []string{baseExplanation}

	var hits []string
	for _, kw := range misinformationKeywords {
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	if len(hits) > 0 {
		confidence += len(hits) * keywordWeight
		reasons = append(reasons, "Contains potential misinformation keywords: "+strings.Join(hits, ", "))
	}

	patterns := 0
	for _, p := range sensationalPatterns {
		if p.MatchString(lower) {
			patterns++
		}
	}
	if patterns > 0 {
		confidence += patterns * patternWeight
		reasons = append(reasons, "Contains sensationalist language patterns")
	}

	// Capitalization is only visible before lowercasing.
	if excessPunctuation.MatchString(content) || len(capsRun.FindAllString(content, -1)) > maxCapsRuns {
		confidence += emphasisWeight
		reasons = append(reasons, "Contains excessive punctuation or capitalization")
	}

	topics := []string{}
	for _, rule := range topicRules {
		for _, term := range rule.terms {
			if strings.Contains(lower, term) {
				topics = append(topics, rule.topic)
				break
			}
		}
	}

	return Verdict{
		Confidence: rating.Clamp(confidence),
		Topics:     topics,
		Reasoning:  strings.Join(reasons, ". "),
		Keywords:   hits,
	}
}
