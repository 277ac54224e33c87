package pipeline

import (
	"fmt"
	"strings"

	"github.com/MusheghMov/checkx/internal/evidence"
	"github.com/MusheghMov/checkx/internal/models"
	"github.com/MusheghMov/checkx/internal/processing"
)

const replyFormat = `Provide your analysis in this exact JSON format:
{
  "confidence": [number from 0-100 representing probability this contains misinformation],
  "topics": ["topic1", "topic2", "topic3"],
  "reasoning": "Brief explanation of why you rated it this way"
}`

const considerations = `Consider:
- Factual accuracy and verifiability
- Presence of misleading claims or context
- Source credibility indicators
- Obvious satire or opinion vs. presented facts
- Potential harm from false information

Be objective and precise in your assessment.`

// AnalysisPrompt asks the model to judge a post on its own.
func AnalysisPrompt(post models.PostRecord) string {
	var b strings.Builder
	b.WriteString("Analyze this post for misinformation:\n\n")
	writePost(&b, post)
	b.WriteString("\n")
	b.WriteString(replyFormat)
	b.WriteString("\n\n")
	b.WriteString(considerations)
	return b.String()
}

// EvidencePrompt asks the model to judge a post against retrieved news coverage.
func EvidencePrompt(post models.PostRecord, ev models.EvidenceContext) string {
	var b strings.Builder
	b.WriteString("Analyze this post for misinformation using the related news coverage below.\n\n")
	writePost(&b, post)
	b.WriteString("\n")
	b.WriteString(evidence.FormatForPrompt(ev))
	b.WriteString("\nWeigh whether the coverage supports, contradicts or does not address the post's claims.\n\n")
	b.WriteString(replyFormat)
	b.WriteString("\n\n")
	b.WriteString(considerations)
	return b.String()
}

func writePost(b *strings.Builder, post models.PostRecord) {
	fmt.Fprintf(b, "Content: %q\n", post.Content)
	fmt.Fprintf(b, "Author: %s\n", post.Author)
	fmt.Fprintf(b, "Posted: %s\n", postedDate(post.Timestamp))
}

func postedDate(raw string) string {
	ts := processing.ParseTimestamp(raw)
	if ts.IsZero() {
		return "unknown date"
	}
	return ts.Format("1/2/2006")
}
