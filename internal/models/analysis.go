package models

import "time"

// Rating is the discrete verdict derived from confidence.
type Rating string

const (
	RatingVerified     Rating = "verified"
	RatingQuestionable Rating = "questionable"
	RatingFalse        Rating = "false"
	RatingNeedsReview  Rating = "needs_review"
)

// Source records which tier produced an analysis.
type Source string

const (
	SourceAI               Source = "ai"
	SourceRuleBased        Source = "rule_based"
	SourceEvidenceEnhanced Source = "evidence_enhanced"
)

// VerificationStatus summarizes how retrieved news relates to a post.
type VerificationStatus string

const (
	StatusVerified     VerificationStatus = "verified"
	StatusContradicted VerificationStatus = "contradicted"
	StatusNoCoverage   VerificationStatus = "no_coverage"
	StatusMixed        VerificationStatus = "mixed"
)

// NewsResult is a scored article used as evidence.
type NewsResult struct {
	Title          string  `json:"title"`
	Source         string  `json:"source"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// EvidenceContext is attached to an analysis when retrieval found articles.
type EvidenceContext struct {
	Articles           []NewsResult       `json:"articles"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	Summary            string             `json:"summary"`
	ConfidenceScore    int                `json:"confidenceScore"`
}

// AnalysisResult is the verdict returned for a single post.
type AnalysisResult struct {
	Confidence int              `json:"confidence"`
	Rating     Rating           `json:"rating"`
	Topics     []string         `json:"topics"`
	Reasoning  string           `json:"reasoning"`
	Timestamp  time.Time        `json:"timestamp"`
	Source     Source           `json:"source"`
	Evidence   *EvidenceContext `json:"evidence,omitempty"`
}

// AnalysisRecord is the stored form of a completed analysis.
type AnalysisRecord struct {
	PostID            string           `json:"post_id"`
	Content           string           `json:"content"`
	Author            string           `json:"author"`
	PostTimestamp     string           `json:"post_timestamp"`
	URL               string           `json:"url"`
	Confidence        int              `json:"confidence"`
	Rating            Rating           `json:"rating"`
	Topics            []string         `json:"topics"`
	Reasoning         string           `json:"reasoning"`
	Source            Source           `json:"source"`
	AnalysisTimestamp time.Time        `json:"analysis_timestamp"`
	Evidence          *EvidenceContext `json:"evidence,omitempty"`
}

// NewAnalysisRecord flattens a post and its analysis for persistence.
func NewAnalysisRecord(post PostRecord, result AnalysisResult) AnalysisRecord {
	topics := make([]string, len(result.Topics))
	copy(topics, result.Topics)
	return AnalysisRecord{
		PostID:            post.ID,
		Content:           post.Content,
		Author:            post.Author,
		PostTimestamp:     post.Timestamp,
		URL:               post.URL,
		Confidence:        result.Confidence,
		Rating:            result.Rating,
		Topics:            topics,
		Reasoning:         result.Reasoning,
		Source:            result.Source,
		AnalysisTimestamp: result.Timestamp,
		Evidence:          result.Evidence,
	}
}
