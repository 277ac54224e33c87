// Package rating maps confidence to verdicts and folds evidence into confidence.
package rating

import (
	"github.com/MusheghMov/checkx/internal/models"
)

const (
	verifiedAdjustment     = -15
	contradictedAdjustment = 25
)

// For maps a misinformation confidence to a rating. Each band includes its lower bound.
func For(confidence int) models.Rating {
	switch {
	case confidence >= 70:
		return models.RatingFalse
	case confidence >= 40:
		return models.RatingQuestionable
	case confidence >= 15:
		return models.RatingNeedsReview
	default:
		return models.RatingVerified
	}
}

// Clamp bounds confidence to [0,100].
func Clamp(confidence int) int {
	return max(0, min(100, confidence))
}

// Fuse adjusts model confidence once using the evidence verification status
// and appends a note explaining the adjustment to reasoning.
func Fuse(confidence int, status models.VerificationStatus, reasoning string) (int, string) {
	confidence = Clamp(confidence)

	var note string
	switch status {
	case models.StatusVerified:
		confidence = Clamp(confidence + verifiedAdjustment)
		note = "Related news coverage corroborates the topic, lowering the misinformation estimate."
	case models.StatusContradicted:
		confidence = Clamp(confidence + contradictedAdjustment)
		note = "Related news coverage contradicts the claim, raising the misinformation estimate."
	case models.StatusMixed:
		note = "News coverage is only partially related; confidence left unchanged."
	case models.StatusNoCoverage:
		note = "No closely related news coverage was found; confidence left unchanged."
	default:
		return confidence, reasoning
	}

	if reasoning == "" {
		return confidence, note
	}
	return confidence, reasoning + " " + note
}
