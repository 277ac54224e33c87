package session

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means the host exposes no usable model or no session could be created.
	ErrUnavailable = errors.New("model session unavailable")
	// ErrPromptFailed means every prompt attempt failed.
	ErrPromptFailed = errors.New("model prompt failed")
)

// Options configures a new model session.
type Options struct {
	SystemPrompt string
	Temperature  float64
	TopK         int
	MaxTokens    int
}

// Session is a live handle to a language model capable of single-shot prompting.
type Session interface {
	Prompt(ctx context.Context, text string) (string, error)
	Destroy() error
}

// Provider is the host capability that creates model sessions.
type Provider interface {
	Available(ctx context.Context) bool
	Create(ctx context.Context, opts Options) (Session, error)
}

// SystemPrompt is the fixed instruction every session is created with.
const SystemPrompt = `You are a misinformation detection expert. Your job is to analyze social media posts for potentially false, misleading, or unverified information.

Instructions:
1. Analyze the content for factual accuracy, misleading claims, and potential misinformation
2. Consider the context and any obvious satire or opinion content
3. Rate the probability of misinformation on a scale of 0-100%
4. Identify key topics and entities mentioned
5. Provide brief reasoning for your assessment

Response format:
{
  "confidence": [number 0-100],
  "topics": ["topic1", "topic2"],
  "reasoning": "Brief explanation of assessment"
}

Be objective and focus on factual accuracy rather than political opinions.`

// DefaultOptions biases the model toward reproducible judgments.
func DefaultOptions() Options {
	return Options{
		SystemPrompt: SystemPrompt,
		Temperature:  0.3,
		TopK:         10,
		MaxTokens:    512,
	}
}
