// Package pipeline runs the tiered misinformation analysis for a single post.
//
// Stages are tried in order: evidence-enhanced, model-only, rule-based. The
// first stage that succeeds produces the result. The rule-based stage needs
// neither the model nor the network, so Analyze always returns a result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MusheghMov/checkx/internal/evidence"
	"github.com/MusheghMov/checkx/internal/logger"
	"github.com/MusheghMov/checkx/internal/models"
	"github.com/MusheghMov/checkx/internal/rating"
	"github.com/MusheghMov/checkx/internal/response"
	"github.com/MusheghMov/checkx/internal/rules"
	"github.com/MusheghMov/checkx/internal/session"
)

// ErrNoEvidence means retrieval found nothing to ground the evidence stage on.
var ErrNoEvidence = errors.New("no related news evidence")

// DefaultPromptRetries is the number of extra prompt attempts per stage.
const DefaultPromptRetries = 1

// Model is the subset of the session manager the pipeline drives.
type Model interface {
	Initialize(ctx context.Context, force bool) bool
	ExecutePrompt(ctx context.Context, prompt string, retries int) (string, error)
}

// KeywordExtractor derives search terms from post content.
type KeywordExtractor interface {
	Extract(ctx context.Context, content string) []string
}

// EvidenceFetcher returns scored news results for keywords.
type EvidenceFetcher interface {
	Fetch(ctx context.Context, keywords []string) []models.NewsResult
}

// Recorder persists completed analyses.
type Recorder interface {
	SaveAnalysis(ctx context.Context, record models.AnalysisRecord) error
}

type stage struct {
	name string
	run  func(ctx context.Context, post models.PostRecord) (models.AnalysisResult, error)
}

// Orchestrator owns the ordered stage list and its collaborators.
type Orchestrator struct {
	model    Model
	keywords KeywordExtractor
	evidence EvidenceFetcher
	recorder Recorder
	retries  int
	now      func() time.Time
	log      *slog.Logger
	stages   []stage
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder hands every completed analysis to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithPromptRetries sets the extra attempts passed to the model per prompt.
func WithPromptRetries(n int) Option {
	return func(o *Orchestrator) { o.retries = max(0, n) }
}

// WithClock overrides the analysis timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds an orchestrator. Nil collaborators disable the stages that need them.
func New(model Model, kw KeywordExtractor, ev EvidenceFetcher, log *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		model:    model,
		keywords: kw,
		evidence: ev,
		retries:  DefaultPromptRetries,
		now:      time.Now,
		log:      logger.OrDiscard(log).With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.stages = []stage{
		{name: string(models.SourceEvidenceEnhanced), run: o.evidenceEnhanced},
		{name: string(models.SourceAI), run: o.modelOnly},
		{name: string(models.SourceRuleBased), run: o.ruleBased},
	}
	return o
}

// Analyze returns a verdict for post. It never fails.
func (o *Orchestrator) Analyze(ctx context.Context, post models.PostRecord) models.AnalysisResult {
	result := o.run(ctx, post)
	o.record(ctx, post, result)
	return result
}

func (o *Orchestrator) run(ctx context.Context, post models.PostRecord) models.AnalysisResult {
	for _, s := range o.stages {
		result, err := attempt(ctx, s, post)
		if err == nil {
			o.log.Debug("analysis complete",
				slog.String("post_id", post.ID),
				slog.String("source", string(result.Source)),
				slog.Int("confidence", result.Confidence))
			return result
		}
		o.log.Warn("analysis stage failed",
			slog.String("post_id", post.ID),
			slog.String("stage", s.name),
			slog.Any("err", err))
	}

	o.log.Error("all analysis stages failed", slog.String("post_id", post.ID))
	return o.exhausted()
}

func attempt(ctx context.Context, s stage, post models.PostRecord) (result models.AnalysisResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("stage %s panicked: %v", s.name, rec)
		}
	}()
	return s.run(ctx, post)
}

func (o *Orchestrator) evidenceEnhanced(ctx context.Context, post models.PostRecord) (models.AnalysisResult, error) {
	if err := o.ready(ctx); err != nil {
		return models.AnalysisResult{}, err
	}
	if o.keywords == nil || o.evidence == nil {
		return models.AnalysisResult{}, ErrNoEvidence
	}

	kws := o.keywords.Extract(ctx, post.Content)
	results := o.evidence.Fetch(ctx, kws)
	if len(results) == 0 {
		return models.AnalysisResult{}, ErrNoEvidence
	}
	ev := evidence.Classify(results)

	parsed, err := o.ask(ctx, post, EvidencePrompt(post, ev))
	if err != nil {
		return models.AnalysisResult{}, err
	}

	confidence, reasoning := rating.Fuse(parsed.Confidence, ev.VerificationStatus, parsed.Reasoning)
	return models.AnalysisResult{
		Confidence: confidence,
		Rating:     rating.For(confidence),
		Topics:     parsed.Topics,
		Reasoning:  reasoning,
		Timestamp:  o.now().UTC(),
		Source:     models.SourceEvidenceEnhanced,
		Evidence:   &ev,
	}, nil
}

func (o *Orchestrator) modelOnly(ctx context.Context, post models.PostRecord) (models.AnalysisResult, error) {
	if err := o.ready(ctx); err != nil {
		return models.AnalysisResult{}, err
	}

	parsed, err := o.ask(ctx, post, AnalysisPrompt(post))
	if err != nil {
		return models.AnalysisResult{}, err
	}

	return models.AnalysisResult{
		Confidence: parsed.Confidence,
		Rating:     rating.For(parsed.Confidence),
		Topics:     parsed.Topics,
		Reasoning:  parsed.Reasoning,
		Timestamp:  o.now().UTC(),
		Source:     models.SourceAI,
	}, nil
}

func (o *Orchestrator) ruleBased(_ context.Context, post models.PostRecord) (models.AnalysisResult, error) {
	v := rules.Analyze(post.Content)
	confidence := rating.Clamp(v.Confidence)
	return models.AnalysisResult{
		Confidence: confidence,
		Rating:     rating.For(confidence),
		Topics:     v.Topics,
		Reasoning:  v.Reasoning,
		Timestamp:  o.now().UTC(),
		Source:     models.SourceRuleBased,
	}, nil
}

func (o *Orchestrator) ready(ctx context.Context) error {
	if o.model == nil || !o.model.Initialize(ctx, false) {
		return session.ErrUnavailable
	}
	return nil
}

func (o *Orchestrator) ask(ctx context.Context, post models.PostRecord, prompt string) (response.Result, error) {
	raw, err := o.model.ExecutePrompt(ctx, prompt, o.retries)
	if err != nil {
		return response.Result{}, err
	}
	parsed := response.Parse(raw)
	if parsed.Degraded {
		o.log.Debug("model reply parsed by field extraction", slog.String("post_id", post.ID))
	}
	return parsed, nil
}

// exhausted is returned only if every stage, including the rule-based one, failed.
func (o *Orchestrator) exhausted() models.AnalysisResult {
	return models.AnalysisResult{
		Confidence: 0,
		Rating:     rating.For(0),
		Topics:     []string{},
		Reasoning:  "Analysis could not be completed",
		Timestamp:  o.now().UTC(),
		Source:     models.SourceRuleBased,
	}
}

func (o *Orchestrator) record(ctx context.Context, post models.PostRecord, result models.AnalysisResult) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.SaveAnalysis(ctx, models.NewAnalysisRecord(post, result)); err != nil {
		o.log.Warn("failed to store analysis", slog.String("post_id", post.ID), slog.Any("err", err))
	}
}
