// Package app assembles the analysis pipeline from configuration for the
// service binaries.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/MusheghMov/checkx/internal/cache"
	"github.com/MusheghMov/checkx/internal/config"
	"github.com/MusheghMov/checkx/internal/elasticsearch"
	"github.com/MusheghMov/checkx/internal/evidence"
	"github.com/MusheghMov/checkx/internal/keywords"
	"github.com/MusheghMov/checkx/internal/logger"
	"github.com/MusheghMov/checkx/internal/models"
	"github.com/MusheghMov/checkx/internal/pipeline"
	"github.com/MusheghMov/checkx/internal/session"
	"github.com/MusheghMov/checkx/internal/session/ollama"
)

// Pipeline is a wired orchestrator together with the session it drives.
type Pipeline struct {
	*pipeline.Orchestrator
	Manager *session.Manager
	log     *slog.Logger
}

// Deps are the collaborators NewPipeline cannot derive from configuration.
// Nil fields fall back to defaults: Ollama over a fresh HTTP client, no
// persistence and no Elasticsearch news index.
type Deps struct {
	Provider session.Provider
	Store    *elasticsearch.Client
	HTTP     *http.Client
	// ManualSave leaves persisting results to the caller.
	ManualSave bool
}

// NewPipeline wires session, keyword, evidence and persistence stages.
func NewPipeline(cfg config.Pipeline, deps Deps, log *slog.Logger) *Pipeline {
	log = logger.OrDiscard(log)
	client := deps.HTTP
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	provider := deps.Provider
	if provider == nil {
		provider = ollama.New(cfg.Model.Endpoint, cfg.Model.Name, client, log)
	}

	opts := session.DefaultOptions()
	opts.Temperature = cfg.Model.Temperature
	opts.TopK = cfg.Model.TopK
	opts.MaxTokens = cfg.Model.MaxTokens
	manager := session.NewManager(provider, opts, log)

	var results *cache.Cache[[]models.NewsResult]
	if cfg.News.CacheCapacity > 0 {
		results = cache.New[[]models.NewsResult](cfg.News.CacheCapacity, cfg.News.CacheTTL)
	}
	retriever := evidence.NewRetriever(newsSearcher(cfg.News, deps, log), cfg.News.MaxResults, results, log)

	options := []pipeline.Option{pipeline.WithPromptRetries(cfg.Model.PromptRetries)}
	if deps.Store != nil && !deps.ManualSave {
		options = append(options, pipeline.WithRecorder(deps.Store))
	}

	orchestrator := pipeline.New(
		manager,
		keywords.New(manager, cfg.Model.PromptRetries, log),
		retriever,
		log,
		options...,
	)

	return &Pipeline{Orchestrator: orchestrator, Manager: manager, log: log}
}

// Warm initializes the model session ahead of the first request. Failure is
// logged and left for lazy initialization.
func (p *Pipeline) Warm(ctx context.Context) {
	if p.Manager.Initialize(ctx, false) {
		p.log.Info("model session ready")
		return
	}
	p.log.Warn("model session not ready at startup, analyses fall back to rules until it is")
}

// IsReady reports whether a model session is live.
func (p *Pipeline) IsReady() bool {
	return p.Manager.IsReady()
}

// Close releases the model session.
func (p *Pipeline) Close() {
	p.Manager.Cleanup()
}

func newsSearcher(cfg config.News, deps Deps, log *slog.Logger) evidence.Searcher {
	switch cfg.Provider {
	case config.NewsProviderNewsData:
		return evidence.NewNewsData(evidence.NewsDataConfig{
			Endpoint:     cfg.Endpoint,
			APIKey:       cfg.APIKey,
			Language:     cfg.Language,
			RateInterval: cfg.RateInterval,
		}, deps.HTTP, log)
	case config.NewsProviderElasticsearch:
		if deps.Store != nil {
			return deps.Store.News(cfg.Index)
		}
	}
	return nil
}
