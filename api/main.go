package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/MusheghMov/checkx/internal/app"
	"github.com/MusheghMov/checkx/internal/config"
	"github.com/MusheghMov/checkx/internal/elasticsearch"
	"github.com/MusheghMov/checkx/internal/logger"
	"github.com/MusheghMov/checkx/internal/models"
	"github.com/MusheghMov/checkx/internal/processing"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.Connect(ctx, cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log, elasticsearch.DefaultConnectOptions())
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	if err := esClient.EnsureIndex(ctx); err != nil {
		log.Error("ensure analyses index", slog.Any("err", err))
		os.Exit(1)
	}

	pipe := app.NewPipeline(cfg.Pipeline, app.Deps{Store: esClient}, log)
	defer pipe.Close()
	pipe.Warm(ctx)

	srv := &server{log: log, cfg: cfg, store: esClient, analyzer: pipe, model: pipe}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

const maxBodyBytes = 1 << 20

type analyzer interface {
	Analyze(ctx context.Context, post models.PostRecord) models.AnalysisResult
}

type analysisStore interface {
	Health(ctx context.Context) error
	GetAnalysis(ctx context.Context, postID string) (*models.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, params elasticsearch.ListParams) (*elasticsearch.AnalysisPage, error)
	CountAnalyses(ctx context.Context, rating, source string) (int64, error)
	ClearAnalyses(ctx context.Context) (int64, error)
}

type readiness interface {
	IsReady() bool
}

type server struct {
	log      *slog.Logger
	cfg      *config.API
	store    analysisStore
	analyzer analyzer
	model    readiness
}

type errorResponse struct {
	Error string `json:"error"`
}

type batchRequest struct {
	Posts []models.PostRecord `json:"posts"`
}

type batchResponse struct {
	Items []models.AnalysisRecord `json:"items"`
}

type listResponse struct {
	Total int64                   `json:"total"`
	Items []models.AnalysisRecord `json:"items"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/analyze/batch", s.handleAnalyzeBatch)
	r.Get("/analyses", s.handleList)
	r.Delete("/analyses", s.handleClear)
	r.Get("/analyses/count", s.handleCount)
	r.Get("/analyses/{id}", s.handleGet)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	modelStatus := "unavailable"
	if s.model != nil && s.model.IsReady() {
		modelStatus = "ready"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "model": modelStatus})
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var post models.PostRecord
	if err := decodeBody(w, r, &post); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	post.ID = processing.PostID(post)
	result := s.analyzer.Analyze(r.Context(), post)
	writeJSON(w, http.StatusOK, models.NewAnalysisRecord(post, result))
}

func (s *server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if len(req.Posts) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "posts must not be empty"})
		return
	}
	if len(req.Posts) > s.cfg.BatchLimit {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("at most %d posts per batch", s.cfg.BatchLimit)})
		return
	}

	items := make([]models.AnalysisRecord, len(req.Posts))
	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, post := range req.Posts {
		post.ID = processing.PostID(post)
		g.Go(func() error {
			items[i] = models.NewAnalysisRecord(post, s.analyzer.Analyze(r.Context(), post))
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("batch analyzed", slog.Int("posts", len(items)))
	writeJSON(w, http.StatusOK, batchResponse{Items: items})
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rating, source, ok := filters(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, err := s.store.ListAnalyses(ctx, elasticsearch.ListParams{
		Rating: rating,
		Source: source,
		From:   clampInt(q.Get("from"), 0, 10_000),
		Size:   clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Total: page.Total, Items: page.Items})
}

func (s *server) handleCount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rating, source, ok := filters(w, r)
	if !ok {
		return
	}

	count, err := s.store.CountAnalyses(ctx, rating, source)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	deleted, err := s.store.ClearAnalyses(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.log.Info("analyses cleared", slog.Int64("deleted", deleted))
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := s.store.GetAnalysis(ctx, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, elasticsearch.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "analysis not found"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

// filters reads the optional rating and source query parameters and writes a
// 400 response when either is unknown.
func filters(w http.ResponseWriter, r *http.Request) (rating, source string, ok bool) {
	q := r.URL.Query()
	rating = strings.TrimSpace(q.Get("rating"))
	if rating != "" && !validRating(rating) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown rating " + strconv.Quote(rating)})
		return "", "", false
	}
	source = strings.TrimSpace(q.Get("source"))
	if source != "" && !validSource(source) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown source " + strconv.Quote(source)})
		return "", "", false
	}
	return rating, source, true
}

func validRating(raw string) bool {
	switch models.Rating(raw) {
	case models.RatingVerified, models.RatingQuestionable, models.RatingFalse, models.RatingNeedsReview:
		return true
	}
	return false
}

func validSource(raw string) bool {
	switch models.Source(raw) {
	case models.SourceAI, models.SourceRuleBased, models.SourceEvidenceEnhanced:
		return true
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
