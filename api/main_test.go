package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MusheghMov/checkx/internal/config"
	"github.com/MusheghMov/checkx/internal/elasticsearch"
	"github.com/MusheghMov/checkx/internal/models"
)

type stubAnalyzer struct {
	mu    sync.Mutex
	posts []models.PostRecord
}

func (s *stubAnalyzer) Analyze(_ context.Context, post models.PostRecord) models.AnalysisResult {
	s.mu.Lock()
	s.posts = append(s.posts, post)
	s.mu.Unlock()
	return models.AnalysisResult{
		Confidence: 72,
		Rating:     models.RatingFalse,
		Topics:     []string{"health"},
		Reasoning:  "analysis of " + post.Content,
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Source:     models.SourceAI,
	}
}

type stubStore struct {
	healthErr  error
	records    map[string]models.AnalysisRecord
	listErr    error
	lastParams elasticsearch.ListParams
}

func (s *stubStore) Health(context.Context) error { return s.healthErr }

func (s *stubStore) CountAnalyses(_ context.Context, rating, _ string) (int64, error) {
	var n int64
	for _, rec := range s.records {
		if rating == "" || string(rec.Rating) == rating {
			n++
		}
	}
	return n, nil
}

func (s *stubStore) ClearAnalyses(context.Context) (int64, error) {
	n := int64(len(s.records))
	s.records = map[string]models.AnalysisRecord{}
	return n, nil
}

func (s *stubStore) GetAnalysis(_ context.Context, id string) (*models.AnalysisRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, elasticsearch.ErrNotFound
	}
	return &rec, nil
}

func (s *stubStore) ListAnalyses(_ context.Context, params elasticsearch.ListParams) (*elasticsearch.AnalysisPage, error) {
	s.lastParams = params
	if s.listErr != nil {
		return nil, s.listErr
	}
	items := make([]models.AnalysisRecord, 0, len(s.records))
	for _, rec := range s.records {
		items = append(items, rec)
	}
	return &elasticsearch.AnalysisPage{Total: int64(len(items)), Items: items}, nil
}

type stubReady bool

func (r stubReady) IsReady() bool { return bool(r) }

func newTestServer(store *stubStore, an *stubAnalyzer) http.Handler {
	s := &server{
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg: &config.API{
			DefaultPage:      20,
			MaxPage:          50,
			BatchLimit:       3,
			BatchConcurrency: 2,
		},
		store:    store,
		analyzer: an,
		model:    stubReady(true),
	}
	return s.routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(&stubStore{}, &stubAnalyzer{})
	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","model":"ready"}`, rec.Body.String())

	h = newTestServer(&stubStore{healthErr: errors.New("red")}, &stubAnalyzer{})
	rec = do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAnalyze(t *testing.T) {
	an := &stubAnalyzer{}
	h := newTestServer(&stubStore{}, an)

	rec := do(t, h, http.MethodPost, "/analyze", `{"id":"p9","content":"Miracle cure","author":"@x","timestamp":"2024-02-02T00:00:00Z","url":"https://x/p9"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.AnalysisRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "p9", got.PostID)
	require.Equal(t, models.RatingFalse, got.Rating)
	require.Equal(t, "analysis of Miracle cure", got.Reasoning)
	require.Equal(t, "https://x/p9", got.URL)
}

func TestAnalyzeAssignsMissingID(t *testing.T) {
	an := &stubAnalyzer{}
	h := newTestServer(&stubStore{}, an)

	rec := do(t, h, http.MethodPost, "/analyze", `{"content":"No id here","author":"@x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, an.posts, 1)
	require.NotEmpty(t, an.posts[0].ID)
}

func TestAnalyzeRejectsBadJSON(t *testing.T) {
	h := newTestServer(&stubStore{}, &stubAnalyzer{})
	rec := do(t, h, http.MethodPost, "/analyze", `{"content":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid request body")
}

func TestAnalyzeBatch(t *testing.T) {
	an := &stubAnalyzer{}
	h := newTestServer(&stubStore{}, an)

	body := `{"posts":[{"id":"a","content":"one"},{"id":"b","content":"two"},{"id":"c","content":"three"}]}`
	rec := do(t, h, http.MethodPost, "/analyze/batch", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var got batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Items, 3)
	for i, id := range []string{"a", "b", "c"} {
		require.Equal(t, id, got.Items[i].PostID)
	}
	require.Len(t, an.posts, 3)
}

func TestAnalyzeBatchLimits(t *testing.T) {
	h := newTestServer(&stubStore{}, &stubAnalyzer{})

	rec := do(t, h, http.MethodPost, "/analyze/batch", `{"posts":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var buf bytes.Buffer
	buf.WriteString(`{"posts":[`)
	for i := range 4 {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString(`{"content":"x"}`)
	}
	buf.WriteString(`]}`)
	rec = do(t, h, http.MethodPost, "/analyze/batch", buf.String())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "at most 3 posts")
}

func TestListAnalyses(t *testing.T) {
	store := &stubStore{records: map[string]models.AnalysisRecord{"a": {PostID: "a", Rating: models.RatingFalse}}}
	h := newTestServer(store, &stubAnalyzer{})

	rec := do(t, h, http.MethodGet, "/analyses?rating=false&source=ai&from=10&size=500", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, elasticsearch.ListParams{Rating: "false", Source: "ai", From: 10, Size: 50}, store.lastParams)

	var got listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.EqualValues(t, 1, got.Total)
	require.Equal(t, "a", got.Items[0].PostID)

	rec = do(t, h, http.MethodGet, "/analyses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, elasticsearch.ListParams{From: 0, Size: 20}, store.lastParams)
}

func TestListAnalysesValidation(t *testing.T) {
	h := newTestServer(&stubStore{}, &stubAnalyzer{})

	rec := do(t, h, http.MethodGet, "/analyses?rating=maybe", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/analyses?source=oracle", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAnalysesStoreError(t *testing.T) {
	h := newTestServer(&stubStore{listErr: errors.New("boom")}, &stubAnalyzer{})
	rec := do(t, h, http.MethodGet, "/analyses", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetAnalysis(t *testing.T) {
	store := &stubStore{records: map[string]models.AnalysisRecord{"a": {PostID: "a", Confidence: 12}}}
	h := newTestServer(store, &stubAnalyzer{})

	rec := do(t, h, http.MethodGet, "/analyses/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.AnalysisRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 12, got.Confidence)

	rec = do(t, h, http.MethodGet, "/analyses/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCountAndClear(t *testing.T) {
	store := &stubStore{records: map[string]models.AnalysisRecord{
		"a": {PostID: "a", Rating: models.RatingFalse},
		"b": {PostID: "b", Rating: models.RatingVerified},
	}}
	h := newTestServer(store, &stubAnalyzer{})

	rec := do(t, h, http.MethodGet, "/analyses/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"count":2}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/analyses/count?rating=false", "")
	require.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/analyses/count?rating=bogus", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/analyses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"deleted":2}`, rec.Body.String())
	require.Empty(t, store.records)
}

func TestClampInt(t *testing.T) {
	tests := []struct {
		raw      string
		fallback int
		max      int
		want     int
	}{
		{raw: "", fallback: 20, max: 50, want: 20},
		{raw: "abc", fallback: 20, max: 50, want: 20},
		{raw: "-1", fallback: 20, max: 50, want: 20},
		{raw: "30", fallback: 20, max: 50, want: 30},
		{raw: "99", fallback: 20, max: 50, want: 50},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, clampInt(tt.raw, tt.fallback, tt.max), tt.raw)
	}
}
