package evidence_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MusheghMov/checkx/internal/evidence"
)

func TestNewsDataSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "secret", q.Get("apikey"))
		require.Equal(t, "vaccine covid", q.Get("q"))
		require.Equal(t, "en", q.Get("language"))
		require.Equal(t, "2", q.Get("size"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       "success",
			"totalResults": 3,
			"results": []map[string]any{
				{"title": "One", "link": "https://a", "source_id": "bbc", "pubDate": "2024-01-01 10:00:00"},
				{"title": "Two", "source_id": "ap"},
				{"title": "Three", "source_id": "cnn"},
			},
		})
	}))
	defer srv.Close()

	n := evidence.NewNewsData(evidence.NewsDataConfig{Endpoint: srv.URL, APIKey: "secret"}, srv.Client(), nil)
	got, err := n.Search(context.Background(), "vaccine covid", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "One", got[0].Title)
	require.Equal(t, "bbc", got[0].SourceID)
	require.Equal(t, "2024-01-01 10:00:00", got[0].PubDate)
}

func TestNewsDataNotConfigured(t *testing.T) {
	n := evidence.NewNewsData(evidence.NewsDataConfig{}, nil, nil)
	_, err := n.Search(context.Background(), "anything", 5)
	require.ErrorIs(t, err, evidence.ErrNotConfigured)
}

func TestNewsDataFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "http error", handler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{name: "api error", handler: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"error","results":{"message":"bad key"}}`))
		}},
		{name: "bad json", handler: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			n := evidence.NewNewsData(evidence.NewsDataConfig{Endpoint: srv.URL, APIKey: "k"}, srv.Client(), nil)
			_, err := n.Search(context.Background(), "q", 5)
			require.Error(t, err)
		})
	}
}
