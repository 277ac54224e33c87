package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/MusheghMov/checkx/internal/cache"
	"github.com/MusheghMov/checkx/internal/models"
)

type stubAnalyzer struct {
	posts []models.PostRecord
}

func (s *stubAnalyzer) Analyze(_ context.Context, post models.PostRecord) models.AnalysisResult {
	s.posts = append(s.posts, post)
	return models.AnalysisResult{
		Confidence: 25,
		Rating:     models.RatingNeedsReview,
		Topics:     []string{},
		Reasoning:  "Analysis based on content patterns",
		Timestamp:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Source:     models.SourceRuleBased,
	}
}

type stubSaver struct {
	records []models.AnalysisRecord
	err     error
}

func (s *stubSaver) SaveAnalysis(_ context.Context, rec models.AnalysisRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

type fakeReader struct {
	queue     []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.queue) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := f.queue[0]
	f.queue = f.queue[1:]
	return msg, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

type fakeWriter struct {
	failures int
	written  []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.written = append(f.written, msgs...)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProcessor(an analyzer, saver analysisSaver) *processor {
	return &processor{log: discard(), analyzer: an, store: saver, seen: cache.New[struct{}](100, time.Hour)}
}

func message(t *testing.T, offset int64, post models.PostRecord) kafka.Message {
	t.Helper()
	data, err := json.Marshal(post)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: data}
}

func TestProcessStoresAnalysis(t *testing.T) {
	an := &stubAnalyzer{}
	saver := &stubSaver{}
	p := newProcessor(an, saver)

	post := models.PostRecord{ID: "p1", Content: "Breaking news", Author: "@a", Timestamp: "2024-01-01T00:00:00Z", URL: "https://x/p1"}
	require.NoError(t, p.process(context.Background(), message(t, 1, post)))

	require.Len(t, saver.records, 1)
	rec := saver.records[0]
	require.Equal(t, "p1", rec.PostID)
	require.Equal(t, "Breaking news", rec.Content)
	require.Equal(t, models.RatingNeedsReview, rec.Rating)
	require.Equal(t, models.SourceRuleBased, rec.Source)

	// Seen posts are skipped.
	require.NoError(t, p.process(context.Background(), message(t, 2, post)))
	require.Len(t, an.posts, 1)
	require.Len(t, saver.records, 1)
}

func TestProcessDerivesMissingID(t *testing.T) {
	an := &stubAnalyzer{}
	saver := &stubSaver{}
	p := newProcessor(an, saver)

	post := models.PostRecord{Content: "No id", Author: "@a", Timestamp: "2024-01-01T00:00:00Z"}
	require.NoError(t, p.process(context.Background(), message(t, 1, post)))
	require.NoError(t, p.process(context.Background(), message(t, 2, post)))

	require.Len(t, saver.records, 1)
	require.NotEmpty(t, saver.records[0].PostID)
}

func TestProcessFailures(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
		saver *stubSaver
	}{
		{name: "bad json", value: []byte(`{"content":`), saver: &stubSaver{}},
		{name: "empty post", value: []byte(`{"author":"@a"}`), saver: &stubSaver{}},
		{name: "store failure", value: []byte(`{"id":"p1","content":"x"}`), saver: &stubSaver{err: errors.New("es down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProcessor(&stubAnalyzer{}, tt.saver)
			require.Error(t, p.process(context.Background(), kafka.Message{Value: tt.value}))
		})
	}
}

func TestStoreFailureIsRetriedOnRedelivery(t *testing.T) {
	saver := &stubSaver{err: errors.New("es down")}
	p := newProcessor(&stubAnalyzer{}, saver)
	msg := message(t, 1, models.PostRecord{ID: "p1", Content: "x"})

	require.Error(t, p.process(context.Background(), msg))
	saver.err = nil
	require.NoError(t, p.process(context.Background(), msg))
	require.Len(t, saver.records, 1)
}

func TestRunCommitsProcessedAndDeadLettered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		queue: []kafka.Message{
			message(t, 10, models.PostRecord{ID: "a", Content: "first"}),
			{Offset: 11, Value: []byte("not json")},
			message(t, 12, models.PostRecord{ID: "b", Content: "second"}),
		},
	}
	writer := &fakeWriter{failures: 1}
	saver := &stubSaver{}
	dlq := &deadLetters{log: discard(), writer: writer, attempts: 3, backoff: time.Millisecond}

	run(ctx, discard(), reader, newProcessor(&stubAnalyzer{}, saver), dlq)

	require.Equal(t, []int64{10, 11, 12}, reader.committed)
	require.Len(t, saver.records, 2)
	require.Len(t, writer.written, 1)

	headers := map[string]string{}
	for _, h := range writer.written[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "11", headers["original_offset"])
	require.Contains(t, headers["error"], "decode post")
}

func TestRunSkipsCommitWhenDLQFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		queue:  []kafka.Message{{Offset: 5, Value: []byte("not json")}},
	}
	writer := &fakeWriter{failures: 10}
	dlq := &deadLetters{log: discard(), writer: writer, attempts: 2, backoff: time.Millisecond}

	run(ctx, discard(), reader, newProcessor(&stubAnalyzer{}, &stubSaver{}), dlq)

	require.Empty(t, reader.committed)
	require.Empty(t, writer.written)
}
