package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/MusheghMov/checkx/internal/app"
	"github.com/MusheghMov/checkx/internal/cache"
	"github.com/MusheghMov/checkx/internal/config"
	"github.com/MusheghMov/checkx/internal/elasticsearch"
	"github.com/MusheghMov/checkx/internal/logger"
	"github.com/MusheghMov/checkx/internal/models"
	"github.com/MusheghMov/checkx/internal/processing"
)

var errEmptyPost = errors.New("post has neither id nor content")

type analyzer interface {
	Analyze(ctx context.Context, post models.PostRecord) models.AnalysisResult
}

type analysisSaver interface {
	SaveAnalysis(ctx context.Context, rec models.AnalysisRecord) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
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

	pipe := app.NewPipeline(cfg.Pipeline, app.Deps{Store: esClient, ManualSave: true}, log)
	defer pipe.Close()
	pipe.Warm(ctx)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqWriter := &kafka.Writer{
		Addr:        kafka.TCP(cfg.KafkaBrokers...),
		Topic:       cfg.DLQTopic,
		Balancer:    &kafka.LeastBytes{},
		MaxAttempts: 3,
	}
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.DLQTopic),
	)

	p := &processor{
		log:      log,
		analyzer: pipe,
		store:    esClient,
		seen:     cache.New[struct{}](cfg.DedupeCapacity, cfg.DedupeTTL),
	}
	dlq := &deadLetters{log: log, writer: dlqWriter, attempts: 5, backoff: time.Second}

	run(ctx, log, reader, p, dlq)
}

// run consumes until ctx is canceled. A message is committed once it is
// analyzed and stored, or once it has been parked on the DLQ.
func run(ctx context.Context, log *slog.Logger, reader messageReader, p *processor, dlq *deadLetters) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := p.process(ctx, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			// Without a DLQ copy the offset stays uncommitted and is redelivered after a restart.
			if !dlq.send(ctx, msg, err) {
				if ctx.Err() != nil {
					return
				}
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

type processor struct {
	log      *slog.Logger
	analyzer analyzer
	store    analysisSaver
	seen     *cache.Cache[struct{}]
}

func (p *processor) process(ctx context.Context, msg kafka.Message) error {
	var post models.PostRecord
	if err := json.Unmarshal(msg.Value, &post); err != nil {
		return fmt.Errorf("decode post: %w", err)
	}
	if strings.TrimSpace(post.ID) == "" && strings.TrimSpace(post.Content) == "" {
		return errEmptyPost
	}

	post.ID = processing.PostID(post)
	if p.seen.Contains(post.ID) {
		p.log.Debug("duplicate post", slog.String("post_id", post.ID))
		return nil
	}

	result := p.analyzer.Analyze(ctx, post)
	if err := p.store.SaveAnalysis(ctx, models.NewAnalysisRecord(post, result)); err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}

	p.seen.Put(post.ID, struct{}{})
	p.log.Info("analyzed post",
		slog.String("post_id", post.ID),
		slog.String("rating", string(result.Rating)),
		slog.String("source", string(result.Source)),
		slog.Int("confidence", result.Confidence),
	)
	return nil
}

type deadLetters struct {
	log      *slog.Logger
	writer   messageWriter
	attempts int
	backoff  time.Duration
}

// send copies msg to the DLQ with exponential backoff between attempts and
// reports whether it was written.
func (d *deadLetters) send(ctx context.Context, msg kafka.Message, cause error) bool {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)
	dlqMsg := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}

	for attempt := range d.attempts {
		err := d.writer.WriteMessages(ctx, dlqMsg)
		if err == nil {
			d.log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := d.backoff * time.Duration(1<<uint(attempt))
		d.log.Warn("DLQ write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			d.log.Info("context canceled during DLQ retry")
			return false
		}
	}

	d.log.Error("DLQ write exhausted retries, leaving message uncommitted",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}
