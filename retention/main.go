package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MusheghMov/checkx/internal/config"
	"github.com/MusheghMov/checkx/internal/elasticsearch"
	"github.com/MusheghMov/checkx/internal/logger"
)

const sweepTimeout = 2 * time.Minute

type pruner interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// janitor prunes stored analyses whose analysis timestamp is older than maxAge.
type janitor struct {
	log       *slog.Logger
	store     pruner
	maxAge    time.Duration
	batchSize int
}

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := elasticsearch.Connect(ctx, cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log, elasticsearch.DefaultConnectOptions())
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("failed to connect to elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	j := &janitor{log: log, store: store, maxAge: cfg.MaxAge, batchSize: cfg.BatchSize}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.String("index", cfg.ElasticsearchIndex),
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)
	j.run(ctx, ticker.C)
	log.Info("retention job stopped")
}

// run sweeps once immediately and then on every tick until ctx is done.
func (j *janitor) run(ctx context.Context, ticks <-chan time.Time) {
	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			j.sweep(ctx)
		}
	}
}

// sweep reports how many analyses were removed. Failures are logged and left
// for the next tick.
func (j *janitor) sweep(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	started := time.Now()
	deleted, err := j.store.DeleteOlderThan(ctx, j.maxAge, j.batchSize)
	if err != nil {
		j.log.Warn("analysis sweep failed", slog.Any("err", err), slog.Int64("deleted", deleted))
		return deleted
	}

	if deleted == 0 {
		j.log.Debug("no expired analyses")
		return 0
	}
	j.log.Info("expired analyses pruned",
		slog.Int64("deleted", deleted),
		slog.Duration("took", time.Since(started)),
	)
	return deleted
}
