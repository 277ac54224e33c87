package elasticsearch

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ConnectOptions bounds the startup retry loop.
type ConnectOptions struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConnectOptions suits services started alongside Elasticsearch.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{Attempts: 10, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

// Connect creates a client and waits, with exponential backoff, until it answers a ping.
func Connect(ctx context.Context, addr, index string, log *slog.Logger, opts ConnectOptions) (*Client, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	delay := opts.InitialDelay

	var lastErr error
	for attempt := range opts.Attempts {
		client, err := New(addr, index, log)
		if err != nil {
			return nil, err
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = client.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			return client, nil
		}

		if attempt == opts.Attempts-1 {
			break
		}
		client.log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", lastErr),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", opts.Attempts),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay = min(delay*2, opts.MaxDelay)
	}

	return nil, fmt.Errorf("connect to elasticsearch after %d attempts: %w", opts.Attempts, lastErr)
}
