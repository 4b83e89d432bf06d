package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/suistream/service/metrics"
)

// NamedSink pairs a sink with the name used in logs and metrics.
type NamedSink[T any] struct {
	Name string
	Sink Sink[T]
}

// RunConfig controls the driver loop.
type RunConfig[T any] struct {
	Source Source[T]
	Sinks  []NamedSink[T]

	// MaxRecords stops the loop after this many records; zero means no limit.
	MaxRecords int

	Metrics *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger  *slog.Logger
}

// Run initializes the source and pulls records until ctx is cancelled,
// MaxRecords is reached, or the source or a sink fails. The source is always
// closed before Run returns. Cancellation is a clean stop and returns nil.
// Errors are not retried; callers decide what to do with them.
func Run[T any](ctx context.Context, cfg RunConfig[T]) (n int, err error) {
	if cfg.Source == nil {
		return 0, fmt.Errorf("source is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stream_runner")

	if err := cfg.Source.Init(ctx); err != nil {
		return 0, fmt.Errorf("failed to initialize source: %w", err)
	}
	defer func() {
		// The run context may already be cancelled; closing must still happen.
		if cerr := cfg.Source.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.ErrorContext(ctx, "failed to close source", "error", cerr)
			err = errors.Join(err, cerr)
		}
	}()

	logger.InfoContext(ctx, "stream started", "sinks", len(cfg.Sinks), "max_records", cfg.MaxRecords)

	for cfg.MaxRecords == 0 || n < cfg.MaxRecords {
		rec, err := cfg.Source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.InfoContext(ctx, "stream stopped", "records", n)
				return n, nil
			}
			return n, fmt.Errorf("source failed: %w", err)
		}
		if rec == nil {
			continue
		}

		for _, s := range cfg.Sinks {
			start := time.Now()
			werr := s.Sink.Write(ctx, rec)
			if cfg.Metrics != nil {
				cfg.Metrics.RecordSinkWrite(s.Name, time.Since(start).Seconds(), werr)
			}
			if werr != nil {
				logger.ErrorContext(ctx, "sink write failed", "sink", s.Name, "error", werr)
				return n, fmt.Errorf("sink %s failed: %w", s.Name, werr)
			}
		}
		n++
	}

	logger.InfoContext(ctx, "stream reached record limit", "records", n)
	return n, nil
}
