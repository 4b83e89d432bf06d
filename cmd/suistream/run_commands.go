package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/suistream/service/config"
	"github.com/brojonat/suistream/service/db"
	"github.com/brojonat/suistream/service/metrics"
	natspkg "github.com/brojonat/suistream/service/nats"
	redispkg "github.com/brojonat/suistream/service/redis"
	"github.com/brojonat/suistream/service/source"
	"github.com/brojonat/suistream/service/stream"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Poll the Sui ledger and deliver events to the configured sinks",
		Description: `Run the connector until interrupted.

Sinks are enabled by configuration: NATS_URL publishes to JetStream,
DATABASE_URL stores events in Postgres and REDIS_URL appends to a Redis
stream. With no sink configured, or with --stdout, events are printed as
JSON lines.

Example:
  POLL_INTERVAL_MS=500 EMIT_MODE=all suistream run --stdout`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stdout",
				Usage: "Also print events to stdout",
			},
			&cli.IntFlag{
				Name:  "max-records",
				Usage: "Stop after this many events (0 means run until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := setupLogger(cfg.LogLevel)
			runID := uuid.NewString()
			logger = logger.With("run_id", runID)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runPipeline(ctx, cfg, runOptions{
				runID:      runID,
				stdout:     c.Bool("stdout"),
				maxRecords: c.Int("max-records"),
			}, logger)
		},
	}
}

type runOptions struct {
	runID      string
	stdout     bool
	maxRecords int
}

func runPipeline(ctx context.Context, cfg *config.Config, opts runOptions, logger *slog.Logger) error {
	logger.Info("starting suistream",
		"endpoint", cfg.SuiRPCURL,
		"interval", cfg.PollInterval,
		"max_transactions", cfg.MaxTransactions,
		"emit_mode", cfg.EmitMode,
		"log_level", cfg.LogLevel,
	)

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	src, err := source.New(source.Config{
		Endpoint:        cfg.SuiRPCURL,
		Interval:        cfg.PollInterval,
		MaxTransactions: cfg.MaxTransactions,
		EmitMode:        cfg.EmitMode,
		ResetOnClose:    cfg.ResetOnClose,
		Metrics:         metricsCollector,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	sinks, err := buildSinks(ctx, cfg, opts, metricsCollector, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Sink.Close(); err != nil {
				logger.Error("failed to close sink", "sink", s.Name, "error", err)
			}
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// Start metrics HTTP server
	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.Handler(),
		}
		g.Go(func() error {
			logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown metrics server", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		// Stopping the pipeline stops the metrics server too.
		defer cancel()
		n, err := stream.Run(gctx, stream.RunConfig[source.Event]{
			Source:     src,
			Sinks:      sinks,
			MaxRecords: opts.maxRecords,
			Metrics:    metricsCollector,
			Logger:     logger,
		})
		logger.Info("pipeline stopped", "records", n)
		return err
	})

	return g.Wait()
}

// buildSinks connects every configured sink. On failure the sinks already
// connected are closed.
func buildSinks(ctx context.Context, cfg *config.Config, opts runOptions, m *metrics.Metrics, logger *slog.Logger) (sinks []stream.NamedSink[source.Event], err error) {
	defer func() {
		if err != nil {
			for _, s := range sinks {
				_ = s.Sink.Close()
			}
			sinks = nil
		}
	}()

	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, m, logger)
		if err != nil {
			return sinks, fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		sinks = append(sinks, stream.NamedSink[source.Event]{Name: "nats", Sink: natspkg.NewSink(publisher, opts.runID)})
	}

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return sinks, err
		}
		store := db.NewStore(pool, m, logger)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return sinks, err
		}
		logger.Info("connected to database")
		sinks = append(sinks, stream.NamedSink[source.Event]{Name: "postgres", Sink: db.NewSink(store, opts.runID)})
	}

	if cfg.RedisURL != "" {
		rdb, err := redispkg.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return sinks, err
		}
		logger.Info("connected to redis", "stream", cfg.RedisStream)
		sinks = append(sinks, stream.NamedSink[source.Event]{
			Name: "redis",
			Sink: redispkg.NewStreamSink(rdb, cfg.RedisStream, cfg.RedisMaxLen, opts.runID, logger),
		})
	}

	if opts.stdout || len(sinks) == 0 {
		if len(sinks) == 0 {
			logger.Info("no sinks configured, printing events to stdout")
		}
		sinks = append(sinks, stream.NamedSink[source.Event]{Name: "stdout", Sink: printSink(os.Stdout, true)})
	}

	return sinks, nil
}
