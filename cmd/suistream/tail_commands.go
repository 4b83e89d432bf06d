package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/brojonat/suistream/service/source"
	"github.com/brojonat/suistream/service/stream"
	"github.com/urfave/cli/v2"
)

// tailCommand polls the ledger and prints events, without any sink.
func tailCommand() *cli.Command {
	return &cli.Command{
		Name:  "tail",
		Usage: "Print new Sui transactions as they appear",
		Description: `Poll a Sui full node and print each new transaction.

Use --must-jq to keep only events for which every filter is truthy. Filters
run against the event JSON; metadata holding JSON is decoded first.

Examples:
  suistream tail --json
  suistream tail --must-jq '.transaction_kind == "ProgrammableTransaction"'
  suistream tail --emit-mode all --must-jq '.metadata.gasData.budget | tonumber > 1000000'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "endpoint",
				Usage:   "Sui JSON-RPC endpoint",
				EnvVars: []string{"SUI_RPC_URL"},
				Value:   source.MainnetEndpoint,
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Poll interval (defaults to POLL_INTERVAL_MS when set)",
				Value: time.Second,
			},
			&cli.IntFlag{
				Name:    "max-transactions",
				Usage:   "Transactions fetched per poll",
				EnvVars: []string{"MAX_TRANSACTIONS"},
				Value:   5,
			},
			&cli.StringFlag{
				Name:    "emit-mode",
				Usage:   "latest or all",
				EnvVars: []string{"EMIT_MODE"},
				Value:   string(source.EmitLatest),
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter that must be truthy (repeatable)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Stop after this many events (0 means run until interrupted)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "warn",
			},
		},
		Action: func(c *cli.Context) error {
			mode, err := source.ParseEmitMode(c.String("emit-mode"))
			if err != nil {
				return err
			}

			filters, err := compileFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			interval, err := tailInterval(c)
			if err != nil {
				return err
			}

			logger := setupLogger(c.String("log-level"))

			src, err := source.New(source.Config{
				Endpoint:        c.String("endpoint"),
				Interval:        interval,
				MaxTransactions: c.Int("max-transactions"),
				EmitMode:        mode,
				Logger:          logger,
			})
			if err != nil {
				return err
			}

			jsonOutput := c.Bool("json")
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Tailing %s every %s (Ctrl-C to exit)\n", src.Endpoint(), interval)
				for _, filter := range c.StringSlice("must-jq") {
					fmt.Fprintf(os.Stderr, "  jq Filter: %s\n", filter)
				}
				fmt.Fprintln(os.Stderr)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			n, err := stream.Run(ctx, stream.RunConfig[source.Event]{
				Source: stream.Filter[source.Event](src, jqFilter(filters, logger)),
				Sinks: []stream.NamedSink[source.Event]{
					{Name: "stdout", Sink: printSink(os.Stdout, jsonOutput)},
				},
				MaxRecords: c.Int("limit"),
				Logger:     logger,
			})
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "\nReceived %d events\n", n)
			}
			return err
		},
	}
}

// tailInterval returns --interval when given on the command line, otherwise
// POLL_INTERVAL_MS (the variable "run" reads), otherwise the flag default.
func tailInterval(c *cli.Context) (time.Duration, error) {
	if c.IsSet("interval") {
		return c.Duration("interval"), nil
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return 0, fmt.Errorf("POLL_INTERVAL_MS must be a positive integer, got %q", v)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	return c.Duration("interval"), nil
}
