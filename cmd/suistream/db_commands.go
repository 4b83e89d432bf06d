package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/suistream/service/db"
	"github.com/jackc/pgx/v5"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the events table if it does not exist",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(c.Context); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "schema is up to date")
			return nil
		},
	}
}

func listEventsCommand() *cli.Command {
	return &cli.Command{
		Name:    "events",
		Usage:   "List stored events, newest first",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "Filter by transaction kind",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of events",
				Value:   20,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of events to skip",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			events, err := store.ListRecentEvents(c.Context, db.ListEventsParams{
				TransactionKind: c.String("kind"),
				Limit:           int32(c.Int("limit")),
				Offset:          int32(c.Int("offset")),
			})
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(events)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DIGEST\tKIND\tSENDER\tLEDGER TIME\tRECORDED")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.Digest,
					e.TransactionKind,
					e.Sender,
					formatLedgerTime(e.TimestampMs),
					e.RecordedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			total, err := store.CountEvents(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "\nShowing %d of %d events\n", len(events), total)
			return nil
		},
	}
}

func getEventCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-event",
		Usage:     "Show a stored event",
		Aliases:   []string{"get"},
		ArgsUsage: "<digest>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction digest")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			digest := c.Args().Get(0)
			e, err := store.GetEvent(c.Context, digest)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("event %s not found", digest)
			}
			if err != nil {
				return fmt.Errorf("failed to get event: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(e)
			}

			fmt.Printf("Digest:       %s\n", e.Digest)
			fmt.Printf("Kind:         %s\n", e.TransactionKind)
			fmt.Printf("Sender:       %s\n", e.Sender)
			fmt.Printf("Ledger Time:  %s\n", formatLedgerTime(e.TimestampMs))
			if e.RunID != nil {
				fmt.Printf("Run ID:       %s\n", *e.RunID)
			}
			fmt.Printf("Recorded At:  %s\n", e.RecordedAt.Format(time.RFC3339))
			fmt.Printf("Metadata:     %s\n", e.Metadata)
			return nil
		},
	}
}

// formatLedgerTime renders a millisecond timestamp, or "(unknown)" for zero.
func formatLedgerTime(ms int64) string {
	if ms == 0 {
		return "(unknown)"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := db.Connect(context.Background(), dbURL)
	if err != nil {
		return nil, nil, err
	}

	store := db.NewStore(pool, nil, setupLogger("error"))
	closer := func() { pool.Close() }

	return store, closer, nil
}
