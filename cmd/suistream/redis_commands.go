package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	redispkg "github.com/brojonat/suistream/service/redis"
	"github.com/urfave/cli/v2"
)

func recentCommand() *cli.Command {
	return &cli.Command{
		Name:  "recent",
		Usage: "Show the newest events in the Redis stream",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "stream",
				Usage:   "Stream key",
				EnvVars: []string{"REDIS_STREAM"},
				Value:   "sui:events",
			},
			&cli.Int64Flag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Number of entries",
				Value:   20,
			},
		},
		Action: func(c *cli.Context) error {
			rdb, err := redispkg.Connect(c.Context, c.String("redis-url"))
			if err != nil {
				return err
			}
			defer rdb.Close()

			entries, err := redispkg.ReadRecent(c.Context, rdb, c.String("stream"), c.Int64("count"))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(entries)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDIGEST\tKIND\tSENDER\tRUN")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.ID,
					e.Event.TransactionID,
					e.Event.TransactionKind,
					e.Event.Sender,
					e.RunID,
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d entries\n", len(entries))
			return nil
		},
	}
}
