package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/brojonat/suistream/service/config"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Flags read their EnvVars while parsing, so .env files must be loaded first.
	if err := config.LoadDotEnv(envFilesFromArgs(os.Args)...); err != nil {
		log.Fatal(err)
	}

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "suistream",
		Usage: "Stream Sui ledger transactions into a processing pipeline",
		Description: `A polling connector for the Sui ledger.

suistream polls a Sui full node at a fixed interval, turns new transactions
into events and hands them to the configured sinks (stdout, NATS JetStream,
Postgres, Redis streams). Configuration is read from the environment and from
an optional .env file.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			runCommand(),
			tailCommand(),
			// Database commands
			{
				Name:  "db",
				Usage: "Database commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					listEventsCommand(),
					getEventCommand(),
				},
			},
			// NATS event stream commands
			{
				Name:  "nats",
				Usage: "NATS event stream commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Redis stream commands
			{
				Name:  "redis",
				Usage: "Redis stream commands",
				Subcommands: []*cli.Command{
					recentCommand(),
				},
			},
			versionCommand(),
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load environment variables from these files (missing files are ignored)",
				Value: cli.NewStringSlice(".env"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL",
				EnvVars: []string{"REDIS_URL"},
				Value:   "redis://localhost:6379/0",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}

// envFilesFromArgs returns the files named by --env-file in args, or ".env"
// when the flag is absent. Comma-separated values are split like the flag does.
func envFilesFromArgs(args []string) []string {
	var files []string
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name != "env-file" {
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				break
			}
			i++
			value = args[i]
		}
		for _, f := range strings.Split(value, ",") {
			if f = strings.TrimSpace(f); f != "" {
				files = append(files, f)
			}
		}
	}
	if len(files) == 0 {
		return []string{".env"}
	}
	return files
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			if c.Bool("json") {
				return outputJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    date,
				})
			}
			fmt.Printf("suistream %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
			return nil
		},
	}
}
