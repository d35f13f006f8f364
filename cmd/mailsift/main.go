// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "category",
			Usage: "Only records in these categories",
		},
		&cli.StringSliceFlag{
			Name:  "importance",
			Usage: "Only records with these importance levels",
		},
		&cli.StringFlag{
			Name:  "since",
			Usage: "Only records received on or after this date (YYYY-MM-DD)",
		},
		&cli.StringFlag{
			Name:  "until",
			Usage: "Only records received before this date (YYYY-MM-DD)",
		},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mailsift",
		Usage: "Summarize, classify and search incoming email",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				EnvVars: []string{"MAILSIFT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:  "no-keyring",
				Usage: "Do not look up passwords in the OS keyring",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Poll the mailbox, process new mail and send notifications until interrupted",
				Action: runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve Prometheus metrics on this address (e.g. :9090)",
					},
				},
			},
			{
				Name:   "poll",
				Usage:  "Run a single poll cycle and wait for processing to finish",
				Action: pollCommand,
			},
			{
				Name:      "search",
				Usage:     "Find the records most similar to a query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: append(filterFlags(),
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"n"},
						Usage:   "Number of results",
						Value:   5,
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Show each retrieval stage",
					},
				),
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the indexed mail",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags:     filterFlags(),
			},
			{
				Name:   "list",
				Usage:  "List records, newest first",
				Action: listCommand,
				Flags: append(filterFlags(),
					&cli.StringSliceFlag{
						Name:  "state",
						Usage: "Only records in these states (pending, processed, failed)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of records",
						Value: 20,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of records to skip",
					},
				),
			},
			{
				Name:      "show",
				Usage:     "Show one record in full",
				ArgsUsage: "ID",
				Action:    showCommand,
			},
			{
				Name:      "reprocess",
				Usage:     "Run the pipeline on a stored record again",
				ArgsUsage: "ID",
				Action:    reprocessCommand,
			},
			{
				Name:   "stats",
				Usage:  "Summarize records, the index and notifications",
				Action: statsCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print as JSON",
					},
				},
			},
			{
				Name:   "rebuild-index",
				Usage:  "Re-embed every processed record and replace the vector index",
				Action: rebuildIndexCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Do not show a progress bar",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Print plain progress lines every N records instead of a bar (0 keeps the bar)",
					},
				},
			},
			{
				Name:   "retry-failed",
				Usage:  "Resubmit failed records that are not quarantined",
				Action: retryFailedCommand,
			},
			{
				Name:   "test-notification",
				Usage:  "Send a test notification through the configured channel",
				Action: testNotificationCommand,
			},
			{
				Name:  "config",
				Usage: "Manage the configuration file",
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "Write a default configuration file",
						Action: configInitCommand,
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "force",
								Usage: "Overwrite an existing file",
							},
						},
					},
					{
						Name:   "show",
						Usage:  "Print the effective configuration",
						Action: configShowCommand,
					},
				},
			},
			{
				Name:  "credential",
				Usage: "Manage passwords stored in the OS keyring",
				Subcommands: []*cli.Command{
					{
						Name:      "set",
						Usage:     "Store a password read from stdin",
						ArgsUsage: "imap-password|smtp-password",
						Action:    credentialSetCommand,
					},
					{
						Name:      "delete",
						Usage:     "Remove a stored password",
						ArgsUsage: "imap-password|smtp-password",
						Action:    credentialDeleteCommand,
					},
				},
			},
		},
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
}

func setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
