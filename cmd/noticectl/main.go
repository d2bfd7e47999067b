// Command noticectl submits notice batches to a running server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "noticectl",
		Usage: "Submit and inspect legal notice batches",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Base URL of the notice API",
				Value:   "http://localhost:8080",
				Sources: cli.EnvVars("NOTICE_API_URL"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token sent with every request",
				Sources: cli.EnvVars("NOTICE_API_TOKEN"),
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Total attempts per request",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "backoff",
				Usage: "Linear backoff unit between attempts",
				Value: defaultBackoff,
			},
			&cli.StringFlag{
				Name:    "log-mode",
				Value:   "development",
				Sources: cli.EnvVars("LOG_MODE"),
			},
		},
		Commands: []*cli.Command{
			cmdUpload(),
			cmdStatus(),
			cmdValidate(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
