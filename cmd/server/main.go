package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configFlag := &cli.StringFlag{
		Name:    "config",
		Usage:   "YAML configuration file (environment variables take precedence)",
		Sources: cli.EnvVars("CONFIG_FILE"),
	}

	app := &cli.Command{
		Name:  "pdfchat",
		Usage: "Ask questions about an uploaded PDF",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server",
				Action: serveAction,
			},
			{
				Name:   "migrate",
				Usage:  "Create or upgrade the account database schema and exit",
				Action: migrateAction,
			},
			{
				Name:  "history",
				Usage: "Print a user's question history",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Usage:    "Username",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print entries as JSON lines",
					},
				},
				Action: historyAction,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
