package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"zapboard/internal/logging"
	"zapboard/internal/metrics"
)

var app = &cli.App{
	Name:  "zapboard",
	Usage: "rank the people who zap you on nostr, and zap back over Nostr Wallet Connect",
	Commands: []*cli.Command{
		leaderboard,
		probe,
		whoami,
		zapCommand,
		post,
		share,
	},
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "debug logging on stderr",
		},
		&cli.StringFlag{
			Name:    "relays-config",
			Usage:   "relay list JSON file",
			EnvVars: []string{"RELAYS_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "sec",
			Usage:   "secret key (hex or nsec) used to sign zap requests and notes",
			EnvVars: []string{"NOSTR_SECRET_KEY"},
		},
		&cli.StringFlag{
			Name:    "cache",
			Usage:   "profile cache backend: memory or redis",
			EnvVars: []string{"CACHE_BACKEND"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis://host:port/db for the redis cache backend",
			EnvVars: []string{"REDIS_URL"},
		},
	},
	Before: func(c *cli.Context) error {
		logging.Init(c.Bool("verbose"))
		return nil
	},
	After: func(c *cli.Context) error {
		slog.Debug("metrics", metrics.LogAttrs()...)
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
