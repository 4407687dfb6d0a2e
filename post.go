package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v2"
	"zapboard/internal/config"
	"zapboard/internal/nostr"
	"zapboard/internal/types"
)

var post = &cli.Command{
	Name:      "post",
	Usage:     "publish a short text note",
	ArgsUsage: "<text>",
	Action: func(c *cli.Context) error {
		content := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
		if content == "" {
			return errors.New("nothing to post")
		}

		e, err := newEnv(c)
		if err != nil {
			return err
		}
		defer e.Close()
		return e.publishNote(c.Context, content)
	},
}

var share = &cli.Command{
	Name:  "share",
	Usage: "publish a note thanking your top zappers",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "number of zappers to mention (default LEADERBOARD_SIZE or 20)",
		},
		&cli.BoolFlag{
			Name:  "with-sats",
			Usage: "include each zapper's total",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "print the note instead of publishing it",
		},
	},
	Action: func(c *cli.Context) error {
		e, err := newEnv(c)
		if err != nil {
			return err
		}
		defer e.Close()

		pubkey, err := e.user(c.Context, "")
		if err != nil {
			return err
		}
		limit := c.Int("limit")
		if limit <= 0 {
			limit = e.settings.LeaderboardSize
		}

		b, err := e.leaderboard(c.Context, pubkey, limit)
		if err != nil {
			return err
		}
		if b.Empty() {
			return errors.New("no zaps found, nothing to share")
		}

		note := b.ShareNote(c.Bool("with-sats"))
		if c.Bool("dry-run") {
			fmt.Fprintln(e.out, note)
			return nil
		}
		return e.publishNote(c.Context, note)
	},
}

// publishNote signs a kind 1 note and broadcasts it to the signer's write
// relays, falling back to the configured publish relays
func (e *env) publishNote(ctx context.Context, content string) error {
	s, err := e.signer(ctx)
	if err != nil {
		return err
	}

	draft := types.UnsignedEvent{
		Kind:    types.KindNote,
		Content: content,
		Tags:    config.GetClientConfig().ApplyClientTag(types.KindNote, [][]string{}),
	}
	res, err := e.client.Publish(ctx, draft, e.relays.PublishRelays, s)
	if err != nil {
		return fmt.Errorf("publish note: %w", err)
	}

	if res.Acknowledged == 0 {
		slog.Warn("no relay acknowledged the note", "event", nostr.ShortID(res.EventID), "targets", res.Targets)
	}
	fmt.Fprintf(e.out, "Published %s to %d/%d relays\n", res.EventID, res.Acknowledged, res.Targets)
	return nil
}
