package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"zapboard/internal/board"
	"zapboard/internal/nips"
)

var leaderboard = &cli.Command{
	Name:  "leaderboard",
	Usage: "rank the people who zapped a pubkey",
	Description: `example usage:
        zapboard leaderboard bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec
        NOSTR_SECRET_KEY=nsec1... zapboard leaderboard --html board.html`,
	ArgsUsage: "[npub or hex pubkey]",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "number of zappers to show (default LEADERBOARD_SIZE or 20)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print the leaderboard as JSON",
		},
		&cli.StringFlag{
			Name:  "html",
			Usage: "also write a standalone HTML page to this file",
		},
		&cli.BoolFlag{
			Name:  "no-probe",
			Usage: "skip the relay reachability table",
		},
	},
	Action: func(c *cli.Context) error {
		e, err := newEnv(c)
		if err != nil {
			return err
		}
		defer e.Close()

		pubkey, err := e.user(c.Context, c.Args().First())
		if err != nil {
			return err
		}
		limit := c.Int("limit")
		if limit <= 0 {
			limit = e.settings.LeaderboardSize
		}
		asJSON := c.Bool("json")

		if !asJSON && !c.Bool("no-probe") {
			if err := board.WriteRelayStatus(e.out, e.client.Probe(c.Context, e.relays.DefaultRelays)); err != nil {
				return err
			}
			fmt.Fprintln(e.out)
		}

		name := e.ownName(c.Context, pubkey)
		b, err := e.leaderboard(c.Context, pubkey, limit)
		if err != nil {
			return err
		}

		if path := c.String("html"); path != "" {
			page, err := b.HTML("Top zappers of " + name)
			if err != nil {
				return fmt.Errorf("render html: %w", err)
			}
			if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
				return err
			}
		}

		if asJSON {
			enc := json.NewEncoder(e.out)
			enc.SetIndent("", "  ")
			return enc.Encode(b)
		}
		fmt.Fprintf(e.out, "Top zappers of %s\n\n", name)
		return b.WriteText(e.out)
	},
}

var probe = &cli.Command{
	Name:      "probe",
	Usage:     "check which relays accept a connection",
	ArgsUsage: "[relay...]",
	Action: func(c *cli.Context) error {
		e, err := newEnv(c)
		if err != nil {
			return err
		}
		defer e.Close()

		relays := c.Args().Slice()
		if len(relays) == 0 {
			relays = e.relays.DefaultRelays
		}
		return board.WriteRelayStatus(e.out, e.client.Probe(c.Context, relays))
	},
}

var whoami = &cli.Command{
	Name:      "whoami",
	Usage:     "show the display name and npub for a pubkey or the configured key",
	ArgsUsage: "[npub or hex pubkey]",
	Action: func(c *cli.Context) error {
		e, err := newEnv(c)
		if err != nil {
			return err
		}
		defer e.Close()

		pubkey, err := e.user(c.Context, c.Args().First())
		if err != nil {
			return err
		}
		npub, err := nips.EncodePubkey(pubkey)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "%s\n%s\n", e.ownName(c.Context, pubkey), npub)
		return nil
	},
}
