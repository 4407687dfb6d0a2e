package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"
	"zapboard/internal/board"
	"zapboard/internal/cache"
	"zapboard/internal/config"
	"zapboard/internal/nips"
	"zapboard/internal/profile"
	"zapboard/internal/relay"
	"zapboard/internal/signer"
	"zapboard/internal/types"
	"zapboard/internal/zap"
)

// env is what every command needs: settings, relays, and the shared clients
type env struct {
	settings config.Settings
	relays   *config.RelaysConfig
	client   *relay.Client
	cache    cache.Backend
	profiles *profile.Directory
	out      io.Writer
}

func newEnv(c *cli.Context) (*env, error) {
	s := config.LoadSettings()
	if v := c.String("sec"); v != "" {
		s.SecretKey = v
	}
	if v := c.String("cache"); v != "" {
		s.CacheBackend = v
	}
	if v := c.String("redis-url"); v != "" {
		s.RedisURL = v
	}

	var relays *config.RelaysConfig
	if path := c.String("relays-config"); path != "" {
		relays = config.LoadRelaysConfig(path)
		config.SetRelaysConfig(relays)
	} else {
		relays = config.GetRelaysConfig()
	}

	client := relay.NewClient()
	client.QueryTimeout = s.QueryTimeout
	client.ProbeTimeout = s.ProbeTimeout
	client.PublishWindow = s.PublishWindow

	cfg := cache.DefaultConfig()
	cfg.Backend = s.CacheBackend
	cfg.RedisURL = s.RedisURL
	backend, err := cache.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("profile cache: %w", err)
	}

	dir := profile.NewDirectory(client, backend, relays.DefaultRelays)
	dir.TTL = s.ProfileTTL

	return &env{
		settings: s,
		relays:   relays,
		client:   client,
		cache:    backend,
		profiles: dir,
		out:      c.App.Writer,
	}, nil
}

func (e *env) Close() {
	if err := e.cache.Close(); err != nil {
		slog.Debug("cache close failed", "error", err)
	}
}

// signer loads the local key and the user's NIP-65 write relays
func (e *env) signer(ctx context.Context) (*signer.KeySigner, error) {
	s, err := signer.NewKeySigner(e.settings.SecretKey)
	if err != nil {
		if errors.Is(err, signer.ErrNoKey) {
			return nil, fmt.Errorf("%w: pass --sec or set NOSTR_SECRET_KEY", err)
		}
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	pubkey, _ := s.PublicKey(ctx)
	if evt := e.client.QueryOne(ctx, e.relays.ProfileRelays, signer.RelayListFilter(pubkey)); evt != nil {
		s.WithRelays(signer.ParseRelayList(evt))
	}
	return s, nil
}

// user resolves the pubkey a command acts for: the npub or hex argument
// when given, otherwise the signer's key
func (e *env) user(ctx context.Context, arg string) (string, error) {
	if arg != "" {
		pubkey, err := nips.NormalizePubkey(arg)
		if err != nil {
			return "", fmt.Errorf("invalid pubkey %q: %w", arg, err)
		}
		return pubkey, nil
	}
	s, err := signer.NewKeySigner(e.settings.SecretKey)
	if err != nil {
		if errors.Is(err, signer.ErrNoKey) {
			return "", errors.New("no pubkey given: pass an npub or set NOSTR_SECRET_KEY")
		}
		return "", fmt.Errorf("invalid secret key: %w", err)
	}
	return s.PublicKey(ctx)
}

// ownName looks up the user's own profile on the quick profile relays
func (e *env) ownName(ctx context.Context, pubkey string) string {
	evt := e.client.QueryOne(ctx, e.relays.ProfileRelays, types.Filter{
		Authors: []string{pubkey},
		Kinds:   []int{types.KindProfile},
		Limit:   1,
	})
	var p *types.ProfileInfo
	if evt != nil {
		if parsed, err := profile.Parse(evt); err == nil {
			p = parsed
		}
	}
	return profile.DisplayName(pubkey, p)
}

// leaderboard fetches the receipts addressed to pubkey and ranks the payers
func (e *env) leaderboard(ctx context.Context, pubkey string, limit int) (board.Board, error) {
	receipts, complete := e.client.Query(ctx, e.relays.DefaultRelays, zap.ReceiptFilter(pubkey, 0))
	if err := ctx.Err(); err != nil {
		return board.Board{}, err
	}
	if !complete {
		slog.Warn("some relays did not finish sending receipts", "receipts", len(receipts))
	}

	res := zap.Aggregate(receipts, pubkey, limit)
	profiles := e.profiles.Fetch(ctx, res.Pubkeys())
	return board.New(res, profiles), nil
}
