// Package signer defines the signing capability the payment and publishing
// flows consume, and a local-key implementation of it.
package signer

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"zapboard/internal/nostr"
	"zapboard/internal/types"
)

// Signer is the minimal capability consumed from a user's key holder
type Signer interface {
	PublicKey(ctx context.Context) (string, error)
	SignEvent(ctx context.Context, draft types.UnsignedEvent) (*types.Event, error)
}

// RelayLister is implemented by signers that know the user's relay preferences
type RelayLister interface {
	Relays(ctx context.Context) (map[string]types.RelayPermissions, error)
}

// ErrNoKey is returned when no secret key is configured
var ErrNoKey = errors.New("no secret key configured")

// KeySigner signs with a secret key held in memory
type KeySigner struct {
	secret []byte
	pubkey string
	relays map[string]types.RelayPermissions
}

// NewKeySigner builds a signer from a hex or nsec secret key
func NewKeySigner(secretKey string) (*KeySigner, error) {
	if secretKey == "" {
		return nil, ErrNoKey
	}
	secret, err := nostr.ParseSecretKey(secretKey)
	if err != nil {
		return nil, err
	}
	pub, err := nostr.GetPublicKey(secret)
	if err != nil {
		return nil, err
	}
	return &KeySigner{
		secret: secret,
		pubkey: hex.EncodeToString(pub),
	}, nil
}

// WithRelays sets the relay preferences reported by Relays
func (s *KeySigner) WithRelays(relays map[string]types.RelayPermissions) *KeySigner {
	s.relays = relays
	return s
}

func (s *KeySigner) PublicKey(ctx context.Context) (string, error) {
	return s.pubkey, nil
}

// SignEvent stamps created_at when the draft leaves it zero
func (s *KeySigner) SignEvent(ctx context.Context, draft types.UnsignedEvent) (*types.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if draft.CreatedAt == 0 {
		draft.CreatedAt = time.Now().Unix()
	}
	return nostr.FinalizeEvent(draft, s.secret)
}

func (s *KeySigner) Relays(ctx context.Context) (map[string]types.RelayPermissions, error) {
	return s.relays, nil
}

// WriteRelays returns the writeable relays a signer declares, or nil if it declares none
func WriteRelays(ctx context.Context, s Signer) ([]string, error) {
	lister, ok := s.(RelayLister)
	if !ok {
		return nil, nil
	}
	relays, err := lister.Relays(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for url, perms := range relays {
		if perms.Write {
			out = append(out, url)
		}
	}
	return nostr.NormalizeRelayList(out), nil
}
