// Package nwc pays invoices through a wallet reached over Nostr Wallet
// Connect (NIP-47).
package nwc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"zapboard/internal/nostr"
)

// URIScheme prefixes every connect URI
const URIScheme = "nostr+walletconnect://"

// ErrInvalidURI is wrapped by every ParseURI failure
var ErrInvalidURI = errors.New("invalid NWC URI")

// Connection holds wallet connection parameters extracted from a connect URI
type Connection struct {
	WalletPubkey string // hex
	Relay        string
	ClientPubkey string // hex, derived from secret

	secret          []byte
	nip04Key        []byte
	conversationKey []byte
}

// ParseURI parses nostr+walletconnect://<wallet-pubkey>?relay=<wss://...>&secret=<hex>
// and precomputes the encryption keys for the wallet.
func ParseURI(uri string) (*Connection, error) {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, URIScheme) {
		return nil, fmt.Errorf("%w: must start with %s", ErrInvalidURI, URIScheme)
	}

	// url.Parse rejects the "+" scheme for hosts; swap it for parsing
	u, err := url.Parse(strings.Replace(uri, URIScheme, "https://", 1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}

	walletPubkey := strings.ToLower(u.Host)
	if !isHex32(walletPubkey) {
		return nil, fmt.Errorf("%w: wallet pubkey must be 64 hex characters", ErrInvalidURI)
	}
	walletKey, _ := hex.DecodeString(walletPubkey)

	query := u.Query()
	relay := query.Get("relay")
	if relay == "" {
		return nil, fmt.Errorf("%w: missing relay parameter", ErrInvalidURI)
	}
	if !strings.HasPrefix(relay, "wss://") && !strings.HasPrefix(relay, "ws://") {
		return nil, fmt.Errorf("%w: relay must start with wss:// or ws://", ErrInvalidURI)
	}

	secretHex := strings.ToLower(query.Get("secret"))
	if secretHex == "" {
		return nil, fmt.Errorf("%w: missing secret parameter", ErrInvalidURI)
	}
	if !isHex32(secretHex) {
		return nil, fmt.Errorf("%w: secret must be 64 hex characters", ErrInvalidURI)
	}
	secret, _ := hex.DecodeString(secretHex)

	clientPub, err := nostr.GetPublicKey(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	nip04Key, err := nostr.GetNip04SharedSecret(secret, walletKey)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet pubkey: %v", ErrInvalidURI, err)
	}
	conversationKey, err := nostr.GetConversationKey(secret, walletKey)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet pubkey: %v", ErrInvalidURI, err)
	}

	return &Connection{
		WalletPubkey:    walletPubkey,
		Relay:           relay,
		ClientPubkey:    hex.EncodeToString(clientPub),
		secret:          secret,
		nip04Key:        nip04Key,
		conversationKey: conversationKey,
	}, nil
}

// String never includes the secret
func (c *Connection) String() string {
	return fmt.Sprintf("nwc(wallet=%s relay=%s)", nostr.ShortID(c.WalletPubkey), c.Relay)
}

// wipe zeroes key material
func (c *Connection) wipe() {
	for _, b := range [][]byte{c.secret, c.nip04Key, c.conversationKey} {
		for i := range b {
			b[i] = 0
		}
	}
}

func isHex32(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
