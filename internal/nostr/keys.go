package nostr

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"zapboard/internal/nips"
)

// GeneratePrivateKey generates a new random secp256k1 private key
func GeneratePrivateKey() ([]byte, error) {
	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return privKey.Serialize(), nil
}

// GetPublicKey derives the public key from a private key (x-only, 32 bytes)
func GetPublicKey(privKeyBytes []byte) ([]byte, error) {
	if len(privKeyBytes) != 32 {
		return nil, errors.New("invalid private key length")
	}
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	// Return x-only pubkey (32 bytes) - BIP-340 format
	return privKey.PubKey().SerializeCompressed()[1:], nil
}

// ParseSecretKey accepts a 64-char hex secret or an nsec and returns the raw 32 bytes
func ParseSecretKey(input string) ([]byte, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(strings.ToLower(input), nips.HRPSecretKey+"1") {
		hrp, hexKey, err := nips.DecodeKey(input)
		if err != nil {
			return nil, err
		}
		if hrp != nips.HRPSecretKey {
			return nil, errors.New("expected nsec")
		}
		input = hexKey
	}
	if len(input) != 64 {
		return nil, errors.New("secret key must be 64 hex characters or nsec")
	}
	key, err := hex.DecodeString(input)
	if err != nil {
		return nil, errors.New("secret key is not valid hex")
	}
	return key, nil
}

// parseXOnlyPubKey lifts an x-only key to a full point (even y first, per BIP-340)
func parseXOnlyPubKey(pubKeyBytes []byte) (*btcec.PublicKey, error) {
	if len(pubKeyBytes) != 32 {
		return nil, errors.New("invalid public key length")
	}
	pubKeyWithPrefix := append([]byte{0x02}, pubKeyBytes...)
	pubKey, err := btcec.ParsePubKey(pubKeyWithPrefix)
	if err != nil {
		// Try with 0x03 prefix (odd y-coordinate)
		pubKeyWithPrefix[0] = 0x03
		pubKey, err = btcec.ParsePubKey(pubKeyWithPrefix)
		if err != nil {
			return nil, errors.New("invalid public key")
		}
	}
	return pubKey, nil
}
