package nips

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Bech32 charset
const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// Human-readable prefixes for NIP-19 keys
const (
	HRPPubkey    = "npub"
	HRPSecretKey = "nsec"
)

// Bech32Decode decodes a bech32 string into HRP and data, verifying the checksum
func Bech32Decode(bech string) (string, []byte, error) {
	if len(bech) < 8 {
		return "", nil, errors.New("too short")
	}
	if strings.ToLower(bech) != bech && strings.ToUpper(bech) != bech {
		return "", nil, errors.New("mixed case")
	}
	bech = strings.ToLower(bech)

	// Find separator
	pos := strings.LastIndex(bech, "1")
	if pos < 1 || pos+7 > len(bech) {
		return "", nil, errors.New("invalid separator position")
	}

	hrp := bech[:pos]
	data := bech[pos+1:]

	var values []byte
	for _, c := range data {
		idx := strings.IndexRune(bech32Charset, c)
		if idx == -1 {
			return "", nil, errors.New("invalid character")
		}
		values = append(values, byte(idx))
	}

	if !bech32VerifyChecksum(hrp, values) {
		return "", nil, errors.New("invalid checksum")
	}

	return hrp, values[:len(values)-6], nil
}

// Bech32ConvertBits converts between bit groups
func Bech32ConvertBits(data []byte, fromBits, toBits int, pad bool) ([]byte, error) {
	acc := 0
	bits := 0
	var ret []byte
	maxv := (1 << toBits) - 1

	for _, value := range data {
		acc = (acc << fromBits) | int(value)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			ret = append(ret, byte((acc>>bits)&maxv))
		}
	}

	if pad {
		if bits > 0 {
			ret = append(ret, byte((acc<<(toBits-bits))&maxv))
		}
	} else if bits >= fromBits || ((acc<<(toBits-bits))&maxv) != 0 {
		return nil, errors.New("invalid padding")
	}

	return ret, nil
}

// Bech32Encode encodes data with the given HRP
func Bech32Encode(hrp string, data []byte) (string, error) {
	values := append([]byte{}, data...)
	checksum := bech32CreateChecksum(hrp, values)
	combined := append(values, checksum...)

	var result strings.Builder
	result.WriteString(hrp)
	result.WriteByte('1')
	for _, v := range combined {
		if int(v) >= len(bech32Charset) {
			return "", errors.New("value out of range")
		}
		result.WriteByte(bech32Charset[v])
	}

	return result.String(), nil
}

func bech32Polymod(values []int) int {
	gen := []int{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := 1
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ v
		for i := 0; i < 5; i++ {
			if (top>>i)&1 != 0 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HrpExpand(hrp string) []int {
	var ret []int
	for _, c := range hrp {
		ret = append(ret, int(c>>5))
	}
	ret = append(ret, 0)
	for _, c := range hrp {
		ret = append(ret, int(c&31))
	}
	return ret
}

func bech32CreateChecksum(hrp string, data []byte) []byte {
	values := bech32HrpExpand(hrp)
	for _, d := range data {
		values = append(values, int(d))
	}
	for i := 0; i < 6; i++ {
		values = append(values, 0)
	}
	polymod := bech32Polymod(values) ^ 1
	var checksum []byte
	for i := 0; i < 6; i++ {
		checksum = append(checksum, byte((polymod>>(5*(5-i)))&31))
	}
	return checksum
}

func bech32VerifyChecksum(hrp string, data []byte) bool {
	values := bech32HrpExpand(hrp)
	for _, d := range data {
		values = append(values, int(d))
	}
	return bech32Polymod(values) == 1
}

// encodeKey encodes a 32-byte hex key under the given prefix
func encodeKey(hrp, hexKey string) (string, error) {
	keyBytes, err := hex.DecodeString(hexKey)
	if err != nil {
		return "", err
	}
	if len(keyBytes) != 32 {
		return "", errors.New("invalid key length")
	}

	// Convert 8-bit bytes to 5-bit groups
	data, err := Bech32ConvertBits(keyBytes, 8, 5, true)
	if err != nil {
		return "", err
	}

	return Bech32Encode(hrp, data)
}

// EncodePubkey encodes a hex pubkey to npub format
func EncodePubkey(hexPubkey string) (string, error) {
	return encodeKey(HRPPubkey, hexPubkey)
}

// EncodeSecretKey encodes a hex secret key to nsec format
func EncodeSecretKey(hexSecret string) (string, error) {
	return encodeKey(HRPSecretKey, hexSecret)
}

// DecodeKey decodes an npub or nsec into its prefix and hex key
func DecodeKey(bech string) (hrp string, hexKey string, err error) {
	hrp, data, err := Bech32Decode(bech)
	if err != nil {
		return "", "", fmt.Errorf("decode %q: %w", ShortBech(bech), err)
	}
	if hrp != HRPPubkey && hrp != HRPSecretKey {
		return "", "", fmt.Errorf("unsupported prefix %q", hrp)
	}
	keyBytes, err := Bech32ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", "", err
	}
	if len(keyBytes) != 32 {
		return "", "", errors.New("invalid key length")
	}
	return hrp, hex.EncodeToString(keyBytes), nil
}

// NormalizePubkey accepts a 64-char hex pubkey or an npub and returns hex
func NormalizePubkey(input string) (string, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(strings.ToLower(input), HRPPubkey+"1") {
		hrp, hexKey, err := DecodeKey(input)
		if err != nil {
			return "", err
		}
		if hrp != HRPPubkey {
			return "", errors.New("expected npub")
		}
		return hexKey, nil
	}
	if len(input) != 64 {
		return "", errors.New("pubkey must be 64 hex characters or npub")
	}
	if _, err := hex.DecodeString(input); err != nil {
		return "", errors.New("pubkey is not valid hex")
	}
	return strings.ToLower(input), nil
}

// ShortBech truncates a bech32 string for display and logging
func ShortBech(s string) string {
	if len(s) > 15 {
		return s[:15] + "..."
	}
	return s
}
