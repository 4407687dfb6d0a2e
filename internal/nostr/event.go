package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"zapboard/internal/types"
)

// CalculateEventID computes the NIP-01 id: sha256 of [0,pubkey,created_at,kind,tags,content]
func CalculateEventID(event *types.Event) string {
	tags := event.Tags
	if tags == nil {
		tags = [][]string{}
	}
	serialized := fmt.Sprintf(`[0,"%s",%d,%d,%s,"%s"]`,
		event.PubKey,
		event.CreatedAt,
		event.Kind,
		mustJSON(tags),
		escapeJSON(event.Content),
	)

	hash := sha256.Sum256([]byte(serialized))
	return hex.EncodeToString(hash[:])
}

// SignEventID produces a BIP-340 signature over the event id
func SignEventID(privKeyBytes []byte, eventID string) (string, error) {
	if len(privKeyBytes) != 32 {
		return "", errors.New("invalid private key length")
	}

	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)

	eventIDBytes, err := hex.DecodeString(eventID)
	if err != nil {
		return "", fmt.Errorf("invalid event ID hex: %w", err)
	}

	sig, err := schnorr.Sign(privKey, eventIDBytes)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sig.Serialize()), nil
}

// FinalizeEvent fills pubkey, id and sig of a draft using the given secret key
func FinalizeEvent(draft types.UnsignedEvent, privKeyBytes []byte) (*types.Event, error) {
	pubKey, err := GetPublicKey(privKeyBytes)
	if err != nil {
		return nil, err
	}

	tags := draft.Tags
	if tags == nil {
		tags = [][]string{}
	}
	event := &types.Event{
		PubKey:    hex.EncodeToString(pubKey),
		CreatedAt: draft.CreatedAt,
		Kind:      draft.Kind,
		Tags:      tags,
		Content:   draft.Content,
	}

	event.ID = CalculateEventID(event)
	event.Sig, err = SignEventID(privKeyBytes, event.ID)
	if err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}
	return event, nil
}

// ValidateEventSignature verifies the id digest and Schnorr signature of an event
func ValidateEventSignature(evt *types.Event) bool {
	if len(evt.Sig) != 128 || len(evt.PubKey) != 64 {
		return false
	}
	if CalculateEventID(evt) != evt.ID {
		return false
	}

	sigBytes, err := hex.DecodeString(evt.Sig)
	if err != nil {
		return false
	}
	pubKeyBytes, err := hex.DecodeString(evt.PubKey)
	if err != nil {
		return false
	}
	idBytes, err := hex.DecodeString(evt.ID)
	if err != nil {
		return false
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}

	return sig.Verify(idBytes, pubKey)
}

// ParseEventFromInterface converts raw websocket data to Event (avoids JSON re-encoding)
func ParseEventFromInterface(data interface{}) (types.Event, bool) {
	m, ok := data.(map[string]interface{})
	if !ok {
		return types.Event{}, false
	}

	evt := types.Event{}

	if id, ok := m["id"].(string); ok {
		evt.ID = id
	}
	if pk, ok := m["pubkey"].(string); ok {
		evt.PubKey = pk
	}
	if createdAt, ok := m["created_at"].(float64); ok {
		evt.CreatedAt = int64(createdAt)
	}
	if kind, ok := m["kind"].(float64); ok {
		evt.Kind = int(kind)
	}
	if content, ok := m["content"].(string); ok {
		evt.Content = content
	}
	if sig, ok := m["sig"].(string); ok {
		evt.Sig = sig
	}

	if tags, ok := m["tags"].([]interface{}); ok {
		evt.Tags = make([][]string, 0, len(tags))
		for _, tag := range tags {
			if tagArr, ok := tag.([]interface{}); ok {
				strTag := make([]string, 0, len(tagArr))
				for _, elem := range tagArr {
					if s, ok := elem.(string); ok {
						strTag = append(strTag, s)
					}
				}
				evt.Tags = append(evt.Tags, strTag)
			}
		}
	}

	if !ValidateEventSignature(&evt) {
		slog.Debug("event signature validation failed", "event_id", ShortID(evt.ID))
		return types.Event{}, false
	}

	return evt, evt.ID != ""
}

// ShortID truncates ID/pubkey to 12 chars for logging
func ShortID(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}

// mustJSON encodes v without HTML escaping; NIP-01 serializes <, > and & literally
func mustJSON(v interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// escapeJSON escapes a string per NIP-01 without the surrounding quotes
func escapeJSON(s string) string {
	b := mustJSON(s)
	if len(b) < 2 {
		return s
	}
	return b[1 : len(b)-1]
}
