package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zapboard/internal/types"
)

func mustKey(t *testing.T, hexKey string) []byte {
	t.Helper()
	b, err := hex.DecodeString(hexKey)
	require.NoError(t, err)
	return b
}

func TestCalculateEventIDSerialization(t *testing.T) {
	event := &types.Event{
		PubKey:    "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec",
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      [][]string{},
		Content:   "test",
	}

	expected := `[0,"bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec",1700000000,1,[],"test"]`
	hash := sha256.Sum256([]byte(expected))
	assert.Equal(t, hex.EncodeToString(hash[:]), CalculateEventID(event))
}

func TestCalculateEventIDDoesNotHTMLEscape(t *testing.T) {
	event := &types.Event{
		PubKey:    "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec",
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      [][]string{{"r", "https://a.b/?x=1&y=<2>"}},
		Content:   "a < b && \"quoted\"\nline",
	}

	expected := `[0,"bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec",1700000000,1,[["r","https://a.b/?x=1&y=<2>"]],"a < b && \"quoted\"\nline"]`
	hash := sha256.Sum256([]byte(expected))
	assert.Equal(t, hex.EncodeToString(hash[:]), CalculateEventID(event))
}

func TestFinalizeEventVerifies(t *testing.T) {
	secret := mustKey(t, "edc90d06fee17615229c8526dc005d959e4af3bdc0b48c5776c951bcafedec85")

	event, err := FinalizeEvent(types.UnsignedEvent{
		Kind:      types.KindNote,
		Content:   "hello",
		CreatedAt: 1700000000,
	}, secret)
	require.NoError(t, err)

	assert.Equal(t, "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec", event.PubKey)
	assert.NotNil(t, event.Tags)
	assert.True(t, ValidateEventSignature(event))

	tampered := *event
	tampered.Content = "goodbye"
	assert.False(t, ValidateEventSignature(&tampered), "content change must invalidate id")

	forged := *event
	forged.Content = "goodbye"
	forged.ID = CalculateEventID(&forged)
	assert.False(t, ValidateEventSignature(&forged), "recomputed id must not match old sig")
}

func TestParseEventFromInterface(t *testing.T) {
	secret := mustKey(t, "edc90d06fee17615229c8526dc005d959e4af3bdc0b48c5776c951bcafedec85")
	event, err := FinalizeEvent(types.UnsignedEvent{
		Kind:      types.KindZapReceipt,
		Tags:      [][]string{{"p", "abc"}, {"description", "{}"}},
		CreatedAt: 1700000001,
	}, secret)
	require.NoError(t, err)

	raw := map[string]interface{}{
		"id":         event.ID,
		"pubkey":     event.PubKey,
		"created_at": float64(event.CreatedAt),
		"kind":       float64(event.Kind),
		"tags":       []interface{}{[]interface{}{"p", "abc"}, []interface{}{"description", "{}"}},
		"content":    "",
		"sig":        event.Sig,
	}
	parsed, ok := ParseEventFromInterface(raw)
	require.True(t, ok)
	assert.Equal(t, event.ID, parsed.ID)
	assert.Equal(t, event.Tags, parsed.Tags)

	raw["sig"] = ""
	_, ok = ParseEventFromInterface(raw)
	assert.False(t, ok, "unsigned events are dropped")

	_, ok = ParseEventFromInterface("not an event")
	assert.False(t, ok)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", ShortID("0123456789abcdef"))
	assert.Equal(t, "abc", ShortID("abc"))
}
