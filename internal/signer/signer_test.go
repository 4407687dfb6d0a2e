package signer

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zapboard/internal/nostr"
	"zapboard/internal/types"
)

const testSecret = "edc90d06fee17615229c8526dc005d959e4af3bdc0b48c5776c951bcafedec85"

func TestKeySignerSigns(t *testing.T) {
	s, err := NewKeySigner(testSecret)
	require.NoError(t, err)

	pub, err := s.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec", pub)

	evt, err := s.SignEvent(context.Background(), types.UnsignedEvent{Kind: types.KindNote, Content: "gm"})
	require.NoError(t, err)
	assert.NotZero(t, evt.CreatedAt)
	assert.Equal(t, pub, evt.PubKey)
	assert.True(t, nostr.ValidateEventSignature(evt))
}

func TestNewKeySignerRequiresKey(t *testing.T) {
	_, err := NewKeySigner("")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestWriteRelays(t *testing.T) {
	s, err := NewKeySigner(testSecret)
	require.NoError(t, err)

	relays, err := WriteRelays(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, relays)

	s.WithRelays(map[string]types.RelayPermissions{
		"wss://write.example.com":   {Read: true, Write: true},
		"wss://read.example.com":    {Read: true},
		"wss://WRITE2.example.com/": {Write: true},
	})
	relays, err = WriteRelays(context.Background(), s)
	require.NoError(t, err)
	sort.Strings(relays)
	assert.Equal(t, []string{"wss://write.example.com", "wss://write2.example.com"}, relays)
}

func TestParseRelayList(t *testing.T) {
	evt := &types.Event{
		Kind: types.KindRelayList,
		Tags: [][]string{
			{"r", "wss://both.example.com/"},
			{"r", "wss://read.example.com", "read"},
			{"r", "wss://write.example.com", "write"},
			{"r", "not a url"},
			{"p", "wss://ignored.example.com"},
		},
	}

	relays := ParseRelayList(evt)
	assert.Equal(t, map[string]types.RelayPermissions{
		"wss://both.example.com":  {Read: true, Write: true},
		"wss://read.example.com":  {Read: true},
		"wss://write.example.com": {Write: true},
	}, relays)

	assert.Nil(t, ParseRelayList(&types.Event{Kind: types.KindNote}))
	assert.Nil(t, ParseRelayList(nil))
}
