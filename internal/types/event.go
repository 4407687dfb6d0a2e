// Package types provides shared type definitions used across internal packages.
package types

// Event kinds used by the leaderboard and payment flows
const (
	KindProfile     = 0
	KindNote        = 1
	KindZapRequest  = 9734
	KindZapReceipt  = 9735
	KindRelayList   = 10002
	KindNWCRequest  = 23194
	KindNWCResponse = 23195
)

// Event represents a Nostr event (NIP-01)
type Event struct {
	ID         string     `json:"id"`
	PubKey     string     `json:"pubkey"`
	CreatedAt  int64      `json:"created_at"`
	Kind       int        `json:"kind"`
	Tags       [][]string `json:"tags"`
	Content    string     `json:"content"`
	Sig        string     `json:"sig"`
	RelaysSeen []string   `json:"-"`
}

// TagValue returns the first value of the first tag with the given name.
func (e *Event) TagValue(name string) (string, bool) {
	return FindTagValue(e.Tags, name)
}

// FindTagValue returns the value at index 1 of the first tag named name.
func FindTagValue(tags [][]string, name string) (string, bool) {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1], true
		}
	}
	return "", false
}

// UnsignedEvent is an event draft handed to a signer
type UnsignedEvent struct {
	Kind      int        `json:"kind"`
	Content   string     `json:"content"`
	Tags      [][]string `json:"tags"`
	CreatedAt int64      `json:"created_at"`
}

// Filter represents a Nostr subscription filter (NIP-01)
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Limit   int
	Since   *int64
	Until   *int64
	PTags   []string // #p tag filter (mentions)
	ETags   []string // #e tag filter (event references)
}

// Map builds the wire representation of the filter for a REQ message.
// Empty fields are omitted so relays don't treat them as "match nothing".
func (f Filter) Map() map[string]interface{} {
	m := make(map[string]interface{})
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if len(f.PTags) > 0 {
		m["#p"] = f.PTags
	}
	if len(f.ETags) > 0 {
		m["#e"] = f.ETags
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return m
}

// NostrMessage represents a raw Nostr protocol message
type NostrMessage []interface{}

// Matches reports whether the event satisfies every populated field of the filter.
// Relays are untrusted, so results are re-checked client side.
func (f Filter) Matches(e *Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if len(f.PTags) > 0 && !hasTagValueIn(e.Tags, "p", f.PTags) {
		return false
	}
	if len(f.ETags) > 0 && !hasTagValueIn(e.Tags, "e", f.ETags) {
		return false
	}
	if f.Since != nil && e.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt > *f.Until {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

func hasTagValueIn(tags [][]string, name string, values []string) bool {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name && containsString(values, tag[1]) {
			return true
		}
	}
	return false
}
