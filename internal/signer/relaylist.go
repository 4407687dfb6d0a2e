package signer

import (
	"zapboard/internal/nostr"
	"zapboard/internal/types"
)

// RelayListFilter selects a user's NIP-65 relay list
func RelayListFilter(pubkey string) types.Filter {
	return types.Filter{
		Authors: []string{pubkey},
		Kinds:   []int{types.KindRelayList},
		Limit:   1,
	}
}

// ParseRelayList reads the "r" tags of a kind 10002 event. A tag without a
// marker means both read and write. Returns nil for any other kind.
func ParseRelayList(evt *types.Event) map[string]types.RelayPermissions {
	if evt == nil || evt.Kind != types.KindRelayList {
		return nil
	}

	relays := make(map[string]types.RelayPermissions)
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		url := nostr.NormalizeRelayURL(tag[1])
		if url == "" {
			continue
		}

		perms := relays[url]
		marker := ""
		if len(tag) >= 3 {
			marker = tag[2]
		}
		switch marker {
		case "read":
			perms.Read = true
		case "write":
			perms.Write = true
		default:
			perms.Read = true
			perms.Write = true
		}
		relays[url] = perms
	}
	return relays
}
