// Package profile resolves kind-0 metadata for pubkeys, newest event wins,
// with a cache in front of the relays.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"zapboard/internal/cache"
	"zapboard/internal/metrics"
	"zapboard/internal/nips"
	"zapboard/internal/nostr"
	"zapboard/internal/types"
	"zapboard/internal/util"
)

// Default cache lifetimes
const (
	DefaultTTL         = time.Hour
	DefaultNotFoundTTL = 30 * time.Second
)

const keyPrefix = "profile:"

// Querier fetches events from relays; *relay.Client implements it
type Querier interface {
	Query(ctx context.Context, relays []string, filter types.Filter) ([]types.Event, bool)
}

// Directory looks up profiles. Concurrent lookups for the same batch share
// one relay query.
type Directory struct {
	querier Querier
	cache   cache.Backend
	relays  []string

	TTL         time.Duration
	NotFoundTTL time.Duration

	group singleflight.Group
}

// cachedProfile distinguishes "looked up, has no profile" from a cache miss
type cachedProfile struct {
	Found   bool               `json:"found"`
	Profile *types.ProfileInfo `json:"profile,omitempty"`
}

// NewDirectory builds a directory querying relays. backend may be nil to disable caching.
func NewDirectory(q Querier, backend cache.Backend, relays []string) *Directory {
	return &Directory{
		querier:     q,
		cache:       backend,
		relays:      relays,
		TTL:         DefaultTTL,
		NotFoundTTL: DefaultNotFoundTTL,
	}
}

// Fetch returns the newest profile for each pubkey that has one
func (d *Directory) Fetch(ctx context.Context, pubkeys []string) map[string]*types.ProfileInfo {
	pubkeys = util.Dedupe(pubkeys)
	result := make(map[string]*types.ProfileInfo, len(pubkeys))
	if len(pubkeys) == 0 {
		return result
	}

	missing := d.fromCache(ctx, pubkeys, result)
	if len(missing) == 0 {
		metrics.CacheHitsTotal.Add(1)
		return result
	}
	metrics.CacheMissesTotal.Add(1)

	batchKey := "profiles:" + strings.Join(util.SortedCopy(d.relays), "|") + ":" + strings.Join(util.SortedCopy(missing), ",")
	fresh, _, shared := d.group.Do(batchKey, func() (interface{}, error) {
		return d.fetchDirect(ctx, missing), nil
	})
	if shared {
		slog.Debug("profile: shared fetch", "count", len(missing))
	}

	for pk, p := range fresh.(map[string]*types.ProfileInfo) {
		result[pk] = p
	}
	return result
}

// Get returns the newest profile for one pubkey, or nil
func (d *Directory) Get(ctx context.Context, pubkey string) *types.ProfileInfo {
	return d.Fetch(ctx, []string{pubkey})[pubkey]
}

// fromCache fills result with cached profiles and returns pubkeys needing a fetch
func (d *Directory) fromCache(ctx context.Context, pubkeys []string, result map[string]*types.ProfileInfo) []string {
	if d.cache == nil {
		return pubkeys
	}

	keys := make([]string, len(pubkeys))
	for i, pk := range pubkeys {
		keys[i] = keyPrefix + pk
	}
	hits, err := d.cache.GetMultiple(ctx, keys)
	if err != nil {
		slog.Warn("profile: cache read failed", "error", err)
		return pubkeys
	}

	var missing []string
	for _, pk := range pubkeys {
		data, ok := hits[keyPrefix+pk]
		if !ok {
			missing = append(missing, pk)
			continue
		}
		var cp cachedProfile
		if err := json.Unmarshal(data, &cp); err != nil {
			missing = append(missing, pk)
			continue
		}
		if cp.Found && cp.Profile != nil {
			result[pk] = cp.Profile
		}
	}
	return missing
}

func (d *Directory) fetchDirect(ctx context.Context, pubkeys []string) map[string]*types.ProfileInfo {
	events, _ := d.querier.Query(ctx, d.relays, types.Filter{
		Kinds:   []int{types.KindProfile},
		Authors: pubkeys,
	})

	profiles := Latest(events)

	if d.cache != nil {
		found := make(map[string][]byte)
		notFound := make(map[string][]byte)
		for _, pk := range pubkeys {
			if p, ok := profiles[pk]; ok {
				data, _ := json.Marshal(cachedProfile{Found: true, Profile: p})
				found[keyPrefix+pk] = data
			} else {
				data, _ := json.Marshal(cachedProfile{Found: false})
				notFound[keyPrefix+pk] = data
			}
		}
		d.store(ctx, found, d.TTL)
		d.store(ctx, notFound, d.NotFoundTTL)
	}

	slog.Debug("profile: fetched", "requested", len(pubkeys), "found", len(profiles))
	return profiles
}

func (d *Directory) store(ctx context.Context, items map[string][]byte, ttl time.Duration) {
	if len(items) == 0 {
		return
	}
	if err := d.cache.SetMultiple(ctx, items, ttl); err != nil {
		slog.Warn("profile: cache write failed", "error", err)
	}
}

// Latest keeps the newest parseable kind-0 event per author
func Latest(events []types.Event) map[string]*types.ProfileInfo {
	profiles := make(map[string]*types.ProfileInfo)
	for i := range events {
		evt := &events[i]
		if evt.Kind != types.KindProfile {
			continue
		}
		if existing, ok := profiles[evt.PubKey]; ok && existing.CreatedAt >= evt.CreatedAt {
			continue
		}
		p, err := Parse(evt)
		if err != nil {
			slog.Debug("profile: bad metadata", "pubkey", nostr.ShortID(evt.PubKey), "error", err)
			continue
		}
		profiles[evt.PubKey] = p
	}
	return profiles
}

// ErrNotProfile is returned by Parse for events of another kind
var ErrNotProfile = errors.New("not a profile event")

// Parse decodes kind-0 content
func Parse(evt *types.Event) (*types.ProfileInfo, error) {
	if evt.Kind != types.KindProfile {
		return nil, ErrNotProfile
	}
	var p types.ProfileInfo
	if err := json.Unmarshal([]byte(evt.Content), &p); err != nil {
		return nil, err
	}
	p.CreatedAt = evt.CreatedAt
	return &p, nil
}

// DisplayName is the profile's name, else display_name, else a shortened npub
func DisplayName(pubkey string, p *types.ProfileInfo) string {
	if name := p.BestName(); name != "" {
		return name
	}
	npub, err := nips.EncodePubkey(pubkey)
	if err != nil {
		return nostr.ShortID(pubkey)
	}
	return nips.ShortBech(npub)
}

// Names resolves display names for pubkeys using already-fetched profiles
func Names(pubkeys []string, profiles map[string]*types.ProfileInfo) map[string]string {
	names := make(map[string]string, len(pubkeys))
	for _, pk := range pubkeys {
		names[pk] = DisplayName(pk, profiles[pk])
	}
	return names
}
