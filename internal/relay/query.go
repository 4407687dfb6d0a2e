package relay

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"zapboard/internal/metrics"
	"zapboard/internal/nostr"
	"zapboard/internal/types"
)

// Default timings
const (
	DefaultQueryTimeout  = 10 * time.Second
	DefaultProbeTimeout  = 4 * time.Second
	DefaultPublishWindow = 5 * time.Second
)

// Client fans queries and publishes out across relays. The zero value is usable.
type Client struct {
	Dialer        *websocket.Dialer
	QueryTimeout  time.Duration
	ProbeTimeout  time.Duration
	PublishWindow time.Duration
}

// NewClient returns a Client with default timings
func NewClient() *Client {
	return &Client{
		Dialer:        websocket.DefaultDialer,
		QueryTimeout:  DefaultQueryTimeout,
		ProbeTimeout:  DefaultProbeTimeout,
		PublishWindow: DefaultPublishWindow,
	}
}

func (c *Client) dialer() *websocket.Dialer {
	if c == nil || c.Dialer == nil {
		return websocket.DefaultDialer
	}
	return c.Dialer
}

func (c *Client) queryTimeout() time.Duration {
	if c == nil || c.QueryTimeout <= 0 {
		return DefaultQueryTimeout
	}
	return c.QueryTimeout
}

func (c *Client) probeTimeout() time.Duration {
	if c == nil || c.ProbeTimeout <= 0 {
		return DefaultProbeTimeout
	}
	return c.ProbeTimeout
}

func (c *Client) publishWindow() time.Duration {
	if c == nil || c.PublishWindow <= 0 {
		return DefaultPublishWindow
	}
	return c.PublishWindow
}

// Query sends filter to every relay concurrently and merges the results.
// Each relay finishes on EOSE or when the query timeout (measured from the
// start of the call) expires; failures of individual relays are logged and
// skipped. Events are deduplicated by id, their RelaysSeen merged, and
// returned newest first. The bool reports whether every relay sent EOSE.
func (c *Client) Query(ctx context.Context, relays []string, filter types.Filter) ([]types.Event, bool) {
	relays = nostr.NormalizeRelayList(relays)
	if len(relays) == 0 {
		return []types.Event{}, true
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout())
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		byID      = make(map[string]*types.Event)
		order     []string
		eoseCount int
	)

	collect := func(relayURL string, evt *types.Event) {
		mu.Lock()
		defer mu.Unlock()
		if existing, ok := byID[evt.ID]; ok {
			existing.RelaysSeen = appendUnique(existing.RelaysSeen, relayURL)
			return
		}
		cp := *evt
		cp.RelaysSeen = []string{relayURL}
		byID[evt.ID] = &cp
		order = append(order, evt.ID)
	}

	for _, relayURL := range relays {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()
			metrics.RelayQueriesTotal.Add(1)
			gotEOSE, err := c.fetchFromRelay(ctx, relayURL, filter, collect)
			if err != nil {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					metrics.RelayTimeoutsTotal.Add(1)
					slog.Debug("relay: query timed out", "relay", relayURL)
				} else {
					metrics.RelayFailuresTotal.Add(1)
					slog.Debug("relay: query failed", "relay", relayURL, "error", err)
				}
			}
			if gotEOSE {
				mu.Lock()
				eoseCount++
				mu.Unlock()
			}
		}(relayURL)
	}
	wg.Wait()

	events := make([]types.Event, 0, len(order))
	for _, id := range order {
		events = append(events, *byID[id])
	}

	// Sort by created_at DESC, then by ID DESC for tie-break
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID > events[j].ID
	})

	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}

	slog.Debug("relay: query complete", "relays", len(relays), "events", len(events), "eose", eoseCount)
	return events, eoseCount == len(relays)
}

// QueryOne returns the newest event matching filter, or nil if none arrived
func (c *Client) QueryOne(ctx context.Context, relays []string, filter types.Filter) *types.Event {
	events, _ := c.Query(ctx, relays, filter)
	if len(events) == 0 {
		return nil
	}
	return &events[0]
}

// fetchFromRelay runs one subscription until EOSE, CLOSED or ctx expiry
func (c *Client) fetchFromRelay(ctx context.Context, relayURL string, filter types.Filter, collect func(string, *types.Event)) (bool, error) {
	conn, err := Dial(ctx, c.dialer(), relayURL)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	subID, err := conn.Subscribe("q", filter)
	if err != nil {
		return false, err
	}

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			return false, err
		}
		switch msg.Type {
		case MsgEvent:
			if msg.SubID != subID || msg.Event == nil {
				continue
			}
			// Relays are untrusted; keep only what the filter asked for
			if !filter.Matches(msg.Event) {
				metrics.DroppedEventsTotal.Add(1)
				continue
			}
			collect(relayURL, msg.Event)
		case MsgEOSE:
			if msg.SubID == subID {
				conn.Unsubscribe(subID)
				return true, nil
			}
		case MsgClosed:
			if msg.SubID == subID {
				return false, errors.New("subscription closed: " + msg.Reason)
			}
		}
	}
}

// Probe opens a bare connection to each relay with its own timeout and
// reports reachability in input order.
func (c *Client) Probe(ctx context.Context, relays []string) []types.RelayStatus {
	statuses := make([]types.RelayStatus, len(relays))

	var wg sync.WaitGroup
	for i, relayURL := range relays {
		wg.Add(1)
		go func(i int, relayURL string) {
			defer wg.Done()
			statuses[i] = c.probeOne(ctx, relayURL)
		}(i, relayURL)
	}
	wg.Wait()
	return statuses
}

func (c *Client) probeOne(ctx context.Context, relayURL string) types.RelayStatus {
	status := types.RelayStatus{URL: relayURL}

	normalized := nostr.NormalizeRelayURL(relayURL)
	if normalized == "" {
		status.Status = types.RelayStatusError
		status.Error = "invalid relay url"
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout())
	defer cancel()

	ws, _, err := c.dialer().DialContext(ctx, normalized, nil)
	if err != nil {
		status.Status = types.RelayStatusError
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status.Error = "timeout"
		} else {
			status.Error = err.Error()
		}
		return status
	}
	ws.Close()

	status.Status = types.RelayStatusConnected
	return status
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
