package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zapboard/internal/metrics"
	"zapboard/internal/nostr"
	"zapboard/internal/signer"
	"zapboard/internal/types"
)

// ErrNoRelays is returned when neither the signer nor the fallback list
// yields a usable relay
var ErrNoRelays = errors.New("no relays to publish to")

// RejectedError is a relay's explicit OK false for a published event
type RejectedError struct {
	Relay  string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("relay %s rejected event: %s", e.Relay, e.Reason)
}

// ack is one relay's answer to a publish
type ack struct {
	relay string
	ok    bool
	err   error
}

// Publish signs draft and broadcasts it. Targets are the signer's writeable
// relays when it declares any, else fallback. It resolves when every relay
// has acknowledged or the publish window closes, whichever comes first; any
// number of acknowledgements (including zero) counts as a successful
// broadcast. A signing failure returns Success false with the error.
func (c *Client) Publish(ctx context.Context, draft types.UnsignedEvent, fallback []string, s signer.Signer) (types.PublishResult, error) {
	targets, err := signer.WriteRelays(ctx, s)
	if err != nil {
		slog.Debug("relay: signer relay lookup failed, using fallback", "error", err)
		targets = nil
	}
	if len(targets) == 0 {
		targets = nostr.NormalizeRelayList(fallback)
	}
	if len(targets) == 0 {
		return types.PublishResult{}, ErrNoRelays
	}

	event, err := s.SignEvent(ctx, draft)
	if err != nil {
		return types.PublishResult{Targets: len(targets)}, fmt.Errorf("sign event: %w", err)
	}

	result := types.PublishResult{
		Success: true,
		Targets: len(targets),
		EventID: event.ID,
	}
	result.Acknowledged = c.broadcast(ctx, targets, event)
	metrics.PublishAcksTotal.Add(int64(result.Acknowledged))

	slog.Info("relay: published event",
		"event_id", nostr.ShortID(event.ID),
		"kind", event.Kind,
		"acknowledged", result.Acknowledged,
		"targets", result.Targets)
	return result, nil
}

// broadcast sends event to every relay and counts OK true answers. It returns
// early only when every relay acknowledged; otherwise at the window end.
func (c *Client) broadcast(ctx context.Context, relays []string, event *types.Event) int {
	ctx, cancel := context.WithTimeout(ctx, c.publishWindow())
	defer cancel()

	acks := make(chan ack, len(relays))
	for _, relayURL := range relays {
		go func(relayURL string) {
			acks <- c.publishToRelay(ctx, relayURL, event)
		}(relayURL)
	}

	acknowledged, answered := 0, 0
	for acknowledged < len(relays) {
		if answered == len(relays) {
			// A rejection or failure keeps the result open for the full window
			<-ctx.Done()
			return acknowledged
		}
		select {
		case a := <-acks:
			answered++
			if a.ok {
				acknowledged++
			} else if a.err != nil {
				slog.Warn("relay: publish failed", "relay", a.relay, "error", a.err)
			}
		case <-ctx.Done():
			return acknowledged
		}
	}
	return acknowledged
}

// publishToRelay sends EVENT and waits for the matching OK
func (c *Client) publishToRelay(ctx context.Context, relayURL string, event *types.Event) ack {
	conn, err := Dial(ctx, c.dialer(), relayURL)
	if err != nil {
		return ack{relay: relayURL, err: err}
	}
	defer conn.Close()

	if err := conn.Publish(event); err != nil {
		return ack{relay: relayURL, err: err}
	}

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return ack{relay: relayURL, err: err}
		}
		if msg.Type != MsgOK || msg.EventID != event.ID {
			continue
		}
		if !msg.OK {
			return ack{relay: relayURL, err: &RejectedError{Relay: relayURL, Reason: msg.Reason}}
		}
		return ack{relay: relayURL, ok: true}
	}
}
