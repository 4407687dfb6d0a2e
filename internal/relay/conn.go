// Package relay talks NIP-01 to relays: fan-out queries, reachability
// probes and best-effort broadcasts.
package relay

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"zapboard/internal/metrics"
	"zapboard/internal/nostr"
	"zapboard/internal/types"
)

// Relay message types
const (
	MsgEvent  = "EVENT"
	MsgEOSE   = "EOSE"
	MsgOK     = "OK"
	MsgClosed = "CLOSED"
	MsgNotice = "NOTICE"
	MsgAuth   = "AUTH"
)

// writeTimeout bounds a single frame write so a stalled relay can't block a sender
const writeTimeout = 10 * time.Second

// ErrConnClosed is returned by reads and writes after Close
var ErrConnClosed = errors.New("relay connection closed")

// Message is a parsed relay-to-client frame
type Message struct {
	Type    string
	SubID   string       // EVENT, EOSE, CLOSED
	Event   *types.Event // EVENT with a valid signature; nil when dropped
	EventID string       // OK
	OK      bool         // OK
	Reason  string       // OK, CLOSED, NOTICE; AUTH challenge
}

// Conn is a single websocket connection to a relay. Writes are serialized;
// reads must come from one goroutine.
type Conn struct {
	ws      *websocket.Conn
	url     string
	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
	stopCtx func() bool
}

// Dial connects to a relay. The connection is closed when ctx ends, which
// unblocks any pending read.
func Dial(ctx context.Context, dialer *websocket.Dialer, relayURL string) (*Conn, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", relayURL, err)
	}
	c := &Conn{ws: ws, url: relayURL}
	c.stopCtx = context.AfterFunc(ctx, func() { c.Close() })
	return c, nil
}

// URL returns the relay URL this connection was dialed with
func (c *Conn) URL() string {
	return c.url
}

// Send writes a JSON array frame, e.g. Send("REQ", subID, filter)
func (c *Conn) Send(parts ...interface{}) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	defer c.ws.SetWriteDeadline(time.Time{})

	return c.ws.WriteJSON(parts)
}

// Subscribe sends a REQ for the filter and returns the generated subscription id
func (c *Conn) Subscribe(prefix string, filter types.Filter) (string, error) {
	subID := prefix + "-" + randomID(4)
	if err := c.Send("REQ", subID, filter.Map()); err != nil {
		return "", err
	}
	return subID, nil
}

// Unsubscribe sends CLOSE for a subscription (best effort)
func (c *Conn) Unsubscribe(subID string) {
	if err := c.Send("CLOSE", subID); err != nil && !errors.Is(err, ErrConnClosed) {
		slog.Debug("relay: CLOSE failed", "relay", c.url, "sub_id", subID, "error", err)
	}
}

// Publish sends an EVENT frame
func (c *Conn) Publish(event *types.Event) error {
	return c.Send("EVENT", event)
}

// ReadMessage blocks for the next frame relevant to a client. Malformed
// frames and unknown types are skipped.
func (c *Conn) ReadMessage() (Message, error) {
	for {
		var msg types.NostrMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if c.isClosed() {
				return Message{}, ErrConnClosed
			}
			return Message{}, err
		}
		if parsed, ok := parseMessage(msg); ok {
			if parsed.Type == MsgEvent && parsed.Event == nil {
				metrics.DroppedEventsTotal.Add(1)
			}
			if parsed.Type == MsgNotice {
				slog.Debug("relay: NOTICE", "relay", c.url, "notice", parsed.Reason)
				continue
			}
			return parsed, nil
		}
	}
}

// Close closes the websocket once; later calls are no-ops
func (c *Conn) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	if c.stopCtx != nil {
		c.stopCtx()
	}
	return c.ws.Close()
}

func (c *Conn) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// parseMessage routes a raw frame into a Message
func parseMessage(msg types.NostrMessage) (Message, bool) {
	if len(msg) < 2 {
		return Message{}, false
	}
	msgType, ok := msg[0].(string)
	if !ok {
		return Message{}, false
	}

	switch msgType {
	case MsgEvent:
		if len(msg) < 3 {
			return Message{}, false
		}
		subID, _ := msg[1].(string)
		out := Message{Type: MsgEvent, SubID: subID}
		if evt, ok := nostr.ParseEventFromInterface(msg[2]); ok {
			out.Event = &evt
		}
		return out, true
	case MsgEOSE:
		subID, _ := msg[1].(string)
		return Message{Type: MsgEOSE, SubID: subID}, true
	case MsgOK:
		if len(msg) < 3 {
			return Message{}, false
		}
		eventID, _ := msg[1].(string)
		success, _ := msg[2].(bool)
		out := Message{Type: MsgOK, EventID: eventID, OK: success}
		if len(msg) >= 4 {
			out.Reason, _ = msg[3].(string)
		}
		return out, true
	case MsgClosed:
		subID, _ := msg[1].(string)
		out := Message{Type: MsgClosed, SubID: subID}
		if len(msg) >= 3 {
			out.Reason, _ = msg[2].(string)
		}
		return out, true
	case MsgNotice, MsgAuth:
		text, _ := msg[1].(string)
		return Message{Type: msgType, Reason: text}, true
	}
	return Message{}, false
}

// randomID creates a short random hex id for subscriptions
func randomID(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
