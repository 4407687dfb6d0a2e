// Package relaytest provides an in-process NIP-01 relay for tests.
package relaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"zapboard/internal/types"
)

// EventHandler decides the OK answer for a published event. Returning
// respond=false leaves the publisher without an answer.
type EventHandler func(r *Relay, evt *types.Event) (ok bool, reason string, respond bool)

// Option configures a Relay
type Option func(*Relay)

// WithEvents preloads stored events served to REQs
func WithEvents(events ...types.Event) Option {
	return func(r *Relay) {
		r.stored = append(r.stored, events...)
	}
}

// Silent makes the relay accept connections and never answer anything
func Silent() Option {
	return func(r *Relay) { r.silent = true }
}

// SkipEOSE makes the relay serve stored events without ending the stored set
func SkipEOSE() Option {
	return func(r *Relay) { r.skipEOSE = true }
}

// OnEvent installs a handler for published events. The default stores the
// event, broadcasts it to live subscriptions and answers OK true.
func OnEvent(h EventHandler) Option {
	return func(r *Relay) { r.onEvent = h }
}

// Reject answers every published event with OK false
func Reject(reason string) Option {
	return OnEvent(func(*Relay, *types.Event) (bool, string, bool) {
		return false, reason, true
	})
}

// Relay is a minimal relay backed by httptest
type Relay struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	silent   bool
	skipEOSE bool
	onEvent  EventHandler

	mu       sync.Mutex
	stored   []types.Event
	received []types.Event
	clients  map[*client]struct{}
	reqs     int
}

type client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	mu      sync.Mutex
	subs    map[string][]types.Filter
}

func (c *client) send(parts ...interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(parts)
}

// New starts a relay. Callers must Close it.
func New(opts ...Option) *Relay {
	r := &Relay{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.server = httptest.NewServer(http.HandlerFunc(r.serve))
	return r
}

// URL returns the ws:// address of the relay
func (r *Relay) URL() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

// Close disconnects all clients and stops the server
func (r *Relay) Close() {
	r.mu.Lock()
	for c := range r.clients {
		c.ws.Close()
	}
	r.mu.Unlock()
	r.server.Close()
}

// Received returns the events clients have published, in arrival order
func (r *Relay) Received() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.received...)
}

// ReqCount returns the number of REQ messages seen
func (r *Relay) ReqCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reqs
}

// Broadcast stores evt and pushes it to every live subscription it matches
func (r *Relay) Broadcast(evt types.Event) {
	r.mu.Lock()
	r.stored = append(r.stored, evt)
	clients := make([]*client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		var matched []string
		for subID, filters := range c.subs {
			if matchesAny(filters, &evt) {
				matched = append(matched, subID)
			}
		}
		c.mu.Unlock()
		for _, subID := range matched {
			c.send("EVENT", subID, evt)
		}
	}
}

func (r *Relay) serve(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	c := &client{ws: ws, subs: make(map[string][]types.Filter)}

	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.clients, c)
		r.mu.Unlock()
		ws.Close()
	}()

	for {
		var msg []json.RawMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		if r.silent || len(msg) < 2 {
			continue
		}
		var msgType string
		if err := json.Unmarshal(msg[0], &msgType); err != nil {
			continue
		}
		switch msgType {
		case "REQ":
			r.handleReq(c, msg[1:])
		case "CLOSE":
			var subID string
			json.Unmarshal(msg[1], &subID)
			c.mu.Lock()
			delete(c.subs, subID)
			c.mu.Unlock()
		case "EVENT":
			r.handleEvent(c, msg[1])
		}
	}
}

func (r *Relay) handleReq(c *client, args []json.RawMessage) {
	var subID string
	if err := json.Unmarshal(args[0], &subID); err != nil {
		return
	}
	var filters []types.Filter
	limit := 0
	for _, raw := range args[1:] {
		var wf wireFilter
		if err := json.Unmarshal(raw, &wf); err != nil {
			continue
		}
		filters = append(filters, wf.filter())
		if wf.Limit > limit {
			limit = wf.Limit
		}
	}

	c.mu.Lock()
	c.subs[subID] = filters
	c.mu.Unlock()

	r.mu.Lock()
	r.reqs++
	var matched []types.Event
	for i := range r.stored {
		if matchesAny(filters, &r.stored[i]) {
			matched = append(matched, r.stored[i])
		}
	}
	r.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt > matched[j].CreatedAt
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	for _, evt := range matched {
		if err := c.send("EVENT", subID, evt); err != nil {
			return
		}
	}
	if !r.skipEOSE {
		c.send("EOSE", subID)
	}
}

func (r *Relay) handleEvent(c *client, raw json.RawMessage) {
	var evt types.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return
	}

	r.mu.Lock()
	r.received = append(r.received, evt)
	r.mu.Unlock()

	if r.onEvent == nil {
		r.Broadcast(evt)
		c.send("OK", evt.ID, true, "")
		return
	}
	ok, reason, respond := r.onEvent(r, &evt)
	if respond {
		c.send("OK", evt.ID, ok, reason)
	}
}

type wireFilter struct {
	IDs     []string `json:"ids"`
	Authors []string `json:"authors"`
	Kinds   []int    `json:"kinds"`
	PTags   []string `json:"#p"`
	ETags   []string `json:"#e"`
	Since   *int64   `json:"since"`
	Until   *int64   `json:"until"`
	Limit   int      `json:"limit"`
}

func (w wireFilter) filter() types.Filter {
	return types.Filter{
		IDs:     w.IDs,
		Authors: w.Authors,
		Kinds:   w.Kinds,
		PTags:   w.PTags,
		ETags:   w.ETags,
		Since:   w.Since,
		Until:   w.Until,
		Limit:   w.Limit,
	}
}

func matchesAny(filters []types.Filter, evt *types.Event) bool {
	for _, f := range filters {
		if f.Matches(evt) {
			return true
		}
	}
	return false
}
