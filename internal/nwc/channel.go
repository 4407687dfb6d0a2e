package nwc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"zapboard/internal/metrics"
	"zapboard/internal/nostr"
	"zapboard/internal/relay"
	"zapboard/internal/types"
)

// DefaultTimeout is how long Pay waits for the wallet's response
const DefaultTimeout = 15 * time.Second

const methodPayInvoice = "pay_invoice"

// State of one payment
type State int32

const (
	StateIdle State = iota
	StateConnected
	StateAwaitingResponse
	StateSettled
	StateTimedOut
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateSettled:
		return "settled"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether s is an end state
func (s State) Terminal() bool {
	return s >= StateSettled
}

// PaymentResult is a settled payment
type PaymentResult struct {
	Preimage string `json:"preimage"`
	FeesPaid int64  `json:"fees_paid,omitempty"` // msats, when the wallet reports it
}

// request is the NIP-47 JSON-RPC request
type request struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type payInvoiceParams struct {
	Invoice string `json:"invoice"`
}

// response is the NIP-47 JSON-RPC response
type response struct {
	ResultType string          `json:"result_type"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *WalletError    `json:"error,omitempty"`
}

// Channel sends pay requests to wallets. The zero value is usable.
type Channel struct {
	Dialer  *websocket.Dialer
	Timeout time.Duration
}

// NewChannel returns a Channel with the given response timeout
func NewChannel(timeout time.Duration) *Channel {
	return &Channel{Dialer: websocket.DefaultDialer, Timeout: timeout}
}

func (ch *Channel) timeout() time.Duration {
	if ch == nil || ch.Timeout <= 0 {
		return DefaultTimeout
	}
	return ch.Timeout
}

// outcome is what the winning terminal transition carries
type outcome struct {
	state  State
	result *PaymentResult
	err    error
}

// payment is one request/response exchange. Its state moves forward only;
// the first goroutine to claim a terminal state owns teardown.
type payment struct {
	state    atomic.Int32
	done     chan outcome
	teardown func()
}

func newPayment(teardown func()) *payment {
	return &payment{
		done:     make(chan outcome, 1),
		teardown: teardown,
	}
}

// advance moves to a non-terminal state unless the payment already ended
func (p *payment) advance(to State) {
	for {
		cur := State(p.state.Load())
		if cur.Terminal() || cur >= to {
			return
		}
		if p.state.CompareAndSwap(int32(cur), int32(to)) {
			return
		}
	}
}

// resolve claims a terminal state. Only the first caller wins; it delivers
// the outcome and schedules teardown on a separate goroutine. Later callers
// are no-ops and get false.
func (p *payment) resolve(o outcome) bool {
	for {
		cur := State(p.state.Load())
		if cur.Terminal() {
			return false
		}
		if p.state.CompareAndSwap(int32(cur), int32(o.state)) {
			break
		}
	}
	p.done <- o
	if p.teardown != nil {
		go p.teardown()
	}
	return true
}

// Pay asks the wallet behind conn to pay invoice and waits for the answer,
// the timeout, or ctx, whichever comes first. Failures are ErrTimeout,
// ErrDecryption, ErrMissingPreimage, *WalletError or *PublishError.
func (ch *Channel) Pay(ctx context.Context, conn *Connection, invoice string) (*PaymentResult, error) {
	if conn == nil {
		return nil, ErrNoConnection
	}

	reqEvent, err := buildRequest(conn, invoice)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithCancel(ctx)

	relayConn, err := relay.Dial(opCtx, ch.Dialer, conn.Relay)
	if err != nil {
		cancel()
		metrics.NWCFailedTotal.Add(1)
		return nil, &PublishError{Relay: conn.Relay, Err: err}
	}

	res := &resources{conn: relayConn, cancel: cancel}
	p := newPayment(func() {
		res.release()
		slog.Debug("nwc: connection closed", "relay", conn.Relay, "request", nostr.ShortID(reqEvent.ID))
	})
	p.advance(StateConnected)

	subID, err := relayConn.Subscribe("nwc", types.Filter{
		Kinds:   []int{types.KindNWCResponse},
		Authors: []string{conn.WalletPubkey},
		ETags:   []string{reqEvent.ID},
	})
	if err != nil {
		p.resolve(outcome{state: StateFailed, err: &PublishError{Relay: conn.Relay, Err: err}})
		return finish(p)
	}
	res.setSubscription(subID)

	go ch.readResponses(p, relayConn, conn, subID, reqEvent.ID)

	res.setTimer(time.AfterFunc(ch.timeout(), func() {
		p.resolve(outcome{state: StateTimedOut, err: ErrTimeout})
	}))
	go func() {
		<-opCtx.Done()
		p.resolve(outcome{state: StateFailed, err: ctx.Err()})
	}()

	p.advance(StateAwaitingResponse)
	if err := relayConn.Publish(reqEvent); err != nil {
		p.resolve(outcome{state: StateFailed, err: &PublishError{Relay: conn.Relay, Err: err}})
	} else {
		slog.Debug("nwc: request sent", "relay", conn.Relay, "request", nostr.ShortID(reqEvent.ID))
	}

	return finish(p)
}

// resources are released by whichever goroutine resolves the payment
type resources struct {
	mu       sync.Mutex
	conn     *relay.Conn
	cancel   context.CancelFunc
	subID    string
	timer    *time.Timer
	released bool
}

func (r *resources) setSubscription(subID string) {
	r.mu.Lock()
	r.subID = subID
	r.mu.Unlock()
}

// setTimer stops t right away if the payment already ended
func (r *resources) setTimer(t *time.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		t.Stop()
		return
	}
	r.timer = t
}

func (r *resources) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.subID != "" {
		r.conn.Unsubscribe(r.subID)
	}
	r.conn.Close()
	r.cancel()
}

// finish waits for the terminal outcome and records it
func finish(p *payment) (*PaymentResult, error) {
	o := <-p.done
	switch o.state {
	case StateSettled:
		metrics.NWCSettledTotal.Add(1)
		slog.Info("nwc: payment settled")
	case StateTimedOut:
		metrics.NWCTimedOutTotal.Add(1)
		slog.Warn("nwc: payment timed out")
	default:
		metrics.NWCFailedTotal.Add(1)
		slog.Warn("nwc: payment failed", "error", o.err)
	}
	return o.result, o.err
}

// readResponses routes relay frames for this payment until the connection closes
func (ch *Channel) readResponses(p *payment, rc *relay.Conn, conn *Connection, subID, requestID string) {
	for {
		msg, err := rc.ReadMessage()
		if err != nil {
			// A dropped connection is left to the timer
			slog.Debug("nwc: read loop exiting", "error", err)
			return
		}

		switch msg.Type {
		case relay.MsgOK:
			if msg.EventID == requestID && !msg.OK {
				p.resolve(outcome{state: StateFailed, err: &PublishError{Relay: conn.Relay, Reason: msg.Reason}})
				return
			}
		case relay.MsgEvent:
			if msg.SubID != subID || msg.Event == nil {
				continue
			}
			evt := msg.Event
			if evt.Kind != types.KindNWCResponse || evt.PubKey != conn.WalletPubkey {
				continue
			}
			if e, _ := evt.TagValue("e"); e != requestID {
				continue
			}
			p.resolve(handleResponse(conn, evt))
			return
		case relay.MsgClosed:
			if msg.SubID == subID {
				slog.Debug("nwc: subscription closed by relay", "reason", msg.Reason)
			}
		case relay.MsgAuth:
			slog.Debug("nwc: relay requested AUTH, ignoring")
		}
	}
}

// handleResponse decrypts and interprets a wallet response
func handleResponse(conn *Connection, evt *types.Event) outcome {
	plaintext, err := decrypt(conn, evt.Content)
	if err != nil {
		return outcome{state: StateFailed, err: fmt.Errorf("%w: %v", ErrDecryption, err)}
	}

	var resp response
	if err := json.Unmarshal([]byte(plaintext), &resp); err != nil {
		return outcome{state: StateFailed, err: fmt.Errorf("%w: %v", ErrDecryption, err)}
	}
	if resp.Error != nil {
		return outcome{state: StateFailed, err: resp.Error}
	}

	var result PaymentResult
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return outcome{state: StateFailed, err: fmt.Errorf("%w: %v", ErrMissingPreimage, err)}
		}
	}
	if result.Preimage == "" {
		return outcome{state: StateFailed, err: ErrMissingPreimage}
	}
	return outcome{state: StateSettled, result: &result}
}

// decrypt handles both NIP-04 and NIP-44 payloads
func decrypt(conn *Connection, content string) (string, error) {
	if nostr.IsNip04Payload(content) {
		return nostr.Nip04Decrypt(content, conn.nip04Key)
	}
	return nostr.Nip44Decrypt(content, conn.conversationKey)
}

// buildRequest encrypts a pay_invoice request to the wallet and signs it with the connection secret
func buildRequest(conn *Connection, invoice string) (*types.Event, error) {
	payload, err := json.Marshal(request{
		Method: methodPayInvoice,
		Params: payInvoiceParams{Invoice: invoice},
	})
	if err != nil {
		return nil, err
	}

	encrypted, err := nostr.Nip04Encrypt(string(payload), conn.nip04Key)
	if err != nil {
		return nil, fmt.Errorf("encrypt request: %w", err)
	}

	return nostr.FinalizeEvent(types.UnsignedEvent{
		Kind:      types.KindNWCRequest,
		Content:   encrypted,
		Tags:      [][]string{{"p", conn.WalletPubkey}},
		CreatedAt: time.Now().Unix(),
	}, conn.secret)
}
