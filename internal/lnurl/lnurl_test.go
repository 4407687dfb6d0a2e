package lnurl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zapboard/internal/nips"
	"zapboard/internal/nostr"
	"zapboard/internal/signer"
	"zapboard/internal/types"
)

const (
	testSecret    = "edc90d06fee17615229c8526dc005d959e4af3bdc0b48c5776c951bcafedec85"
	testRecipient = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"
)

// fakeService serves a lightning address "alice" with a configurable first-stage body
type fakeService struct {
	server       *httptest.Server
	callbackHits atomic.Int32

	mu           sync.Mutex
	payInfo      map[string]interface{}
	callbackBody string
	lastAmount   string
	lastNostr    string
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{callbackBody: `{"pr":"lnbc210n1pj9example","routes":[]}`}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/lnurlp/alice", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.payInfo)
	})
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		f.callbackHits.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastAmount = r.URL.Query().Get("amount")
		f.lastNostr = r.URL.Query().Get("nostr")
		w.Write([]byte(f.callbackBody))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	f.update(func(f *fakeService) {
		f.payInfo = map[string]interface{}{
			"tag":         "payRequest",
			"callback":    f.server.URL + "/callback",
			"minSendable": 1000,
			"maxSendable": 100000000,
			"metadata":    `[["text/plain","alice"]]`,
			"allowsNostr": true,
		}
	})
	return f
}

func (f *fakeService) update(fn func(f *fakeService)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeService) lastRequest() (amount, zapRequest string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAmount, f.lastNostr
}

func (f *fakeService) address() string {
	return "alice@" + strings.TrimPrefix(f.server.URL, "http://")
}

func testResolver() *Resolver {
	client := NewClient(0)
	client.Scheme = "http"
	client.AllowPrivateHosts = true
	return NewResolver(client, []string{"wss://relay.damus.io", "wss://nos.lol"})
}

func testSigner(t *testing.T) *signer.KeySigner {
	s, err := signer.NewKeySigner(testSecret)
	require.NoError(t, err)
	return s
}

func TestResolveInvoice(t *testing.T) {
	svc := newFakeService(t)
	r := testResolver()

	invoice, err := r.ResolveInvoice(context.Background(), svc.address(), 21000, "great post", testRecipient, testSigner(t))
	require.NoError(t, err)
	assert.Equal(t, "lnbc210n1pj9example", invoice)

	amountParam, zapParam := svc.lastRequest()
	assert.Equal(t, "21000", amountParam)

	var zapReq types.Event
	require.NoError(t, json.Unmarshal([]byte(zapParam), &zapReq))
	assert.Equal(t, types.KindZapRequest, zapReq.Kind)
	assert.Equal(t, "great post", zapReq.Content)
	assert.True(t, nostr.ValidateEventSignature(&zapReq))

	p, _ := zapReq.TagValue("p")
	assert.Equal(t, testRecipient, p)
	amount, _ := zapReq.TagValue("amount")
	assert.Equal(t, "21000", amount)
	assert.Contains(t, zapReq.Tags, []string{"relays", "wss://relay.damus.io", "wss://nos.lol"})
}

func TestResolveInvoiceRejectsNonPayRequest(t *testing.T) {
	svc := newFakeService(t)
	svc.update(func(f *fakeService) { f.payInfo["tag"] = "other" })

	_, err := testResolver().ResolveInvoice(context.Background(), svc.address(), 21000, "", testRecipient, testSigner(t))
	assert.ErrorIs(t, err, ErrInvalidPaymentService)
	assert.Zero(t, svc.callbackHits.Load(), "callback must not be requested")
}

func TestResolveInvoiceRejectsMissingCallback(t *testing.T) {
	svc := newFakeService(t)
	svc.update(func(f *fakeService) { delete(f.payInfo, "callback") })

	_, err := testResolver().ResolveInvoice(context.Background(), svc.address(), 21000, "", testRecipient, testSigner(t))
	assert.ErrorIs(t, err, ErrInvalidPaymentService)
	assert.Zero(t, svc.callbackHits.Load())
}

func TestResolveInvoiceServiceErrors(t *testing.T) {
	svc := newFakeService(t)
	svc.update(func(f *fakeService) {
		f.payInfo = map[string]interface{}{"status": "ERROR", "reason": "user not found"}
	})

	_, err := testResolver().ResolveInvoice(context.Background(), svc.address(), 21000, "", testRecipient, testSigner(t))
	assert.ErrorIs(t, err, ErrInvalidPaymentService)
	assert.Contains(t, err.Error(), "user not found")
}

func TestResolveInvoiceWithoutPR(t *testing.T) {
	svc := newFakeService(t)
	svc.update(func(f *fakeService) { f.callbackBody = `{"routes":[]}` })

	_, err := testResolver().ResolveInvoice(context.Background(), svc.address(), 21000, "", testRecipient, testSigner(t))
	assert.ErrorIs(t, err, ErrInvoiceUnavailable)
	assert.Equal(t, int32(1), svc.callbackHits.Load())

	svc.update(func(f *fakeService) { f.callbackBody = `{"status":"ERROR","reason":"amount too low"}` })
	_, err = testResolver().ResolveInvoice(context.Background(), svc.address(), 21000, "", testRecipient, testSigner(t))
	assert.ErrorIs(t, err, ErrInvoiceUnavailable)
	assert.Contains(t, err.Error(), "amount too low")
}

func TestResolveInvoiceEnforcesSendableRange(t *testing.T) {
	svc := newFakeService(t)
	r := testResolver()

	_, err := r.ResolveInvoice(context.Background(), svc.address(), 500, "", testRecipient, testSigner(t))
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	_, err = r.ResolveInvoice(context.Background(), svc.address(), 200000000, "", testRecipient, testSigner(t))
	assert.ErrorIs(t, err, ErrAmountOutOfRange)
	assert.Zero(t, svc.callbackHits.Load())

	// Services that advertise no bounds accept any amount
	svc.update(func(f *fakeService) {
		delete(f.payInfo, "minSendable")
		delete(f.payInfo, "maxSendable")
	})
	_, err = r.ResolveInvoice(context.Background(), svc.address(), 500, "", testRecipient, testSigner(t))
	assert.NoError(t, err)
}

func TestResolveInvoiceInvalidAddress(t *testing.T) {
	r := testResolver()
	for _, addr := range []string{"", "alice", "@example.com", "alice@"} {
		_, err := r.ResolveInvoice(context.Background(), addr, 1000, "", testRecipient, testSigner(t))
		assert.ErrorIs(t, err, ErrInvalidAddress, addr)
	}
}

func TestAddressURL(t *testing.T) {
	c := NewClient(0)
	u, err := c.AddressURL("Alice@getalby.com")
	require.NoError(t, err)
	assert.Equal(t, "https://getalby.com/.well-known/lnurlp/alice", u)
}

func TestLud06(t *testing.T) {
	svc := newFakeService(t)
	endpoint := svc.server.URL + "/.well-known/lnurlp/alice"

	data, err := nips.Bech32ConvertBits([]byte(endpoint), 8, 5, true)
	require.NoError(t, err)
	lud06, err := nips.Bech32Encode("lnurl", data)
	require.NoError(t, err)

	decoded, err := DecodeLud06(strings.ToUpper(lud06))
	require.NoError(t, err)
	assert.Equal(t, endpoint, decoded)

	invoice, err := testResolver().ResolveLud06Invoice(context.Background(), lud06, 21000, "", testRecipient, testSigner(t))
	require.NoError(t, err)
	assert.Equal(t, "lnbc210n1pj9example", invoice)

	_, err = DecodeLud06("lnbc1xyz")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestSSRFValidation(t *testing.T) {
	svc := newFakeService(t)

	c := NewClient(0)
	c.Scheme = "http"
	_, err := c.ResolveAddress(context.Background(), svc.address())
	assert.ErrorIs(t, err, ErrUnsafeURL)

	for _, u := range []string{
		"http://localhost/x",
		"http://10.0.0.1/x",
		"http://169.254.169.254/latest",
		"http://printer.local/x",
		"ftp://example.com/x",
	} {
		assert.Error(t, ValidateExternalURL(u), u)
	}
	assert.NoError(t, ValidateExternalURL("https://getalby.com/.well-known/lnurlp/alice"))
}

func TestCommentTruncatedToAllowedLength(t *testing.T) {
	svc := newFakeService(t)
	svc.update(func(f *fakeService) { f.payInfo["commentAllowed"] = 5 })

	_, err := testResolver().ResolveInvoice(context.Background(), svc.address(), 21000, "héllo world", testRecipient, testSigner(t))
	require.NoError(t, err)

	_, zapParam := svc.lastRequest()
	var zapReq types.Event
	require.NoError(t, json.Unmarshal([]byte(zapParam), &zapReq))
	assert.Equal(t, "héllo", zapReq.Content)
}
