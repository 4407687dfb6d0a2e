package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zapboard/internal/board"
	"zapboard/internal/config"
	"zapboard/internal/nips"
	"zapboard/internal/nostr"
	"zapboard/internal/relay/relaytest"
	"zapboard/internal/types"
)

const testSecret = "edc90d06fee17615229c8526dc005d959e4af3bdc0b48c5776c951bcafedec85"

type key struct {
	secret []byte
	pubkey string
}

func newKey(t *testing.T) key {
	t.Helper()
	secret, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	pub, err := nostr.GetPublicKey(secret)
	require.NoError(t, err)
	return key{secret: secret, pubkey: hex.EncodeToString(pub)}
}

func testUser(t *testing.T) key {
	t.Helper()
	secret, err := nostr.ParseSecretKey(testSecret)
	require.NoError(t, err)
	pub, err := nostr.GetPublicKey(secret)
	require.NoError(t, err)
	return key{secret: secret, pubkey: hex.EncodeToString(pub)}
}

func (k key) sign(t *testing.T, kind int, content string, createdAt int64, tags ...[]string) types.Event {
	t.Helper()
	evt, err := nostr.FinalizeEvent(types.UnsignedEvent{
		Kind:      kind,
		Content:   content,
		Tags:      tags,
		CreatedAt: createdAt,
	}, k.secret)
	require.NoError(t, err)
	return *evt
}

func (k key) npub(t *testing.T) string {
	t.Helper()
	npub, err := nips.EncodePubkey(k.pubkey)
	require.NoError(t, err)
	return npub
}

// receipt is a kind 9735 from service for a zap of msats by payer to recipient
func receipt(t *testing.T, service, payer key, recipient string, msats string, createdAt int64) types.Event {
	t.Helper()
	desc, err := json.Marshal(map[string]interface{}{
		"kind":   types.KindZapRequest,
		"pubkey": payer.pubkey,
		"tags":   [][]string{{"p", recipient}, {"amount", msats}},
	})
	require.NoError(t, err)
	return service.sign(t, types.KindZapReceipt, "", createdAt,
		[]string{"p", recipient},
		[]string{"bolt11", "lnbc1"},
		[]string{"description", string(desc)})
}

func writeRelaysConfig(t *testing.T, relays ...string) string {
	t.Helper()
	data, err := json.Marshal(config.RelaysConfig{
		DefaultRelays: relays,
		PublishRelays: relays,
		ProfileRelays: relays,
		ZapRelays:     relays,
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "relays.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func setTestEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("QUERY_TIMEOUT", "2s")
	t.Setenv("PROBE_TIMEOUT", "1s")
	t.Setenv("PUBLISH_WINDOW", "500ms")
	t.Setenv("NWC_TIMEOUT", "2s")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("NOSTR_SECRET_KEY", "")
	t.Setenv("NWC_URI", "")
	t.Setenv("CLIENT_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"zapboard"}, args...))
	return out.String(), err
}

// leaderboardFixture is a relay holding receipts for the test user: alice
// sent 3001 sats over two zaps, carol 1 sat, and the user zapped themselves
type leaderboardFixture struct {
	relay  *relaytest.Relay
	config string
	user   key
	alice  key
	carol  key
}

func newLeaderboardFixture(t *testing.T) *leaderboardFixture {
	t.Helper()
	setTestEnv(t)

	user, alice, carol, service := testUser(t), newKey(t), newKey(t), newKey(t)
	r := relaytest.New(relaytest.WithEvents(
		receipt(t, service, alice, user.pubkey, "3000000", 1700000300),
		receipt(t, service, alice, user.pubkey, "1000", 1700000200),
		receipt(t, service, carol, user.pubkey, "500", 1700000400),
		receipt(t, service, user, user.pubkey, "9000000", 1700000500),
		alice.sign(t, types.KindProfile, `{"name":"alice"}`, 1700000000),
		user.sign(t, types.KindProfile, `{"display_name":"Zap Star"}`, 1700000000),
	))
	t.Cleanup(r.Close)

	return &leaderboardFixture{
		relay:  r,
		config: writeRelaysConfig(t, r.URL()),
		user:   user,
		alice:  alice,
		carol:  carol,
	}
}

func TestLeaderboardCommand(t *testing.T) {
	f := newLeaderboardFixture(t)

	out, err := runApp(t, "--relays-config", f.config, "leaderboard", "--no-probe", f.user.npub(t))
	require.NoError(t, err)

	assert.Contains(t, out, "Top zappers of Zap Star")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "3,001")
	assert.Contains(t, out, nips.ShortBech(f.carol.npub(t)))
	assert.Contains(t, out, "Total: 3,002 sats from top 2 zappers")
	assert.Contains(t, out, "Zaps counted since 2023-11-14")
	assert.Less(t, strings.Index(out, "alice"), strings.Index(out, nips.ShortBech(f.carol.npub(t))))
}

func TestLeaderboardUsesSecretKeyWhenNoArgument(t *testing.T) {
	f := newLeaderboardFixture(t)

	out, err := runApp(t, "--relays-config", f.config, "--sec", testSecret, "leaderboard")
	require.NoError(t, err)
	assert.Contains(t, out, "RELAY")
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "alice")
}

func TestLeaderboardJSON(t *testing.T) {
	f := newLeaderboardFixture(t)

	out, err := runApp(t, "--relays-config", f.config, "leaderboard", "--json", "--limit", "1", f.user.pubkey)
	require.NoError(t, err)

	var b board.Board
	require.NoError(t, json.Unmarshal([]byte(out), &b))
	require.Len(t, b.Entries, 1)
	assert.Equal(t, board.Entry{
		Rank:   1,
		Pubkey: f.alice.pubkey,
		Npub:   f.alice.npub(t),
		Name:   "alice",
		Sats:   3001,
	}, b.Entries[0])
	assert.Equal(t, int64(3001), b.TotalSats)
}

func TestLeaderboardHTML(t *testing.T) {
	f := newLeaderboardFixture(t)
	path := filepath.Join(t.TempDir(), "board.html")

	_, err := runApp(t, "--relays-config", f.config, "leaderboard", "--no-probe", "--html", path, f.user.pubkey)
	require.NoError(t, err)

	page, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<table>")
	assert.Contains(t, string(page), "alice")
	assert.Contains(t, string(page), "Top zappers of Zap Star")
}

func TestLeaderboardNeedsPubkey(t *testing.T) {
	f := newLeaderboardFixture(t)

	_, err := runApp(t, "--relays-config", f.config, "leaderboard")
	assert.ErrorContains(t, err, "no pubkey given")

	_, err = runApp(t, "--relays-config", f.config, "leaderboard", "npub1nope")
	assert.ErrorContains(t, err, "invalid pubkey")
}

func TestProbeCommand(t *testing.T) {
	setTestEnv(t)
	r := relaytest.New()
	defer r.Close()

	out, err := runApp(t, "--relays-config", writeRelaysConfig(t, r.URL()), "probe", r.URL(), "ws://127.0.0.1:1", "nonsense")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "connected")
	assert.Contains(t, lines[2], "error")
	assert.Contains(t, lines[3], "invalid relay url")
}

func TestWhoami(t *testing.T) {
	f := newLeaderboardFixture(t)

	out, err := runApp(t, "--relays-config", f.config, "--sec", testSecret, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Zap Star\n"+f.user.npub(t)+"\n", out)

	out, err = runApp(t, "--relays-config", f.config, "whoami", f.carol.pubkey)
	require.NoError(t, err)
	assert.Contains(t, out, nips.ShortBech(f.carol.npub(t)))
}

func TestPostPublishesNote(t *testing.T) {
	setTestEnv(t)
	r := relaytest.New()
	defer r.Close()

	out, err := runApp(t, "--relays-config", writeRelaysConfig(t, r.URL()), "--sec", testSecret, "post", "hello", "world")
	require.NoError(t, err)
	assert.Contains(t, out, "to 1/1 relays")

	received := r.Received()
	require.Len(t, received, 1)
	assert.Equal(t, types.KindNote, received[0].Kind)
	assert.Equal(t, "hello world", received[0].Content)
	assert.Equal(t, testUser(t).pubkey, received[0].PubKey)
	assert.Contains(t, received[0].Tags, []string{"client", "zapboard"})
}

func TestPostPrefersRelayListWriteRelays(t *testing.T) {
	setTestEnv(t)
	user := testUser(t)
	outbox := relaytest.New()
	defer outbox.Close()
	index := relaytest.New(relaytest.WithEvents(
		user.sign(t, types.KindRelayList, "", 1700000000,
			[]string{"r", outbox.URL(), "write"}),
	))
	defer index.Close()

	out, err := runApp(t, "--relays-config", writeRelaysConfig(t, index.URL()), "--sec", testSecret, "post", "gm")
	require.NoError(t, err)
	assert.Contains(t, out, "to 1/1 relays")

	assert.Len(t, outbox.Received(), 1)
	assert.Empty(t, index.Received())
}

func TestPostWithoutAcksStillSucceeds(t *testing.T) {
	setTestEnv(t)
	r := relaytest.New(relaytest.Silent())
	defer r.Close()

	out, err := runApp(t, "--relays-config", writeRelaysConfig(t, r.URL()), "--sec", testSecret, "--verbose", "post", "anyone?")
	require.NoError(t, err)
	assert.Contains(t, out, "to 0/1 relays")
}

func TestPostRequiresKeyAndText(t *testing.T) {
	setTestEnv(t)
	r := relaytest.New()
	defer r.Close()
	cfg := writeRelaysConfig(t, r.URL())

	_, err := runApp(t, "--relays-config", cfg, "post", "hi")
	assert.ErrorContains(t, err, "NOSTR_SECRET_KEY")

	_, err = runApp(t, "--relays-config", cfg, "--sec", testSecret, "post", "  ")
	assert.ErrorContains(t, err, "nothing to post")
}

func TestShareDryRun(t *testing.T) {
	f := newLeaderboardFixture(t)

	out, err := runApp(t, "--relays-config", f.config, "--sec", testSecret, "share", "--dry-run", "--with-sats")
	require.NoError(t, err)

	assert.Contains(t, out, "My top 2 zappers")
	assert.Contains(t, out, "1. nostr:"+f.alice.npub(t)+" (3,001 sats)")
	assert.Contains(t, out, "2. nostr:"+f.carol.npub(t)+" (1 sats)")
	assert.Empty(t, f.relay.Received())
}

func TestSharePublishes(t *testing.T) {
	f := newLeaderboardFixture(t)

	out, err := runApp(t, "--relays-config", f.config, "--sec", testSecret, "share")
	require.NoError(t, err)
	assert.Contains(t, out, "to 1/1 relays")

	received := f.relay.Received()
	require.Len(t, received, 1)
	assert.True(t, strings.HasPrefix(received[0].Content, "My top 2 zappers"))
	assert.NotContains(t, received[0].Content, "sats)")
}

func TestShareWithoutZaps(t *testing.T) {
	setTestEnv(t)
	r := relaytest.New()
	defer r.Close()

	_, err := runApp(t, "--relays-config", writeRelaysConfig(t, r.URL()), "--sec", testSecret, "share")
	assert.ErrorContains(t, err, "no zaps found")
}

// lightningAddress serves alice@host with a fixed invoice
type lightningAddress struct {
	server *httptest.Server

	mu         sync.Mutex
	amount     string
	zapRequest string
}

const testInvoice = "lnbc210n1pjzapboardtest"

func newLightningAddress(t *testing.T) *lightningAddress {
	t.Helper()
	la := &lightningAddress{}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/lnurlp/alice", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tag":            "payRequest",
			"callback":       la.server.URL + "/callback",
			"minSendable":    1000,
			"maxSendable":    100000000,
			"metadata":       `[["text/plain","alice"]]`,
			"allowsNostr":    true,
			"commentAllowed": 5,
		})
	})
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		la.mu.Lock()
		la.amount = r.URL.Query().Get("amount")
		la.zapRequest = r.URL.Query().Get("nostr")
		la.mu.Unlock()
		fmt.Fprintf(w, `{"pr":%q}`, testInvoice)
	})
	la.server = httptest.NewServer(mux)
	t.Cleanup(la.server.Close)
	return la
}

func (la *lightningAddress) address() string {
	return "alice@" + strings.TrimPrefix(la.server.URL, "http://")
}

func (la *lightningAddress) lastRequest() (string, types.Event) {
	la.mu.Lock()
	defer la.mu.Unlock()
	var evt types.Event
	json.Unmarshal([]byte(la.zapRequest), &evt)
	return la.amount, evt
}

// newWalletRelay answers every NWC request with preimage
func newWalletRelay(t *testing.T, wallet key, preimage string) *relaytest.Relay {
	t.Helper()
	r := relaytest.New(relaytest.OnEvent(func(r *relaytest.Relay, evt *types.Event) (bool, string, bool) {
		clientPub, _ := hex.DecodeString(evt.PubKey)
		shared, err := nostr.GetNip04SharedSecret(wallet.secret, clientPub)
		if err != nil {
			return false, "bad pubkey", true
		}
		if _, err := nostr.Nip04Decrypt(evt.Content, shared); err != nil {
			return false, "bad payload", true
		}
		body := fmt.Sprintf(`{"result_type":"pay_invoice","result":{"preimage":%q}}`, preimage)
		content, err := nostr.Nip04Encrypt(body, shared)
		if err != nil {
			return false, "encrypt", true
		}
		resp := wallet.sign(t, types.KindNWCResponse, content, time.Now().Unix(),
			[]string{"p", evt.PubKey}, []string{"e", evt.ID})
		time.AfterFunc(20*time.Millisecond, func() { r.Broadcast(resp) })
		return true, "", true
	}))
	t.Cleanup(r.Close)
	return r
}

func TestZapPaysOverNWC(t *testing.T) {
	setTestEnv(t)
	la := newLightningAddress(t)
	recipient := newKey(t)
	profiles := relaytest.New(relaytest.WithEvents(
		recipient.sign(t, types.KindProfile, fmt.Sprintf(`{"name":"alice","lud16":%q}`, la.address()), 1700000000),
	))
	defer profiles.Close()

	wallet := newKey(t)
	walletRelay := newWalletRelay(t, wallet, "feedface")
	uri := fmt.Sprintf("nostr+walletconnect://%s?relay=%s&secret=%x", wallet.pubkey, walletRelay.URL(), newKey(t).secret)

	out, err := runApp(t, "--relays-config", writeRelaysConfig(t, profiles.URL()), "--sec", testSecret,
		"zap", "--amount", "21", "--comment", "thanks a lot", "--lnurl-insecure", "--nwc", uri, recipient.npub(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Zapped alice 21 sats")
	assert.Contains(t, out, "preimage: feedface")

	amount, zapRequest := la.lastRequest()
	assert.Equal(t, "21000", amount)
	assert.Equal(t, types.KindZapRequest, zapRequest.Kind)
	assert.Equal(t, "thank", zapRequest.Content)
	assert.Equal(t, testUser(t).pubkey, zapRequest.PubKey)
	p, _ := zapRequest.TagValue("p")
	assert.Equal(t, recipient.pubkey, p)

	requests := walletRelay.Received()
	require.Len(t, requests, 1)
	assert.Equal(t, types.KindNWCRequest, requests[0].Kind)
}

func TestZapWithoutWalletPrintsInvoice(t *testing.T) {
	setTestEnv(t)
	la := newLightningAddress(t)
	r := relaytest.New()
	defer r.Close()
	recipient := newKey(t)

	out, err := runApp(t, "--relays-config", writeRelaysConfig(t, r.URL()), "--sec", testSecret,
		"zap", "--address", la.address(), "--lnurl-insecure", "--qr", recipient.pubkey)
	require.NoError(t, err)
	assert.Contains(t, out, testInvoice)
	assert.Contains(t, out, "█")
	assert.Contains(t, out, "No wallet connected")
	assert.Contains(t, out, "21 sats")
}

func TestZapErrors(t *testing.T) {
	setTestEnv(t)
	r := relaytest.New()
	defer r.Close()
	cfg := writeRelaysConfig(t, r.URL())
	recipient := newKey(t)

	_, err := runApp(t, "--relays-config", cfg, "--sec", testSecret, "zap", recipient.pubkey)
	assert.ErrorContains(t, err, "has no lightning address")

	_, err = runApp(t, "--relays-config", cfg, "--sec", testSecret, "zap", "--amount", "0", recipient.pubkey)
	assert.ErrorContains(t, err, "positive")

	_, err = runApp(t, "--relays-config", cfg, "--sec", testSecret, "zap", "--amount", "9223372036854775807", recipient.pubkey)
	assert.ErrorContains(t, err, "at most 2,100,000,000,000,000 sats")

	_, err = runApp(t, "--relays-config", cfg, "zap", recipient.pubkey)
	assert.ErrorContains(t, err, "NOSTR_SECRET_KEY")

	_, err = runApp(t, "--relays-config", cfg, "--sec", testSecret, "zap")
	assert.ErrorContains(t, err, "exactly one recipient")
}
