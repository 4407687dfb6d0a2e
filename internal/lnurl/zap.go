package lnurl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"zapboard/internal/nostr"
	"zapboard/internal/signer"
	"zapboard/internal/types"
)

// ZapRequest drafts the kind-9734 intent sent to the LNURL callback
func ZapRequest(recipientPubkey string, amountMsats int64, comment string, relays []string) types.UnsignedEvent {
	relaysTag := append([]string{"relays"}, relays...)
	return types.UnsignedEvent{
		Kind:    types.KindZapRequest,
		Content: comment,
		Tags: [][]string{
			{"p", recipientPubkey},
			{"amount", strconv.FormatInt(amountMsats, 10)},
			relaysTag,
		},
	}
}

// Resolver turns a lightning address into an invoice for a zap
type Resolver struct {
	Client *Client
	// Relays are advertised in the zap request for the receipt
	Relays []string
}

// NewResolver uses the given client and receipt relays
func NewResolver(client *Client, relays []string) *Resolver {
	return &Resolver{Client: client, Relays: relays}
}

// ResolveInvoice fetches the pay endpoint for address, signs a zap request
// for recipientPubkey with s, and returns the invoice from the callback
// unchanged. No callback request is made when the endpoint is not a valid
// payRequest.
func (r *Resolver) ResolveInvoice(ctx context.Context, address string, amountMsats int64, comment, recipientPubkey string, s signer.Signer) (string, error) {
	info, err := r.Client.ResolveAddress(ctx, address)
	if err != nil {
		return "", err
	}
	return r.invoiceFor(ctx, info, amountMsats, comment, recipientPubkey, s)
}

// ResolveLud06Invoice is ResolveInvoice for a bech32 LNURL
func (r *Resolver) ResolveLud06Invoice(ctx context.Context, lud06 string, amountMsats int64, comment, recipientPubkey string, s signer.Signer) (string, error) {
	info, err := r.Client.ResolveLud06(ctx, lud06)
	if err != nil {
		return "", err
	}
	return r.invoiceFor(ctx, info, amountMsats, comment, recipientPubkey, s)
}

func (r *Resolver) invoiceFor(ctx context.Context, info *PayInfo, amountMsats int64, comment, recipientPubkey string, s signer.Signer) (string, error) {
	if !info.AllowsNostr {
		slog.Debug("lnurl: service does not advertise nostr zaps", "callback", info.Callback)
	}
	if runes := []rune(comment); info.CommentAllowed > 0 && len(runes) > info.CommentAllowed {
		comment = string(runes[:info.CommentAllowed])
	}

	signed, err := s.SignEvent(ctx, ZapRequest(recipientPubkey, amountMsats, comment, r.Relays))
	if err != nil {
		return "", fmt.Errorf("sign zap request: %w", err)
	}
	zapJSON, err := json.Marshal(signed)
	if err != nil {
		return "", fmt.Errorf("encode zap request: %w", err)
	}

	invoice, err := r.Client.RequestInvoice(ctx, info, amountMsats, string(zapJSON))
	if err != nil {
		return "", err
	}
	slog.Info("lnurl: invoice received",
		"zap_request", nostr.ShortID(signed.ID),
		"amount_msats", amountMsats)
	return invoice, nil
}
