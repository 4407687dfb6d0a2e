// Package zap folds NIP-57 zap receipts into a ranked payer leaderboard.
package zap

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"zapboard/internal/metrics"
	"zapboard/internal/nostr"
	"zapboard/internal/types"
)

// DefaultLimit is the leaderboard length
const DefaultLimit = 20

// MaxMsats is the whole 21M BTC supply in msats. No single zap or payer
// total can exceed it; larger amounts are malformed.
const MaxMsats int64 = 21_000_000 * 100_000_000 * 1000

// Reasons a receipt is ignored
var (
	ErrNoDescription  = errors.New("receipt has no description tag")
	ErrBadDescription = errors.New("description is not a zap request")
	ErrNoPayer        = errors.New("zap request has no pubkey")
	ErrBadAmount      = errors.New("zap request amount is missing, not positive or above the BTC supply")
)

// Zapper is one ranked payer
type Zapper struct {
	Pubkey    string `json:"pubkey"`
	TotalSats int64  `json:"total_sats"`
}

// Result is the outcome of one aggregation
type Result struct {
	Ranked []Zapper `json:"ranked"`
	// OldestTimestamp is the earliest created_at among accepted receipts; nil if none
	OldestTimestamp *int64 `json:"oldest_timestamp,omitempty"`
	// TotalSats is the sum over Ranked
	TotalSats int64 `json:"total_sats"`
}

// request is the part of an embedded kind-9734 event the aggregator reads
type request struct {
	PubKey string     `json:"pubkey"`
	Tags   [][]string `json:"tags"`
}

// Payment is what a single valid receipt contributes
type Payment struct {
	ReceiptID string
	Payer     string
	Msats     int64
	CreatedAt int64
}

// ParseReceipt extracts the payer and amount from a kind-9735 receipt. The
// receipt's own pubkey is the payment service; the payer is the pubkey of
// the zap request embedded in the description tag.
func ParseReceipt(receipt *types.Event) (Payment, error) {
	desc, ok := receipt.TagValue("description")
	if !ok || desc == "" {
		return Payment{}, ErrNoDescription
	}

	var req request
	if err := json.Unmarshal([]byte(desc), &req); err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrBadDescription, err)
	}
	if req.PubKey == "" {
		return Payment{}, ErrNoPayer
	}

	amount, ok := types.FindTagValue(req.Tags, "amount")
	if !ok {
		return Payment{}, ErrBadAmount
	}
	msats, err := strconv.ParseInt(amount, 10, 64)
	if err != nil || msats <= 0 || msats > MaxMsats {
		return Payment{}, ErrBadAmount
	}

	return Payment{
		ReceiptID: receipt.ID,
		Payer:     strings.ToLower(req.PubKey),
		Msats:     msats,
		CreatedAt: receipt.CreatedAt,
	}, nil
}

// Aggregate ranks payers by the sats they sent. Receipts are counted once
// per id; malformed receipts and payments from exclude are skipped. Amounts
// are summed in msats per payer and rounded half-up to sats once. Ties rank
// by pubkey ascending. limit <= 0 means DefaultLimit.
func Aggregate(receipts []types.Event, exclude string, limit int) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}

	exclude = strings.ToLower(exclude)
	seen := make(map[string]bool, len(receipts))
	totals := make(map[string]int64)
	var oldest *int64

	for i := range receipts {
		receipt := &receipts[i]
		if seen[receipt.ID] {
			continue
		}
		seen[receipt.ID] = true

		p, err := ParseReceipt(receipt)
		if err != nil {
			metrics.ReceiptsMalformedTotal.Add(1)
			slog.Debug("zap: skipping receipt", "id", nostr.ShortID(receipt.ID), "reason", err)
			continue
		}
		if p.Payer == exclude {
			metrics.ReceiptsSkippedTotal.Add(1)
			continue
		}

		metrics.ReceiptsAcceptedTotal.Add(1)
		totals[p.Payer] = addCapped(totals[p.Payer], p.Msats, MaxMsats)
		if oldest == nil || p.CreatedAt < *oldest {
			ts := p.CreatedAt
			oldest = &ts
		}
	}

	ranked := make([]Zapper, 0, len(totals))
	for pubkey, msats := range totals {
		ranked = append(ranked, Zapper{Pubkey: pubkey, TotalSats: MsatsToSats(msats)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalSats != ranked[j].TotalSats {
			return ranked[i].TotalSats > ranked[j].TotalSats
		}
		return ranked[i].Pubkey < ranked[j].Pubkey
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	var total int64
	for _, z := range ranked {
		total = addCapped(total, z.TotalSats, math.MaxInt64)
	}

	return Result{
		Ranked:          ranked,
		OldestTimestamp: oldest,
		TotalSats:       total,
	}
}

// addCapped adds two non-negative amounts, saturating at limit
func addCapped(a, b, limit int64) int64 {
	if b > limit-a {
		return limit
	}
	return a + b
}

// MsatsToSats rounds half-up
func MsatsToSats(msats int64) int64 {
	return (msats + 500) / 1000
}

// Pubkeys returns the ranked payers' pubkeys in rank order
func (r Result) Pubkeys() []string {
	out := make([]string, len(r.Ranked))
	for i, z := range r.Ranked {
		out[i] = z.Pubkey
	}
	return out
}

// ReceiptFilter selects the zap receipts addressed to recipient
func ReceiptFilter(recipient string, limit int) types.Filter {
	return types.Filter{
		Kinds: []int{types.KindZapReceipt},
		PTags: []string{recipient},
		Limit: limit,
	}
}
