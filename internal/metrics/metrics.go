// Package metrics keeps process-wide counters for relay and payment activity.
package metrics

import (
	"sync/atomic"
)

// Relay metrics
var (
	RelayQueriesTotal  atomic.Int64
	RelayFailuresTotal atomic.Int64
	RelayTimeoutsTotal atomic.Int64
	DroppedEventsTotal atomic.Int64
	PublishAcksTotal   atomic.Int64
)

// Aggregation metrics
var (
	ReceiptsAcceptedTotal  atomic.Int64
	ReceiptsMalformedTotal atomic.Int64
	ReceiptsSkippedTotal   atomic.Int64
)

// Cache metrics
var (
	CacheHitsTotal   atomic.Int64
	CacheMissesTotal atomic.Int64
)

// NWC metrics, one counter per terminal state
var (
	NWCSettledTotal  atomic.Int64
	NWCTimedOutTotal atomic.Int64
	NWCFailedTotal   atomic.Int64
)

// Snapshot returns the current counter values keyed by metric name
func Snapshot() map[string]int64 {
	return map[string]int64{
		"relay_queries_total":      RelayQueriesTotal.Load(),
		"relay_failures_total":     RelayFailuresTotal.Load(),
		"relay_timeouts_total":     RelayTimeoutsTotal.Load(),
		"dropped_events_total":     DroppedEventsTotal.Load(),
		"publish_acks_total":       PublishAcksTotal.Load(),
		"receipts_accepted_total":  ReceiptsAcceptedTotal.Load(),
		"receipts_malformed_total": ReceiptsMalformedTotal.Load(),
		"receipts_skipped_total":   ReceiptsSkippedTotal.Load(),
		"cache_hits_total":         CacheHitsTotal.Load(),
		"cache_misses_total":       CacheMissesTotal.Load(),
		"nwc_settled_total":        NWCSettledTotal.Load(),
		"nwc_timed_out_total":      NWCTimedOutTotal.Load(),
		"nwc_failed_total":         NWCFailedTotal.Load(),
	}
}

// LogAttrs flattens Snapshot into slog key/value pairs
func LogAttrs() []any {
	snap := Snapshot()
	attrs := make([]any, 0, len(snap)*2)
	for k, v := range snap {
		attrs = append(attrs, k, v)
	}
	return attrs
}
