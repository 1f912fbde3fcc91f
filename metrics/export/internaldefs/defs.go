package internaldefs

import (
	goToken "github.com/MrEthical07/goToken"
)

// CounterDef names an engine counter for export.
type CounterDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// HistogramDef names an engine latency histogram for export.
type HistogramDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for Engine.AuditDropped.
const AuditDroppedName = "gotoken_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: goToken.MetricMintSuccess, Name: "gotoken_mint_success_total", Help: "Tokens minted."},
	{ID: goToken.MetricMintFailure, Name: "gotoken_mint_failure_total", Help: "Failed mint operations."},
	{ID: goToken.MetricVerifySuccess, Name: "gotoken_verify_success_total", Help: "Tokens accepted."},
	{ID: goToken.MetricVerifyFailure, Name: "gotoken_verify_failure_total", Help: "Tokens rejected."},
	{ID: goToken.MetricVerifyFallback, Name: "gotoken_verify_fallback_total", Help: "Tokens accepted by a service other than the selected one."},
	{ID: goToken.MetricBindingFailure, Name: "gotoken_binding_failure_total", Help: "Rejections for a missing or mismatched proof-of-possession binding."},
	{ID: goToken.MetricReplayDetected, Name: "gotoken_replay_detected_total", Help: "Replayed DPoP proofs."},
	{ID: goToken.MetricTemporalFailure, Name: "gotoken_temporal_failure_total", Help: "Rejections for expired or not yet valid tokens."},
	{ID: goToken.MetricSignatureFailure, Name: "gotoken_signature_failure_total", Help: "Rejections for invalid signatures or unknown keys."},
	{ID: goToken.MetricJWKSBackendError, Name: "gotoken_jwks_backend_error_total", Help: "Services whose key set could not be read during a JWKS merge."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goToken.MetricMintLatency, Name: "gotoken_mint_latency_seconds", Help: "Mint latency histogram."},
	{ID: goToken.MetricVerifyLatency, Name: "gotoken_verify_latency_seconds", Help: "Verify latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the
// engine's millisecond buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds as instrument name suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
