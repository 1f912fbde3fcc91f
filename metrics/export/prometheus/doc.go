// Package prometheus renders goToken engine metrics in the Prometheus text
// exposition format.
//
// [New] wraps an engine and exposes an [http.Handler] for a /metrics route.
// Counters are named gotoken_*_total; mint and verify latency are exported as
// gotoken_mint_latency_seconds and gotoken_verify_latency_seconds.
//
// Nothing is registered in a global registry; callers mount the handler.
package prometheus
