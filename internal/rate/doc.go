// Package rate provides the Redis-backed failure counters used to throttle
// clients that keep presenting rejected tokens.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// "<prefix>:<client key>" with the default prefix "gtr".
package rate
