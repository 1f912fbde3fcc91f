// Package otel publishes goToken engine metrics through an OpenTelemetry
// meter.
//
// [New] registers one observable counter per engine counter and, per latency
// histogram, a cumulative bucket gauge keyed by the "le" attribute plus a
// count gauge. A single callback reads Engine.MetricsSnapshot on every
// collection. Callers own the MeterProvider.
package otel
