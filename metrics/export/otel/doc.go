// Package otel publishes engine counters and the hashing-latency histogram
// as OpenTelemetry observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// gauge per histogram bucket. A single callback reads
// [codify.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
