// Package sinks implements progress consumers: structured logging,
// Prometheus collectors, source_performance persistence and the dashboard
// broadcast. Each satisfies progress.Sink.
package sinks
