// Package sinks implements progress consumers: progressive output documents,
// run repository persistence, Pub/Sub notifications, Prometheus run metrics,
// and structured logging. Each sink satisfies progress.Sink.
package sinks
