// Package progress carries run lifecycle events from the scrape worker to
// pluggable sinks: progressive output documents, the run repository, Pub/Sub
// notifications, Prometheus, and logs. Events are delivered in order on one
// background goroutine so sinks observe sites in completion order.
package progress
