// Package api hosts the HTTP server, middleware, and REST handlers of the
// serve mode. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to queue a scrape or universal run, and
//     GET /v1/runs/{run_id}[/sites|/result] to follow it.
//   - POST /v1/runs/{run_id}/cancel to stop a queued or running run.
//   - POST /v1/resolve for batch media URL resolution.
package api
