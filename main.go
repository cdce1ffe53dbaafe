// Command meeting-crawler collects public meeting records from municipal
// websites.
//
// Architecture overview:
//   - Fetch: a paced browser session (chromedp, or colly for static sites) loads each page with bounded retries,
//     rotating identity on challenges and waiting for JS-rendered calendars when the heuristic detector asks for it.
//   - Extract: site modules handle known hosts (BoardDocs, eBoard, Facebook pages and a few city sites); every other
//     site goes through the universal extractor, which tries structured markup, tables, lists, and calendar grids and
//     then follows year selectors, pagination, and detail pages within the page budget.
//   - Progress: every run emits RUN_START, SITE_DONE, and RUN_DONE events to a hub that feeds the log, the output
//     document (local, GCS, or memory), the run store (Postgres or memory), Pub/Sub, and Prometheus.
//   - Serve mode: the HTTP API queues runs on a bounded in-memory queue drained by a fixed worker pool, each worker
//     owning its own browser. Runs can be polled, read site by site, and canceled.
//
// Quick checklist:
//   - Configure with a YAML file (--config) or MEETINGS_* environment variables, e.g. MEETINGS_CRAWLER_BROWSER=static,
//     MEETINGS_OUTPUT_PROVIDER=gcs, MEETINGS_DB_DSN, MEETINGS_PUBSUB_TOPIC_NAME.
//   - One request: meeting-crawler scrape --input request.json --output city.json
//   - Service: meeting-crawler serve (listens on PORT when set and drains workers on SIGTERM).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/meeting-crawler/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
