// Package pipeline runs a scrape request site by site: site modules or the
// seed fetch, extraction, crawl expansion, and deduplication.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/crawl"
	"github.com/JakeFAU/meeting-crawler/internal/extract"
	"github.com/JakeFAU/meeting-crawler/internal/fetch"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/metrics"
	"github.com/JakeFAU/meeting-crawler/internal/sites"
)

// ErrInvalidInput is returned for malformed scrape requests.
var ErrInvalidInput = errors.New("invalid scrape input")

// SeedFetcher retrieves the seed document of a site.
type SeedFetcher interface {
	Fetch(ctx context.Context, pageURL string, timeout time.Duration) fetch.Result
}

// Expander grows a seed extraction into the site's full record list.
type Expander interface {
	Expand(ctx context.Context, seed crawl.Seed, window meeting.Window) []meeting.Record
}

// Modules finds the collection routine for a site, if any.
type Modules interface {
	Lookup(baseURL string) (sites.Handler, bool)
}

// SiteFunc observes every finished site. done counts finished sites so far.
type SiteFunc func(ctx context.Context, result meeting.SiteResult, done, total int)

// Config controls a Runner.
type Config struct {
	SeedTimeout time.Duration
}

// Runner executes scrape requests. Sites are processed one at a time and
// share one browser session.
type Runner struct {
	fetcher  SeedFetcher
	coord    *extract.Coordinator
	expander Expander
	modules  Modules
	session  *sites.Session
	clock    meeting.Clock
	cfg      Config
	logger   *zap.Logger
}

// NewRunner wires a runner. modules and session may be nil when only the
// universal path is used.
func NewRunner(
	fetcher SeedFetcher,
	coord *extract.Coordinator,
	expander Expander,
	modules Modules,
	session *sites.Session,
	clock meeting.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SeedTimeout <= 0 {
		cfg.SeedTimeout = fetch.DefaultPageTimeout
	}
	return &Runner{
		fetcher:  fetcher,
		coord:    coord,
		expander: expander,
		modules:  modules,
		session:  session,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.Named("pipeline"),
	}
}

// siteOutcome is the internal result of one site.
type siteOutcome struct {
	result  meeting.SiteResult
	scraped bool
}

// Run scrapes every base URL with site modules enabled. The returned slice
// has one entry per requested URL in request order.
func (r *Runner) Run(ctx context.Context, in meeting.Input, onSite SiteFunc) ([]meeting.SiteResult, error) {
	outcomes, err := r.run(ctx, in, true, onSite)
	return resultsOf(outcomes), err
}

// RunUniversal scrapes with site modules disabled and reports statistics.
func (r *Runner) RunUniversal(ctx context.Context, in meeting.Input, onSite SiteFunc) (meeting.Report, error) {
	start := r.clock.Now()
	outcomes, err := r.run(ctx, in, false, onSite)
	results := resultsOf(outcomes)
	return meeting.Report{
		Results:    results,
		Statistics: Summarize(results, scrapedCount(outcomes), len(in.BaseURLs), r.clock.Now().Sub(start)),
	}, err
}

// Summarize computes run statistics. Percentages and durations are rounded
// to two decimals.
func Summarize(results []meeting.SiteResult, scraped, requested int, elapsed time.Duration) meeting.Statistics {
	stats := meeting.Statistics{
		TotalSitesRequested:      requested,
		SitesSuccessfullyScraped: scraped,
		DurationSeconds:          round2(elapsed.Seconds()),
	}
	for _, res := range results {
		stats.TotalMeetingsExtracted += len(res.Records)
		if len(res.Records) > 0 {
			stats.SitesWithMeetingsFound++
		}
	}
	if requested > 0 {
		stats.CoveragePercentage = round2(float64(stats.SitesWithMeetingsFound) / float64(requested) * 100)
	}
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func resultsOf(outcomes []siteOutcome) []meeting.SiteResult {
	out := make([]meeting.SiteResult, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.result
	}
	return out
}

func scrapedCount(outcomes []siteOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.scraped {
			n++
		}
	}
	return n
}

func (r *Runner) run(ctx context.Context, in meeting.Input, useModules bool, onSite SiteFunc) ([]siteOutcome, error) {
	window, err := in.Window()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(in.BaseURLs) == 0 {
		return nil, fmt.Errorf("%w: base_urls is empty", ErrInvalidInput)
	}

	total := len(in.BaseURLs)
	r.logger.Info("Starting scrape",
		zap.Int("sites", total),
		zap.String("start_date", in.StartDate),
		zap.String("end_date", in.EndDate),
		zap.Bool("site_modules", useModules),
	)
	outcomes := make([]siteOutcome, 0, total)
	for i, baseURL := range in.BaseURLs {
		if err := ctx.Err(); err != nil {
			return outcomes, fmt.Errorf("scrape interrupted: %w", err)
		}
		r.logger.Info("Processing site", zap.Int("index", i+1), zap.Int("total", total), zap.String("base_url", baseURL))
		o := r.site(ctx, strings.TrimSpace(baseURL), window, useModules)
		outcomes = append(outcomes, o)
		if onSite != nil {
			onSite(ctx, o.result, i+1, total)
		}
	}
	return outcomes, nil
}

// site processes one base URL. Any error or panic yields an empty result.
func (r *Runner) site(ctx context.Context, baseURL string, window meeting.Window, useModules bool) (out siteOutcome) {
	out.result = meeting.SiteResult{BaseURL: baseURL, Records: []meeting.Record{}}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Site processing panicked", zap.String("base_url", baseURL), zap.Any("panic", p))
			out = siteOutcome{result: meeting.SiteResult{BaseURL: baseURL, Records: []meeting.Record{}}}
			metrics.ObserveSite("panic")
		}
	}()

	var (
		records []meeting.Record
		err     error
	)
	if handler, ok := r.lookup(baseURL, useModules); ok {
		records, err = r.collect(ctx, handler, baseURL, window)
	} else {
		records, err = r.universal(ctx, baseURL, window)
	}
	if err != nil {
		r.logger.Warn("Site produced no records", zap.String("base_url", baseURL), zap.Error(err))
		metrics.ObserveSite("failed")
		return out
	}

	out.scraped = true
	if len(records) > 0 {
		out.result.Records = records
		metrics.ObserveSite("records")
	} else {
		metrics.ObserveSite("empty")
	}
	r.logger.Info("Finished site", zap.String("base_url", baseURL), zap.Int("records", len(out.result.Records)))
	return out
}

func (r *Runner) lookup(baseURL string, useModules bool) (sites.Handler, bool) {
	if !useModules || r.modules == nil || r.session == nil {
		return sites.Handler{}, false
	}
	return r.modules.Lookup(baseURL)
}

func (r *Runner) collect(ctx context.Context, h sites.Handler, baseURL string, window meeting.Window) ([]meeting.Record, error) {
	snaps, err := h.Collect(ctx, r.session, baseURL, window)
	if err != nil && len(snaps) == 0 {
		return nil, fmt.Errorf("collect %s: %w", h.Name, err)
	}
	if err != nil {
		r.logger.Warn("Site module stopped early", zap.String("module", h.Name), zap.Int("snapshots", len(snaps)), zap.Error(err))
	}
	var records []meeting.Record
	for _, snap := range snaps {
		pageURL := snap.URL
		if pageURL == "" {
			pageURL = baseURL
		}
		ext, err := r.coord.Extract(pageURL, snap.HTML, window)
		if err != nil {
			r.logger.Debug("Snapshot skipped", zap.String("url", pageURL), zap.Error(err))
			continue
		}
		records = append(records, ext.Records...)
	}
	return meeting.Dedupe(records), nil
}

func (r *Runner) universal(ctx context.Context, baseURL string, window meeting.Window) ([]meeting.Record, error) {
	res := r.fetcher.Fetch(ctx, baseURL, r.cfg.SeedTimeout)
	if !res.Success {
		return nil, fmt.Errorf("fetch seed after %d attempts: %s", res.Attempts, res.LastKind)
	}
	ext, err := r.coord.Extract(baseURL, res.HTML, window)
	if err != nil {
		return nil, fmt.Errorf("extract seed: %w", err)
	}
	if r.expander == nil {
		return meeting.Dedupe(ext.Records), nil
	}
	return r.expander.Expand(ctx, crawl.Seed{URL: baseURL, HTML: res.HTML, Extraction: ext}, window), nil
}
