// Package crawl widens a site's seed page into the documents reachable by
// pagination, year navigation, and per-meeting detail pages.
package crawl

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/extract"
	"github.com/JakeFAU/meeting-crawler/internal/fetch"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

// Defaults for Config.
const (
	DefaultMaxDetailPages = 25
	DefaultPageTimeout    = 30 * time.Second
	DefaultDetailTimeout  = 15 * time.Second
	DefaultYearSettle     = 800 * time.Millisecond
)

// Fetcher retrieves one page. *fetch.Orchestrator satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string, timeout time.Duration) fetch.Result
}

// Config bounds the expansion of one seed.
type Config struct {
	MaxPages       int
	MaxDetailPages int
	PageTimeout    time.Duration
	DetailTimeout  time.Duration
	YearSettle     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.MaxDetailPages <= 0 {
		c.MaxDetailPages = DefaultMaxDetailPages
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = DefaultPageTimeout
	}
	if c.DetailTimeout <= 0 {
		c.DetailTimeout = DefaultDetailTimeout
	}
	if c.YearSettle <= 0 {
		c.YearSettle = DefaultYearSettle
	}
	return c
}

// Seed is the already fetched and extracted landing page of a site.
type Seed struct {
	URL        string
	HTML       string
	Extraction extract.Extraction
}

// page pairs an extraction with the URL its links resolve against.
type page struct {
	url string
	ext extract.Extraction
}

// Expander discovers and extracts the documents reachable from a seed.
type Expander struct {
	fetcher Fetcher
	browser meeting.Browser
	coord   *extract.Coordinator
	hasher  meeting.Hasher
	sleeper meeting.Sleeper
	cfg     Config
	logger  *zap.Logger
}

// NewExpander wires an expander. browser drives year controls on the seed
// page and should already be paced.
func NewExpander(
	fetcher Fetcher,
	browser meeting.Browser,
	coord *extract.Coordinator,
	hasher meeting.Hasher,
	sleeper meeting.Sleeper,
	cfg Config,
	logger *zap.Logger,
) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{
		fetcher: fetcher,
		browser: browser,
		coord:   coord,
		hasher:  hasher,
		sleeper: sleeper,
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("crawl"),
	}
}

// Expand returns the deduplicated records of the seed and every document
// reached from it. Year controls run first while the browser still shows
// the seed page; pagination and detail fetches navigate away from it.
func (e *Expander) Expand(ctx context.Context, seed Seed, window meeting.Window) []meeting.Record {
	pages := []page{{url: seed.URL, ext: seed.Extraction}}
	pages = append(pages, e.yearPages(ctx, seed, window)...)
	pages = append(pages, e.paginate(ctx, seed, window)...)
	records := e.details(ctx, pages)
	out := meeting.Dedupe(records)
	e.logger.Info("expanded site",
		zap.String("url", seed.URL),
		zap.Int("documents", len(pages)),
		zap.Int("records", len(out)),
	)
	return out
}

func (e *Expander) yearPages(ctx context.Context, seed Seed, window meeting.Window) []page {
	if e.browser == nil || seed.Extraction.Document == nil {
		return nil
	}
	controls := yearControls(seed.Extraction.Document, window.StartYear(), window.EndYear())
	if len(controls) == 0 {
		return nil
	}
	e.logger.Debug("year controls found", zap.String("url", seed.URL), zap.Int("count", len(controls)))

	seen := make(map[string]struct{})
	if digest, err := e.hasher.Hash([]byte(seed.HTML)); err == nil {
		seen[digest] = struct{}{}
	}

	var out []page
	for _, c := range controls {
		if ctx.Err() != nil {
			break
		}
		if err := e.activate(ctx, c); err != nil {
			e.logger.Debug("year control failed", zap.String("year", c.year), zap.Error(err))
			continue
		}
		if err := e.sleeper.Sleep(ctx, e.cfg.YearSettle); err != nil {
			break
		}
		html, err := e.browser.Content(ctx)
		if err != nil || html == "" {
			continue
		}
		digest, err := e.hasher.Hash([]byte(html))
		if err != nil {
			continue
		}
		if _, dup := seen[digest]; dup {
			continue
		}
		seen[digest] = struct{}{}
		pageURL := e.location(ctx, seed.URL)
		ext, err := e.coord.Extract(pageURL, html, window)
		if err != nil {
			continue
		}
		out = append(out, page{url: pageURL, ext: ext})
	}
	return out
}

const locationScript = `window.location.href`

// location reports the document URL the browser shows after a year control
// ran, or fallback when the browser cannot tell.
func (e *Expander) location(ctx context.Context, fallback string) string {
	var href string
	if err := e.browser.Evaluate(ctx, locationScript, &href); err != nil {
		return fallback
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fallback
	}
	return u.String()
}

func (e *Expander) activate(ctx context.Context, c yearControl) error {
	if !c.inSelect {
		return e.browser.Click(ctx, c.selector())
	}
	var ok bool
	if err := e.browser.Evaluate(ctx, c.script(), &ok); err != nil {
		return err
	}
	if !ok {
		return errNoOption
	}
	return nil
}

func (e *Expander) paginate(ctx context.Context, seed Seed, window meeting.Window) []page {
	if seed.Extraction.Document == nil {
		return nil
	}
	frontier := NewFrontier(seed.URL, e.cfg.MaxPages)
	for _, link := range PaginationLinks(seed.Extraction.Document, seed.URL) {
		frontier.Enqueue(link)
	}

	var out []page
	for {
		next, ok := frontier.Next()
		if !ok || ctx.Err() != nil {
			break
		}
		res := e.fetcher.Fetch(ctx, next, e.cfg.PageTimeout)
		if !res.Success {
			continue
		}
		ext, err := e.coord.Extract(next, res.HTML, window)
		if err != nil {
			continue
		}
		out = append(out, page{url: next, ext: ext})
		for _, link := range PaginationLinks(ext.Document, next) {
			frontier.Enqueue(link)
		}
	}
	if len(out) > 0 {
		e.logger.Debug("pagination followed", zap.String("url", seed.URL), zap.Int("pages", len(out)))
	}
	return out
}

// details follows one detail link per incomplete record and fills the
// record's missing links from it.
func (e *Expander) details(ctx context.Context, pages []page) []meeting.Record {
	budget := e.cfg.MaxDetailPages
	cache := make(map[string]meeting.Links)

	var records []meeting.Record
	for _, p := range pages {
		for _, rec := range p.ext.Records {
			if rec.Links().Complete() || ctx.Err() != nil {
				records = append(records, rec)
				continue
			}
			link := DetailLink(p.ext.Containers[rec.Key()], rec.Links(), p.url)
			if link == "" || link == p.url || ownsLink(rec, link) {
				records = append(records, rec)
				continue
			}
			found, ok := cache[link]
			if !ok {
				if budget == 0 {
					records = append(records, rec)
					continue
				}
				budget--
				found = e.detailLinks(ctx, link)
				cache[link] = found
			}
			if merged := rec.WithMissingLinks(found); meeting.Validate(merged) {
				rec = merged
			}
			records = append(records, rec)
		}
	}
	return records
}

func (e *Expander) detailLinks(ctx context.Context, detailURL string) meeting.Links {
	res := e.fetcher.Fetch(ctx, detailURL, e.cfg.DetailTimeout)
	if !res.Success {
		return meeting.Links{}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.HTML))
	if err != nil {
		e.logger.Debug("detail page parse failed", zap.String("url", detailURL), zap.Error(err))
		return meeting.Links{}
	}
	return extract.ClassifyLinks(doc.Find("body"), detailURL)
}

func ownsLink(rec meeting.Record, link string) bool {
	return link == rec.AgendaURL || link == rec.MinutesURL || link == rec.VideoURL
}
