// Package resolver turns meeting media links into URLs that can be
// downloaded directly, verifying each candidate before returning it.
package resolver

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	collyfetcher "github.com/JakeFAU/meeting-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/metrics"
)

// MediaType selects the resolution path.
type MediaType string

// Supported media types.
const (
	Video    MediaType = "video"
	Document MediaType = "document"
)

// Request is one URL to resolve. An empty Type means Video.
type Request struct {
	URL  string    `json:"url"`
	Type MediaType `json:"type"`
}

// PageSource retrieves pages and probes documents. It must be safe for
// concurrent use.
type PageSource interface {
	Get(ctx context.Context, request collyfetcher.Request) (collyfetcher.Page, error)
	Head(ctx context.Context, request collyfetcher.Request) (int, error)
}

// Verifier confirms a media URL is downloadable. referer is the page the
// URL was found on.
type Verifier interface {
	Verify(ctx context.Context, mediaURL, referer string) bool
}

// Config tunes resolution.
type Config struct {
	Concurrency   int
	PageTimeout   time.Duration
	VerifyTimeout time.Duration
	VerifyRetries int
	RetryInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 20 * time.Second
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = 15 * time.Second
	}
	if c.VerifyRetries < 0 {
		c.VerifyRetries = 0
	} else if c.VerifyRetries == 0 {
		c.VerifyRetries = 2
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
	return c
}

// Resolver resolves media and document URLs.
type Resolver struct {
	pages    PageSource
	verifier Verifier
	gate     meeting.Gate
	cfg      Config
	logger   *zap.Logger
}

// New builds a Resolver. verifier may be nil, in which case platform URLs are
// trusted and page candidates are accepted only when they look playable.
// gate may be nil.
func New(pages PageSource, verifier Verifier, gate meeting.Gate, cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		pages:    pages,
		verifier: verifier,
		gate:     gate,
		cfg:      cfg.withDefaults(),
		logger:   logger.Named("resolver"),
	}
}

// Resolve returns a downloadable URL for req, or false when none could be
// verified. Failures are logged, never returned.
func (r *Resolver) Resolve(ctx context.Context, req Request) (string, bool) {
	if strings.TrimSpace(req.URL) == "" {
		return "", false
	}
	if req.Type == "" {
		req.Type = Video
	}
	if r.gate != nil {
		if err := r.gate.Wait(ctx); err != nil {
			r.logger.Warn("Resolution cancelled", zap.String("url", req.URL), zap.Error(err))
			return "", false
		}
	}

	var (
		resolved string
		ok       bool
	)
	if req.Type == Document {
		resolved, ok = r.resolveDocument(ctx, req.URL)
	} else {
		resolved, ok = r.resolveMedia(ctx, req.URL)
	}
	metrics.ObserveResolution(string(req.Type), ok)
	if ok {
		r.logger.Info("Resolved URL", zap.String("url", req.URL), zap.String("resolved", resolved))
	} else {
		r.logger.Info("Could not resolve URL", zap.String("url", req.URL), zap.String("type", string(req.Type)))
	}
	return resolved, ok
}

// BatchResolve resolves every request concurrently and returns the resolved
// URLs in request order, omitting failures.
func (r *Resolver) BatchResolve(ctx context.Context, reqs []Request) []string {
	results := make([]string, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			if u, ok := r.Resolve(gctx, req); ok {
				results[i] = u
			}
			return nil
		})
	}
	_ = g.Wait()

	resolved := make([]string, 0, len(reqs))
	for _, u := range results {
		if u != "" {
			resolved = append(resolved, u)
		}
	}
	r.logger.Info("Batch resolution finished", zap.Int("requested", len(reqs)), zap.Int("resolved", len(resolved)))
	return resolved
}

func (r *Resolver) resolveDocument(ctx context.Context, rawURL string) (string, bool) {
	if resolved := r.platformURL(ctx, rawURL); resolved != "" && resolved != rawURL && r.verifyDocument(ctx, resolved) {
		return resolved, true
	}
	if r.verifyDocument(ctx, rawURL) {
		return rawURL, true
	}
	return "", false
}

func (r *Resolver) resolveMedia(ctx context.Context, rawURL string) (string, bool) {
	if r.verifier != nil && r.verifier.Verify(ctx, rawURL, rawURL) {
		return rawURL, true
	}
	if resolved := r.platformURL(ctx, rawURL); resolved != "" {
		if r.verifier == nil || r.verifier.Verify(ctx, resolved, rawURL) {
			return resolved, true
		}
	}
	for _, candidate := range r.pageCandidates(ctx, rawURL) {
		if r.verifier != nil {
			if r.verifier.Verify(ctx, candidate, rawURL) {
				return candidate, true
			}
			continue
		}
		if playable(candidate) {
			return candidate, true
		}
	}
	return "", false
}
