// Package fetch retrieves a single page through a browser provider, retrying
// transient failures and rotating identity when a site blocks the session.
package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/metrics"
)

// Default orchestration settings.
const (
	DefaultMaxAttempts     = 3
	DefaultBackoffUnit     = time.Second
	DefaultSelectorTimeout = 20 * time.Second
	DefaultSettleDelay     = 4 * time.Second
	DefaultPageTimeout     = 30 * time.Second
)

// Detector reports whether a captured page still needs client-side rendering.
type Detector interface {
	JSHeavy(html, pageURL string) bool
	WaitSelector(pageURL string) string
}

// Config tunes the retry loop.
type Config struct {
	MaxAttempts     int
	BackoffUnit     time.Duration
	SelectorTimeout time.Duration
	SettleDelay     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = DefaultBackoffUnit
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = DefaultSelectorTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	return c
}

// Result is the outcome of one Fetch call. HTML is set only on success.
type Result struct {
	URL      string
	HTML     string
	Success  bool
	Attempts int
	LastKind ErrorKind
}

// Orchestrator runs the per-page retry state machine.
type Orchestrator struct {
	browser  meeting.Browser
	gate     meeting.Gate
	sleeper  meeting.Sleeper
	detector Detector
	cfg      Config
	logger   *zap.Logger
}

// NewOrchestrator wires an orchestrator. detector may be nil to skip render waits.
func NewOrchestrator(
	browser meeting.Browser,
	gate meeting.Gate,
	sleeper meeting.Sleeper,
	detector Detector,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		browser:  browser,
		gate:     gate,
		sleeper:  sleeper,
		detector: detector,
		cfg:      cfg.withDefaults(),
		logger:   logger.Named("fetch"),
	}
}

// Browser exposes the underlying session for follow-up interactions.
func (o *Orchestrator) Browser() meeting.Browser {
	return o.browser
}

// Fetch navigates to pageURL and returns its document. It never returns an
// error; failures are reported through Result.
func (o *Orchestrator) Fetch(ctx context.Context, pageURL string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultPageTimeout
	}
	res := Result{URL: pageURL}

	for attempt := 0; attempt < o.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt + 1
		if err := o.gate.Wait(ctx); err != nil {
			res.LastKind = KindTimeout
			o.logger.Warn("pacing gate aborted fetch", zap.String("url", pageURL), zap.Error(err))
			return res
		}

		html, err := o.attempt(ctx, pageURL, timeout)
		if err == nil {
			res.HTML = o.settle(ctx, pageURL, html)
			res.Success = true
			res.LastKind = KindNone
			metrics.ObserveFetch(pageURL, "success")
			return res
		}

		kind := Classify(err)
		res.LastKind = kind
		metrics.ObserveFetch(pageURL, kind.String())
		o.logger.Warn("fetch attempt failed",
			zap.String("url", pageURL),
			zap.Int("attempt", res.Attempts),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)

		if attempt == o.cfg.MaxAttempts-1 || ctx.Err() != nil {
			break
		}
		switch {
		case kind.Transient():
			delay := o.cfg.BackoffUnit * time.Duration(1<<(attempt+1))
			if err := o.sleeper.Sleep(ctx, delay); err != nil {
				return res
			}
		case kind.Blocked():
			metrics.ObserveIdentityRotation(pageURL)
			if err := o.browser.RecreateIdentity(ctx); err != nil {
				o.logger.Warn("identity rotation failed", zap.String("url", pageURL), zap.Error(err))
			}
		default:
			return res
		}
	}

	o.logger.Error("fetch gave up", zap.String("url", pageURL), zap.Int("attempts", res.Attempts),
		zap.String("kind", res.LastKind.String()))
	return res
}

func (o *Orchestrator) attempt(ctx context.Context, pageURL string, timeout time.Duration) (string, error) {
	if err := o.browser.Navigate(ctx, pageURL, timeout); err != nil {
		return "", err
	}
	html, err := o.browser.Content(ctx)
	if err != nil {
		return "", err
	}
	if IsChallengePage(html) {
		return "", &ChallengeError{URL: pageURL}
	}
	return html, nil
}

// settle waits once for script-rendered content and re-captures the page.
// The first capture is returned when the wait or the re-capture fails.
func (o *Orchestrator) settle(ctx context.Context, pageURL, html string) string {
	if o.detector == nil || !o.detector.JSHeavy(html, pageURL) {
		return html
	}
	if selector := o.detector.WaitSelector(pageURL); selector != "" {
		if err := o.browser.WaitFor(ctx, selector, o.cfg.SelectorTimeout); err != nil {
			o.logger.Debug("render selector wait failed", zap.String("url", pageURL),
				zap.String("selector", selector), zap.Error(err))
		}
	} else if err := o.sleeper.Sleep(ctx, o.cfg.SettleDelay); err != nil {
		return html
	}
	rendered, err := o.browser.Content(ctx)
	if err != nil || rendered == "" {
		return html
	}
	return rendered
}
