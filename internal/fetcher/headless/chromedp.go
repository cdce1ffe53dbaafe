// Package headless drives a real Chrome instance through chromedp and
// exposes it as a meeting.Browser.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

// Config controls the behavior of the headless browser.
type Config struct {
	ExecPath          string
	Headful           bool
	AllowResources    bool
	NavigationTimeout time.Duration
	Pools             Pools
}

// Browser implements meeting.Browser with chromedp. Every identity owns its
// own Chrome process so cookies never survive a rotation.
type Browser struct {
	cfg    Config
	logger *zap.Logger

	rotation int
	identity Identity

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	meta        *responseMeta
}

// NewChromedp creates a browser. Chrome starts on first use.
func NewChromedp(cfg Config, logger *zap.Logger) *Browser {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	cfg.Pools = cfg.Pools.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{
		cfg:      cfg,
		logger:   logger.Named("headless"),
		identity: cfg.Pools.Pick(0),
		meta:     newResponseMeta(),
	}
}

// Identity returns the fingerprint of the current session.
func (b *Browser) Identity() Identity {
	return b.identity
}

// Navigate loads url and waits for the document body. Document responses
// with an error status are reported as *meeting.StatusError.
func (b *Browser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	b.meta.reset()
	err := b.run(ctx, timeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if status, _ := b.meta.snapshot(); status >= http.StatusBadRequest {
		return &meeting.StatusError{URL: url, Code: status}
	}
	return nil
}

// Content returns the serialized DOM of the current page.
func (b *Browser) Content(ctx context.Context) (string, error) {
	var html string
	if err := b.run(ctx, b.cfg.NavigationTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("capture content: %w", err)
	}
	return html, nil
}

// WaitFor blocks until selector is visible. XPath selectors are supported.
func (b *Browser) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := b.run(ctx, timeout, chromedp.WaitVisible(selector, queryBy(selector))); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// Click clicks the first visible element matching selector.
func (b *Browser) Click(ctx context.Context, selector string) error {
	err := b.run(ctx, b.cfg.NavigationTimeout, chromedp.Click(selector, queryBy(selector), chromedp.NodeVisible))
	if err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// Evaluate runs script in the page and decodes its result into out when out
// is non-nil.
func (b *Browser) Evaluate(ctx context.Context, script string, out any) error {
	if err := b.run(ctx, b.cfg.NavigationTimeout, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

// RecreateIdentity shuts down the current Chrome process and moves to the
// next identity. The next call starts a fresh process.
func (b *Browser) RecreateIdentity(context.Context) error {
	b.shutdown()
	b.rotation++
	b.identity = b.cfg.Pools.Pick(b.rotation)
	b.logger.Info("Rotated browser identity",
		zap.Int("rotation", b.rotation),
		zap.String("user_agent", b.identity.UserAgent),
		zap.String("timezone", b.identity.Timezone),
	)
	return nil
}

// Close shuts down Chrome.
func (b *Browser) Close() error {
	b.shutdown()
	return nil
}

func (b *Browser) shutdown() {
	if b.tabCancel != nil {
		b.tabCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.tabCtx, b.tabCancel = nil, nil
	b.allocCtx, b.allocCancel = nil, nil
}

// run executes actions on the current tab, bounded by timeout and by the
// caller's ctx. Cancelling a derived context leaves the tab open.
func (b *Browser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tab, err := b.ensureTab()
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = b.cfg.NavigationTimeout
	}
	runCtx, cancel := context.WithTimeout(tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (b *Browser) ensureTab() (context.Context, error) {
	if b.tabCtx != nil {
		return b.tabCtx, nil
	}
	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(b.allocCtx)

	meta := b.meta
	block := !b.cfg.AllowResources
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			meta.capture(e)
		case *fetch.EventRequestPaused:
			if block {
				go b.handlePaused(tabCtx, e)
			}
		}
	})

	if err := chromedp.Run(tabCtx, b.setupAction()); err != nil {
		tabCancel()
		b.allocCancel()
		b.allocCtx, b.allocCancel = nil, nil
		return nil, fmt.Errorf("start browser: %w", err)
	}
	b.tabCtx, b.tabCancel = tabCtx, tabCancel
	return tabCtx, nil
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(b.identity.UserAgent),
		chromedp.WindowSize(int(b.identity.Viewport.Width), int(b.identity.Viewport.Height)),
	)
	if b.cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	return opts
}

func (b *Browser) setupAction() chromedp.Action {
	id := b.identity
	block := !b.cfg.AllowResources
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(id.UserAgent).WithAcceptLanguage(acceptLanguage(id.Locale)).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(id.Viewport.Width, id.Viewport.Height, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if err := emulation.SetTimezoneOverride(id.Timezone).Do(ctx); err != nil {
			return fmt.Errorf("set timezone: %w", err)
		}
		if err := emulation.SetLocaleOverride().WithLocale(icuLocale(id.Locale)).Do(ctx); err != nil {
			return fmt.Errorf("set locale: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(noiseScript).Do(ctx); err != nil {
			return fmt.Errorf("install noise script: %w", err)
		}
		if block {
			patterns := []*fetch.RequestPattern{{URLPattern: "*"}}
			if err := fetch.Enable().WithPatterns(patterns).Do(ctx); err != nil {
				return fmt.Errorf("enable request interception: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) handlePaused(tabCtx context.Context, ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	ctx := cdp.WithExecutor(tabCtx, c.Target)
	var err error
	if blockedResource(ev.ResourceType) {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	} else {
		err = fetch.ContinueRequest(ev.RequestID).Do(ctx)
	}
	if err != nil {
		b.logger.Debug("Request interception failed", zap.String("request_id", string(ev.RequestID)), zap.Error(err))
	}
}

// blockedResource reports whether a resource type is skipped to save time.
func blockedResource(t network.ResourceType) bool {
	switch t {
	case network.ResourceTypeImage, network.ResourceTypeFont,
		network.ResourceTypeStylesheet, network.ResourceTypeMedia:
		return true
	default:
		return false
	}
}

// queryBy picks XPath search for selectors that look like XPath.
func queryBy(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func isXPath(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(")
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status, m.url = 0, ""
	m.mu.Unlock()
}

// capture records the first document response after a reset. Later frames
// and redirects to sub-documents do not override it.
func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.url
}
