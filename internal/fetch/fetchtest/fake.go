// Package fetchtest provides scripted browser, gate, and sleeper fakes for
// tests of packages that drive a meeting.Browser.
package fetchtest

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

// Browser is a scripted meeting.Browser. Pages maps URL to document;
// NavErrs queues errors returned by successive Navigate calls before
// falling back to Pages.
type Browser struct {
	mu sync.Mutex

	Pages     map[string]string
	NavErrs   []error
	Rendered  map[string]string
	ClickHTML map[string]string

	current    string
	content    string
	Visits     []string
	Waits      []string
	Clicks     []string
	Rotations  int
	Closed     bool
	ContentErr error

	// EvalFunc answers Evaluate calls when set.
	EvalFunc func(script string, out any) error
	Scripts  []string
}

// NewBrowser returns a browser serving pages.
func NewBrowser(pages map[string]string) *Browser {
	if pages == nil {
		pages = map[string]string{}
	}
	return &Browser{Pages: pages, Rendered: map[string]string{}, ClickHTML: map[string]string{}}
}

// Navigate implements meeting.Browser.
func (b *Browser) Navigate(_ context.Context, url string, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Visits = append(b.Visits, url)
	if len(b.NavErrs) > 0 {
		err := b.NavErrs[0]
		b.NavErrs = b.NavErrs[1:]
		if err != nil {
			return err
		}
	}
	page, ok := b.Pages[url]
	if !ok {
		return &meeting.StatusError{URL: url, Code: 404}
	}
	b.current = url
	b.content = page
	return nil
}

// Content implements meeting.Browser.
func (b *Browser) Content(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ContentErr != nil {
		return "", b.ContentErr
	}
	return b.content, nil
}

// WaitFor implements meeting.Browser. A Rendered entry for the current URL
// replaces the document once the wait completes.
func (b *Browser) WaitFor(_ context.Context, selector string, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Waits = append(b.Waits, selector)
	if html, ok := b.Rendered[b.current]; ok {
		b.content = html
	}
	return nil
}

// Click implements meeting.Browser using ClickHTML keyed by selector.
func (b *Browser) Click(_ context.Context, selector string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Clicks = append(b.Clicks, selector)
	html, ok := b.ClickHTML[selector]
	if !ok {
		return meeting.ErrUnsupported
	}
	b.content = html
	return nil
}

// Evaluate implements meeting.Browser.
func (b *Browser) Evaluate(_ context.Context, script string, out any) error {
	b.mu.Lock()
	b.Scripts = append(b.Scripts, script)
	fn := b.EvalFunc
	b.mu.Unlock()
	if fn == nil {
		return meeting.ErrUnsupported
	}
	return fn(script, out)
}

// RecreateIdentity implements meeting.Browser.
func (b *Browser) RecreateIdentity(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Rotations++
	return nil
}

// Close implements meeting.Browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

// SetContent replaces the current document, as a script-driven page would.
func (b *Browser) SetContent(html string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = html
}

// Gate counts waits without blocking.
type Gate struct {
	mu    sync.Mutex
	Count int
	Err   error
}

// Wait implements meeting.Gate.
func (g *Gate) Wait(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Count++
	return g.Err
}

// Sleeper records requested delays without sleeping.
type Sleeper struct {
	mu     sync.Mutex
	Delays []time.Duration
}

// Sleep implements meeting.Sleeper.
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Delays = append(s.Delays, d)
	return ctx.Err()
}
