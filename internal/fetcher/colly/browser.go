package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

var errNoPage = errors.New("no page loaded")

// Browser is a static meeting.Browser. It retrieves documents over plain
// HTTP, so scripted interactions are unsupported and rotating identity only
// advances the user-agent pool.
type Browser struct {
	fetcher *Fetcher
	agent   int
	page    *Page
}

// NewBrowser wraps f.
func NewBrowser(f *Fetcher) *Browser {
	return &Browser{fetcher: f}
}

// Navigate implements meeting.Browser.
func (b *Browser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	agents := b.fetcher.UserAgents()
	page, err := b.fetcher.Get(ctx, Request{URL: url, UserAgent: agents[b.agent%len(agents)], Timeout: timeout})
	if err != nil {
		return err
	}
	b.page = &page
	return nil
}

// Content implements meeting.Browser.
func (b *Browser) Content(context.Context) (string, error) {
	if b.page == nil {
		return "", errNoPage
	}
	return string(b.page.Body), nil
}

// WaitFor succeeds when selector already matches the static document.
func (b *Browser) WaitFor(_ context.Context, selector string, _ time.Duration) error {
	if b.page == nil {
		return errNoPage
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b.page.Body))
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("selector %q absent from static page: %w", selector, meeting.ErrUnsupported)
	}
	return nil
}

// Click implements meeting.Browser.
func (b *Browser) Click(context.Context, string) error {
	return meeting.ErrUnsupported
}

// Evaluate implements meeting.Browser.
func (b *Browser) Evaluate(context.Context, string, any) error {
	return meeting.ErrUnsupported
}

// RecreateIdentity advances to the next user agent and forgets the page.
func (b *Browser) RecreateIdentity(context.Context) error {
	b.agent++
	b.page = nil
	return nil
}

// UserAgent reports the agent the next request will send.
func (b *Browser) UserAgent() string {
	agents := b.fetcher.UserAgents()
	return agents[b.agent%len(agents)]
}

// Close implements meeting.Browser.
func (b *Browser) Close() error {
	b.page = nil
	return nil
}
