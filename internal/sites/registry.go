// Package sites holds collection routines for platforms whose meeting lists
// only appear after scripted interaction. Each routine returns raw document
// snapshots; extraction happens downstream like any other page.
package sites

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

// Snapshot is one captured document and the URL its links resolve against.
type Snapshot struct {
	URL  string
	HTML string
}

// CollectFunc drives the session through a site and returns every document
// it captured. Snapshots gathered before a failure are returned with the error.
type CollectFunc func(ctx context.Context, s *Session, baseURL string, window meeting.Window) ([]Snapshot, error)

// Handler binds a collection routine to the hosts it serves.
type Handler struct {
	Name    string
	Hosts   []string
	Collect CollectFunc
}

// Matches reports whether host is one of h.Hosts or a subdomain of one.
func (h Handler) Matches(host string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for _, candidate := range h.Hosts {
		if host == candidate || strings.HasSuffix(host, "."+candidate) {
			return true
		}
	}
	return false
}

// Registry is the fixed table of site handlers.
type Registry struct {
	handlers []Handler
}

// NewRegistry returns the registry of built-in handlers.
func NewRegistry() *Registry {
	return &Registry{handlers: []Handler{
		{Name: "ventura", Hosts: []string{"cityofventura.ca.gov"}, Collect: collectVentura},
		{Name: "bethlehem", Hosts: []string{"bethlehem-pa.gov"}, Collect: collectBethlehem},
		{Name: "lansdale", Hosts: []string{"lansdale.org"}, Collect: collectLansdale},
		{Name: "facebook", Hosts: []string{"facebook.com"}, Collect: collectFacebook},
		{Name: "boarddocs", Hosts: []string{"boarddocs.com"}, Collect: collectBoardDocs},
		{Name: "eboardsolutions", Hosts: []string{"eboardsolutions.com"}, Collect: collectEBoard},
	}}
}

// Lookup returns the handler for baseURL's host.
func (r *Registry) Lookup(baseURL string) (Handler, bool) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Hostname() == "" {
		return Handler{}, false
	}
	for _, h := range r.handlers {
		if h.Matches(u.Hostname()) {
			return h, true
		}
	}
	return Handler{}, false
}

// Names lists registered handler names in table order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for _, h := range r.handlers {
		names = append(names, h.Name)
	}
	return names
}

// Session is the browser context handed to a collection routine.
type Session struct {
	Browser meeting.Browser
	Sleeper meeting.Sleeper
	Logger  *zap.Logger
}

// NewSession wires a session. browser should already be paced.
func NewSession(browser meeting.Browser, sleeper meeting.Sleeper, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{Browser: browser, Sleeper: sleeper, Logger: logger.Named("sites")}
}

// open navigates to pageURL, lets scripts settle, and captures the result.
func (s *Session) open(ctx context.Context, pageURL string, timeout, settle time.Duration) (string, error) {
	if err := s.Browser.Navigate(ctx, pageURL, timeout); err != nil {
		return "", err
	}
	if err := s.Sleeper.Sleep(ctx, settle); err != nil {
		return "", err
	}
	return s.Browser.Content(ctx)
}

// after waits settle and captures the current document.
func (s *Session) after(ctx context.Context, settle time.Duration) (string, error) {
	if err := s.Sleeper.Sleep(ctx, settle); err != nil {
		return "", err
	}
	return s.Browser.Content(ctx)
}

func parse(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// targetYears lists the window's calendar years as strings, oldest first.
func targetYears(window meeting.Window) []string {
	var years []string
	for y := window.StartYear(); y <= window.EndYear(); y++ {
		years = append(years, strconv.Itoa(y))
	}
	return years
}

func hasYear(years []string, s string) bool {
	for _, y := range years {
		if strings.Contains(s, y) {
			return true
		}
	}
	return false
}
