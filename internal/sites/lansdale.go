package sites

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/extract"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

const lansdaleViewAll = `//a[contains(@href, '#allVideos') or normalize-space(.)='View All']`

var postBackRe = regexp.MustCompile(`__doPostBack\('([^']+)','([^']*)'\)`)

// collectLansdale captures the CivicMedia base channel with every postback
// page, then each channel whose name or link mentions an in-window year.
func collectLansdale(ctx context.Context, s *Session, baseURL string, window meeting.Window) ([]Snapshot, error) {
	allURL := baseURL
	if !strings.Contains(baseURL, "#") {
		allURL = baseURL + "#allVideos"
	}
	html, err := s.open(ctx, allURL, 60*time.Second, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("open lansdale media: %w", err)
	}
	if doc, err := parse(html); err == nil && doc.Find(`a[href*="#allVideos"]`).Length() > 0 {
		if err := s.Browser.Click(ctx, lansdaleViewAll); err == nil {
			if page, err := s.after(ctx, 2*time.Second); err == nil {
				html = page
			}
		}
	}
	snaps := []Snapshot{{URL: baseURL, HTML: html}}
	snaps = append(snaps, s.postBackPages(ctx, baseURL, html)...)

	home, err := s.open(ctx, baseURL, 60*time.Second, 3*time.Second)
	if err != nil {
		return snaps, fmt.Errorf("reopen lansdale media: %w", err)
	}
	for _, channel := range lansdaleChannels(home, baseURL, targetYears(window)) {
		page, err := s.open(ctx, channel, 60*time.Second, 3*time.Second)
		if err != nil {
			s.Logger.Debug("lansdale channel failed", zap.String("url", channel), zap.Error(err))
			continue
		}
		snaps = append(snaps, Snapshot{URL: channel, HTML: page})
		snaps = append(snaps, s.postBackPages(ctx, channel, page)...)
	}
	return snaps, nil
}

// postBackPages replays each ASP.NET pager link in html's pagination block.
func (s *Session) postBackPages(ctx context.Context, pageURL, html string) []Snapshot {
	doc, err := parse(html)
	if err != nil {
		return nil
	}
	var calls []string
	doc.Find("p.pagination a").Each(func(_ int, a *goquery.Selection) {
		if m := postBackRe.FindStringSubmatch(a.AttrOr("href", "")); m != nil {
			calls = append(calls, fmt.Sprintf("__doPostBack('%s', '%s')", m[1], m[2]))
		}
	})

	var snaps []Snapshot
	for _, call := range calls {
		if err := s.Browser.Evaluate(ctx, call, nil); err != nil {
			s.Logger.Debug("postback failed", zap.String("call", call), zap.Error(err))
			continue
		}
		page, err := s.after(ctx, 4*time.Second)
		if err != nil {
			break
		}
		snaps = append(snaps, Snapshot{URL: pageURL, HTML: page})
	}
	return snaps
}

// lansdaleChannels returns absolute channel URLs other than the base channel.
func lansdaleChannels(html, baseURL string, years []string) []string {
	doc, err := parse(html)
	if err != nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	out := newOrderedSet()
	doc.Find(`a[href*="/CivicMedia?CID="]`).Each(func(_ int, a *goquery.Selection) {
		h4 := a.Find("h4")
		if h4.Length() == 0 {
			return
		}
		href := a.AttrOr("href", "")
		name := strings.TrimSpace(h4.Text())
		if len(years) > 0 && !hasYear(years, name) && !hasYear(years, href) {
			return
		}
		abs := extract.Resolve(base, href)
		if abs == "" || sameQuery(abs, baseURL) {
			return
		}
		out.add(abs)
	})
	return out.items
}

func sameQuery(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return ua.RawQuery != "" && ua.RawQuery == ub.RawQuery
}
