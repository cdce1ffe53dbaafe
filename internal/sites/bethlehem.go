package sites

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/extract"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

const (
	bethlehemPrevMonth = `//img[contains(concat(' ', normalize-space(@class), ' '), ' prevMonth ')]/ancestor::a[1]`
	bethlehemDetail    = "/Calendar/Meetings/"
)

// collectBethlehem walks the calendar backwards month by month, then
// captures every meeting detail page it linked to.
func collectBethlehem(ctx context.Context, s *Session, baseURL string, window meeting.Window) ([]Snapshot, error) {
	html, err := s.open(ctx, baseURL, 90*time.Second, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("open bethlehem calendar: %w", err)
	}
	snaps := []Snapshot{{URL: baseURL, HTML: html}}
	base, err := url.Parse(baseURL)
	if err != nil {
		return snaps, fmt.Errorf("parse base url: %w", err)
	}

	details := newOrderedSet()
	hasPrev := collectBethlehemLinks(html, base, details)

	for month := 0; month < bethlehemMonths(window) && hasPrev; month++ {
		if err := s.Browser.Click(ctx, bethlehemPrevMonth); err != nil {
			s.Logger.Debug("bethlehem month navigation stopped", zap.Error(err))
			break
		}
		page, err := s.after(ctx, 3*time.Second)
		if err != nil {
			return snaps, err
		}
		snaps = append(snaps, Snapshot{URL: baseURL, HTML: page})
		hasPrev = collectBethlehemLinks(page, base, details)
	}

	for _, detail := range details.items {
		page, err := s.open(ctx, detail, 60*time.Second, 3*time.Second)
		if err != nil {
			s.Logger.Debug("bethlehem detail page failed", zap.String("url", detail), zap.Error(err))
			continue
		}
		snaps = append(snaps, Snapshot{URL: detail, HTML: page})
	}
	return snaps, nil
}

// bethlehemMonths is the number of earlier months to visit: the window's
// span plus two, and never fewer than three.
func bethlehemMonths(window meeting.Window) int {
	diff := (window.End.Year()-window.Start.Year())*12 + int(window.End.Month()) - int(window.Start.Month())
	return max(diff+2, 3)
}

// collectBethlehemLinks adds detail links from html to set and reports
// whether the page still offers a previous-month control.
func collectBethlehemLinks(html string, base *url.URL, set *orderedSet) bool {
	doc, err := parse(html)
	if err != nil {
		return false
	}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if strings.Contains(href, bethlehemDetail) {
			set.add(extract.Resolve(base, href))
		}
	})
	return doc.Find("img.prevMonth").Length() > 0
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (o *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := o.seen[v]; ok {
		return
	}
	o.seen[v] = struct{}{}
	o.items = append(o.items, v)
}
