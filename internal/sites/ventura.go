package sites

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

// collectVentura captures the agenda archive and each in-window year tab.
func collectVentura(ctx context.Context, s *Session, baseURL string, window meeting.Window) ([]Snapshot, error) {
	html, err := s.open(ctx, baseURL, 60*time.Second, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("open ventura archive: %w", err)
	}
	snaps := []Snapshot{{URL: baseURL, HTML: html}}

	doc, err := parse(html)
	if err != nil {
		return snaps, fmt.Errorf("parse ventura archive: %w", err)
	}
	years := targetYears(window)

	var ids []string
	doc.Find(`a[id^="a1"]`).Each(func(_ int, a *goquery.Selection) {
		id, _ := a.Attr("id")
		text := strings.TrimSpace(a.Text())
		if id == "" || !slices.Contains(years, text) {
			return
		}
		ids = append(ids, id)
	})

	for _, id := range ids {
		if err := s.Browser.Click(ctx, fmt.Sprintf(`a[id=%q]`, id)); err != nil {
			s.Logger.Debug("ventura year link failed", zap.String("id", id), zap.Error(err))
			continue
		}
		page, err := s.after(ctx, 5*time.Second)
		if err != nil {
			return snaps, err
		}
		snaps = append(snaps, Snapshot{URL: baseURL, HTML: page})
	}
	return snaps, nil
}
