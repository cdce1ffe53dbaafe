package sites

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

var facebookCloseSelectors = []string{
	`div[aria-label="Close"]`,
	`button[aria-label="Close"]`,
	`[data-testid="cookie-policy-manage-dialog-accept-button"]`,
	`[data-testid="non-users-dialog-close"]`,
}

const (
	facebookMaxScrolls = 20
	facebookStableRuns = 3
)

// collectFacebook dismisses the login modal and scrolls the videos tab until
// its height stops growing.
func collectFacebook(ctx context.Context, s *Session, baseURL string, _ meeting.Window) ([]Snapshot, error) {
	html, err := s.open(ctx, baseURL, 60*time.Second, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("open facebook videos: %w", err)
	}
	if doc, err := parse(html); err == nil {
		for _, sel := range facebookCloseSelectors {
			if doc.Find(sel).Length() == 0 {
				continue
			}
			if err := s.Browser.Click(ctx, sel); err == nil {
				_ = s.Sleeper.Sleep(ctx, 2*time.Second)
				break
			}
		}
	}

	var last float64
	if err := s.Browser.Evaluate(ctx, "document.body.scrollHeight", &last); err != nil {
		s.Logger.Debug("facebook scroll height unavailable", zap.Error(err))
	}
	stable := 0
	for scrolls := 0; scrolls < facebookMaxScrolls && stable < facebookStableRuns; scrolls++ {
		if err := s.Browser.Evaluate(ctx, "window.scrollTo(0, document.body.scrollHeight)", nil); err != nil {
			break
		}
		if err := s.Sleeper.Sleep(ctx, 3*time.Second); err != nil {
			break
		}
		var height float64
		if err := s.Browser.Evaluate(ctx, "document.body.scrollHeight", &height); err != nil {
			break
		}
		if height == last {
			stable++
		} else {
			stable = 0
		}
		last = height
	}

	page, err := s.Browser.Content(ctx)
	if err != nil {
		return []Snapshot{{URL: baseURL, HTML: html}}, fmt.Errorf("capture facebook videos: %w", err)
	}
	return []Snapshot{{URL: baseURL, HTML: page}}, nil
}
