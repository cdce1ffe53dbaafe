package sites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

const (
	eboardGrid         = "#ContentPlaceHolder1_MeetingGrid tbody tr"
	eboardAttempts     = 2
	eboardChallengeMax = 15 * time.Second
	eboardPoll         = 2 * time.Second
	eboardMinLoaded    = 10000
)

var errIncapsula = errors.New("incapsula challenge not cleared")

// collectEBoard waits out the Incapsula interstitial and the meeting grid,
// retrying once with a fresh identity.
func collectEBoard(ctx context.Context, s *Session, baseURL string, _ meeting.Window) ([]Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < eboardAttempts; attempt++ {
		last := attempt == eboardAttempts-1
		if attempt > 0 {
			if err := s.Browser.RecreateIdentity(ctx); err != nil {
				s.Logger.Debug("eboard identity rotation failed", zap.Error(err))
			}
			if err := s.Sleeper.Sleep(ctx, 3*time.Second); err != nil {
				return nil, err
			}
		}

		page, err := s.open(ctx, baseURL, 60*time.Second, 2500*time.Millisecond)
		if err != nil {
			lastErr = err
			continue
		}
		if incapsulaBlocked(page) && !s.awaitIncapsula(ctx) {
			lastErr = errIncapsula
			continue
		}
		if err := s.Browser.WaitFor(ctx, eboardGrid, 20*time.Second); err != nil && !last {
			lastErr = err
			continue
		}
		_ = s.Browser.Evaluate(ctx,
			`(() => { const g = document.getElementById('ContentPlaceHolder1_MeetingGrid'); if (g) { g.scrollIntoView(); } return true; })()`,
			nil)
		page, err = s.after(ctx, 1500*time.Millisecond)
		if err != nil {
			lastErr = err
			continue
		}
		if incapsulaBlocked(page) && !last {
			lastErr = errIncapsula
			continue
		}
		return []Snapshot{{URL: baseURL, HTML: page}}, nil
	}
	return nil, fmt.Errorf("collect eboardsolutions: %w", lastErr)
}

func incapsulaBlocked(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, "incapsula") || strings.Contains(lower, "additional security check")
}

// awaitIncapsula polls until the challenge clears and a full page loads.
func (s *Session) awaitIncapsula(ctx context.Context) bool {
	for waited := time.Duration(0); waited < eboardChallengeMax; waited += eboardPoll {
		if err := s.Sleeper.Sleep(ctx, eboardPoll); err != nil {
			return false
		}
		page, err := s.Browser.Content(ctx)
		if err != nil {
			continue
		}
		if !incapsulaBlocked(page) && len(page) > eboardMinLoaded {
			return true
		}
	}
	return false
}
