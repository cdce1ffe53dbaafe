package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/progress"
)

// Event kinds attached to published messages.
const (
	KindSiteDone = "site_done"
	KindRunDone  = "run_done"
)

// Publisher sends one JSON payload.
type Publisher interface {
	Publish(ctx context.Context, kind string, payload any) (string, error)
}

// SiteMessage announces one finished site.
type SiteMessage struct {
	RunID       string           `json:"run_id"`
	BaseURL     string           `json:"base_url"`
	Meetings    int              `json:"meetings"`
	Medias      []meeting.Record `json:"medias"`
	Done        int              `json:"sites_completed"`
	Total       int              `json:"total_sites"`
	CompletedAt time.Time        `json:"completed_at"`
}

// RunMessage announces a finished run.
type RunMessage struct {
	RunID           string              `json:"run_id"`
	Mode            string              `json:"mode"`
	Status          string              `json:"status"`
	Statistics      *meeting.Statistics `json:"statistics,omitempty"`
	Error           string              `json:"error,omitempty"`
	DurationSeconds float64             `json:"duration_seconds"`
	FinishedAt      time.Time           `json:"finished_at"`
}

// PublishSink notifies downstream consumers of finished sites and runs.
type PublishSink struct {
	pub Publisher
}

// NewPublishSink wraps a Publisher.
func NewPublishSink(pub Publisher) *PublishSink {
	return &PublishSink{pub: pub}
}

// Consume publishes SITE_DONE and RUN_DONE events.
func (s *PublishSink) Consume(ctx context.Context, evt progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	var (
		kind    string
		payload any
	)
	switch evt.Stage {
	case progress.StageSiteDone:
		kind = KindSiteDone
		payload = SiteMessage{
			RunID:       evt.RunID,
			BaseURL:     evt.Site.BaseURL,
			Meetings:    len(evt.Site.Records),
			Medias:      evt.Site.Records,
			Done:        evt.Done,
			Total:       evt.Total,
			CompletedAt: evt.TS.UTC(),
		}
	case progress.StageRunDone:
		kind = KindRunDone
		payload = RunMessage{
			RunID:           evt.RunID,
			Mode:            string(evt.Mode),
			Status:          string(evt.Status),
			Statistics:      evt.Statistics,
			Error:           evt.Note,
			DurationSeconds: evt.Dur.Seconds(),
			FinishedAt:      evt.TS.UTC(),
		}
	default:
		return nil
	}
	if _, err := s.pub.Publish(ctx, kind, payload); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
