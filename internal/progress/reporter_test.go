package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/store"
)

func TestReporterLifecycle(t *testing.T) {
	t.Parallel()

	rec := &recordingEmitter{}
	clock := &tickClock{now: time.Unix(1000, 0).UTC(), step: 2 * time.Second}
	r := NewReporter(rec, clock, "run-9", store.ModeUniversal)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx, meeting.Input{StartDate: "2024-01-01", EndDate: "2024-02-01", BaseURLs: []string{"https://a.gov"}})
	cancel()
	r.Site(ctx, meeting.SiteResult{BaseURL: "https://a.gov"}, 1, 1)
	stats := &meeting.Statistics{TotalSitesRequested: 1}
	r.Finish(ctx, stats, fmt.Errorf("scrape interrupted: %w", context.Canceled))

	events := rec.Events()
	require.Len(t, events, 3)
	assert.Equal(t, StageRunStart, events[0].Stage)
	assert.Equal(t, "2024-01-01", events[0].Input.StartDate)
	assert.Equal(t, StageSiteDone, events[1].Stage)
	assert.Equal(t, 1, events[1].Done)
	assert.NoError(t, events[1].ctxErr, "site events must survive cancellation")

	done := events[2]
	assert.Equal(t, StageRunDone, done.Stage)
	assert.Equal(t, store.RunCanceled, done.Status)
	assert.Equal(t, 4*time.Second, done.Dur)
	assert.Same(t, stats, done.Statistics)
	assert.Contains(t, done.Note, "interrupted")
	for _, evt := range events {
		assert.Equal(t, "run-9", evt.RunID)
		assert.Equal(t, store.ModeUniversal, evt.Mode)
	}
}

func TestReporterNilEmitter(t *testing.T) {
	t.Parallel()

	r := NewReporter(nil, &tickClock{}, "run", store.ModeScrape)
	r.Start(context.Background(), meeting.Input{})
	r.Site(context.Background(), meeting.SiteResult{}, 1, 1)
	r.Finish(context.Background(), nil, nil)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, store.RunSuccess, StatusFor(nil))
	assert.Equal(t, store.RunCanceled, StatusFor(fmt.Errorf("x: %w", context.Canceled)))
	assert.Equal(t, store.RunError, StatusFor(context.DeadlineExceeded))
	assert.Equal(t, store.RunError, StatusFor(errors.New("boom")))
}

type recordedEvent struct {
	Event
	ctxErr error
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEmitter) Emit(ctx context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Event: evt, ctxErr: ctx.Err()})
}

func (r *recordingEmitter) Events() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

type tickClock struct {
	now  time.Time
	step time.Duration
}

func (c *tickClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}
