package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/pipeline"
	"github.com/JakeFAU/meeting-crawler/internal/progress"
	"github.com/JakeFAU/meeting-crawler/internal/store"
)

func TestWorkerExecuteScrapeEmitsLifecycle(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{results: []meeting.SiteResult{
		{BaseURL: "https://a.example.gov", Records: []meeting.Record{{Title: "Council", Date: "2025-01-14"}}},
		{BaseURL: "https://b.example.gov", Records: []meeting.Record{}},
	}}
	emitter := &recordingEmitter{}
	w := New(nil, runner, emitter, fixedClock{}, nil, zap.NewNop())

	out, err := w.Execute(context.Background(), Job{RunID: "run-1", Mode: store.ModeScrape, Input: sampleInput()})
	require.NoError(t, err)
	assert.Len(t, out.Results, 2)
	assert.Nil(t, out.Statistics)
	assert.Equal(t, 1, runner.scrapeCalls)

	events := emitter.snapshot()
	require.Len(t, events, 4)
	assert.Equal(t, progress.StageRunStart, events[0].Stage)
	assert.Equal(t, progress.StageSiteDone, events[1].Stage)
	assert.Equal(t, 2, events[2].Done)
	assert.Equal(t, progress.StageRunDone, events[3].Stage)
	assert.Equal(t, store.RunSuccess, events[3].Status)
	assert.Equal(t, store.ModeScrape, events[3].Mode)
}

func TestWorkerExecuteUniversalCarriesStatistics(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{results: []meeting.SiteResult{{BaseURL: "https://a.example.gov", Records: []meeting.Record{}}}}
	emitter := &recordingEmitter{}
	w := New(nil, runner, emitter, fixedClock{}, nil, nil)

	out, err := w.Execute(context.Background(), Job{RunID: "run-u", Mode: store.ModeUniversal, Input: sampleInput()})
	require.NoError(t, err)
	require.NotNil(t, out.Statistics)
	assert.Equal(t, 1, out.Statistics.TotalSitesRequested)
	assert.Equal(t, 1, runner.universalCalls)

	events := emitter.snapshot()
	last := events[len(events)-1]
	require.NotNil(t, last.Statistics)
	assert.Equal(t, store.RunSuccess, last.Status)
}

func TestWorkerExecuteInvalidInput(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: fmt.Errorf("%w: bad dates", pipeline.ErrInvalidInput)}
	emitter := &recordingEmitter{}
	w := New(nil, runner, emitter, fixedClock{}, nil, nil)

	out, err := w.Execute(context.Background(), Job{RunID: "run-bad", Mode: store.ModeUniversal, Input: sampleInput()})
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrInvalidInput)
	assert.Nil(t, out.Statistics)

	events := emitter.snapshot()
	last := events[len(events)-1]
	assert.Equal(t, store.RunError, last.Status)
	assert.Contains(t, last.Note, "bad dates")
}

func TestWorkerExecuteUnknownMode(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	w := New(nil, runner, &recordingEmitter{}, fixedClock{}, nil, nil)
	_, err := w.Execute(context.Background(), Job{RunID: "run-x", Mode: "other", Input: sampleInput()})
	require.ErrorIs(t, err, pipeline.ErrInvalidInput)
	assert.Zero(t, runner.scrapeCalls+runner.universalCalls)
}

func TestWorkerRunProcessesQueue(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := newChanQueue(Job{RunID: "queued", Mode: store.ModeScrape, Input: sampleInput()})
	runner := &fakeRunner{results: []meeting.SiteResult{{BaseURL: "https://a.example.gov", Records: []meeting.Record{}}}}
	emitter := &recordingEmitter{}
	w := New(queue, runner, emitter, fixedClock{}, NewRegistry(), zap.NewNop())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		events := emitter.snapshot()
		return len(events) > 0 && events[len(events)-1].Stage == progress.StageRunDone
	}, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerSkipsRunsCanceledWhileQueued(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	assert.False(t, registry.Cancel("queued"))

	runner := &fakeRunner{}
	emitter := &recordingEmitter{}
	w := New(nil, runner, emitter, fixedClock{}, registry, zap.NewNop())
	w.process(context.Background(), Job{RunID: "queued", Mode: store.ModeScrape, Input: sampleInput()})

	assert.Zero(t, runner.scrapeCalls)
	assert.Empty(t, emitter.snapshot())
}

func TestWorkerCancelRunningRun(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	runner := &fakeRunner{block: make(chan struct{})}
	emitter := &recordingEmitter{}
	w := New(nil, runner, emitter, fixedClock{}, registry, zap.NewNop())

	done := make(chan struct{})
	go func() {
		w.process(context.Background(), Job{RunID: "long", Mode: store.ModeScrape, Input: sampleInput()})
		close(done)
	}()

	require.Eventually(t, func() bool { return registry.Running("long") }, time.Second, 5*time.Millisecond)
	assert.True(t, registry.Cancel("long"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancel")
	}
	assert.False(t, registry.Running("long"))
	events := emitter.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, store.RunCanceled, events[len(events)-1].Status)
}

func TestWorkerStopsWhenQueueFails(t *testing.T) {
	t.Parallel()

	w := New(errQueue{}, &fakeRunner{}, nil, fixedClock{}, nil, zap.NewNop())
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker kept running after queue failure")
	}
}

func sampleInput() meeting.Input {
	return meeting.Input{StartDate: "2025-01-01", EndDate: "2025-01-31", BaseURLs: []string{"https://a.example.gov"}}
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }

type fakeRunner struct {
	mu             sync.Mutex
	results        []meeting.SiteResult
	err            error
	block          chan struct{}
	scrapeCalls    int
	universalCalls int
}

func (r *fakeRunner) Run(ctx context.Context, _ meeting.Input, onSite pipeline.SiteFunc) ([]meeting.SiteResult, error) {
	r.mu.Lock()
	r.scrapeCalls++
	r.mu.Unlock()
	return r.execute(ctx, onSite)
}

func (r *fakeRunner) RunUniversal(ctx context.Context, in meeting.Input, onSite pipeline.SiteFunc) (meeting.Report, error) {
	r.mu.Lock()
	r.universalCalls++
	r.mu.Unlock()
	results, err := r.execute(ctx, onSite)
	return meeting.Report{
		Results:    results,
		Statistics: pipeline.Summarize(results, len(results), len(in.BaseURLs), 0),
	}, err
}

func (r *fakeRunner) execute(ctx context.Context, onSite pipeline.SiteFunc) ([]meeting.SiteResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.block != nil {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("scrape interrupted: %w", ctx.Err())
		case <-r.block:
		}
	}
	for i, res := range r.results {
		onSite(ctx, res, i+1, len(r.results))
	}
	return r.results, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(_ context.Context, evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) snapshot() []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]progress.Event(nil), e.events...)
}

type chanQueue struct {
	ch chan Job
}

func newChanQueue(jobs ...Job) *chanQueue {
	q := &chanQueue{ch: make(chan Job, len(jobs))}
	for _, j := range jobs {
		q.ch <- j
	}
	return q
}

func (q *chanQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case j := <-q.ch:
		return j, nil
	}
}

type errQueue struct{}

func (errQueue) Dequeue(context.Context) (Job, error) {
	return Job{}, errors.New("queue closed")
}
