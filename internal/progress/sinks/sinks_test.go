package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/progress"
	pubmemory "github.com/JakeFAU/meeting-crawler/internal/publisher/memory"
	"github.com/JakeFAU/meeting-crawler/internal/storage/memory"
	"github.com/JakeFAU/meeting-crawler/internal/store"
)

var baseTS = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func runEvents(runID string, mode store.Mode) []progress.Event {
	in := meeting.Input{
		StartDate: "2025-01-01",
		EndDate:   "2025-01-31",
		BaseURLs:  []string{"https://a.example.gov", "https://b.example.gov"},
	}
	stats := &meeting.Statistics{
		TotalSitesRequested:      2,
		SitesSuccessfullyScraped: 2,
		SitesWithMeetingsFound:   1,
		TotalMeetingsExtracted:   1,
		CoveragePercentage:       50,
		DurationSeconds:          3,
	}
	return []progress.Event{
		{RunID: runID, TS: baseTS, Stage: progress.StageRunStart, Mode: mode, Input: in},
		{
			RunID: runID, TS: baseTS.Add(time.Second), Stage: progress.StageSiteDone, Mode: mode,
			Site: meeting.SiteResult{BaseURL: "https://a.example.gov", Records: []meeting.Record{{
				Title: "City Council", Date: "2025-01-14", AgendaURL: "https://a.example.gov/agenda.pdf",
			}}},
			Done: 1, Total: 2,
		},
		{
			RunID: runID, TS: baseTS.Add(2 * time.Second), Stage: progress.StageSiteDone, Mode: mode,
			Site: meeting.SiteResult{BaseURL: "https://b.example.gov", Records: []meeting.Record{}},
			Done: 2, Total: 2,
		},
		{
			RunID: runID, TS: baseTS.Add(3 * time.Second), Stage: progress.StageRunDone, Mode: mode,
			Status: store.RunSuccess, Statistics: stats, Dur: 3 * time.Second,
		},
	}
}

func consumeAll(t *testing.T, sink progress.Sink, events []progress.Event) {
	t.Helper()
	for _, evt := range events {
		require.NoError(t, sink.Consume(context.Background(), evt))
	}
}

func objectFor(runID string) string { return runID + ".json" }

func TestOutputSinkScrapeWritesProgressively(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	sink := NewOutputSink(blobs, objectFor, zap.NewNop())
	events := runEvents("run-1", store.ModeScrape)

	consumeAll(t, sink, events[:2])
	data, ok := blobs.Object("run-1.json")
	require.True(t, ok)
	var partial []meeting.SiteResult
	require.NoError(t, json.Unmarshal(data, &partial))
	require.Len(t, partial, 1)
	assert.Equal(t, "https://a.example.gov", partial[0].BaseURL)

	consumeAll(t, sink, events[2:])
	data, ok = blobs.Object("run-1.json")
	require.True(t, ok)
	var final []meeting.SiteResult
	require.NoError(t, json.Unmarshal(data, &final))
	require.Len(t, final, 2)
	assert.Equal(t, "https://b.example.gov", final[1].BaseURL)
	assert.Empty(t, final[1].Records)
	assert.Equal(t, 3, blobs.Puts())
}

func TestOutputSinkUniversalDocuments(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	sink := NewOutputSink(blobs, objectFor, zap.NewNop())
	events := runEvents("run-u", store.ModeUniversal)

	consumeAll(t, sink, events[:2])
	data, ok := blobs.Object("run-u.json")
	require.True(t, ok)
	var partial struct {
		Results    []meeting.SiteResult `json:"results"`
		Statistics map[string]any       `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(data, &partial))
	require.Len(t, partial.Results, 1)
	assert.Equal(t, true, partial.Statistics["in_progress"])
	assert.InDelta(t, 1, partial.Statistics["sites_completed"], 0)
	assert.InDelta(t, 2, partial.Statistics["total_sites"], 0)
	assert.InDelta(t, 1, partial.Statistics["meetings_so_far"], 0)

	consumeAll(t, sink, events[2:])
	data, ok = blobs.Object("run-u.json")
	require.True(t, ok)
	var report meeting.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Len(t, report.Results, 2)
	assert.Equal(t, 50.0, report.Statistics.CoveragePercentage)
	assert.Equal(t, 2, report.Statistics.TotalSitesRequested)
}

func TestOutputSinkSkipsRunsWithoutOutput(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	sink := NewOutputSink(blobs, objectFor, zap.NewNop())
	err := sink.Consume(context.Background(), progress.Event{
		RunID: "bad", TS: baseTS, Stage: progress.StageRunDone, Mode: store.ModeScrape,
		Status: store.RunError, Note: "invalid input",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, blobs.Puts())
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}

func TestOutputSinkReportsWriteErrors(t *testing.T) {
	t.Parallel()

	sink := NewOutputSink(failingBlobs{}, objectFor, nil)
	events := runEvents("run-f", store.ModeScrape)
	require.NoError(t, sink.Consume(context.Background(), events[0]))
	err := sink.Consume(context.Background(), events[1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-f.json")
}

func TestStoreSinkPersistsLifecycle(t *testing.T) {
	t.Parallel()

	repo := memory.NewRunStore()
	sink := NewStoreSink(repo)
	consumeAll(t, sink, runEvents("run-s", store.ModeUniversal))

	run, err := repo.GetRun(context.Background(), "run-s")
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, run.Status)
	assert.Equal(t, store.ModeUniversal, run.Mode)
	assert.Equal(t, 2, run.SitesCompleted)
	assert.Equal(t, 1, run.MeetingsFound)
	require.NotNil(t, run.StartedAt)
	assert.True(t, run.StartedAt.Equal(baseTS))
	require.NotNil(t, run.Statistics)
	assert.Equal(t, 50.0, run.Statistics.CoveragePercentage)

	sites, err := repo.ListSites(context.Background(), "run-s")
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "https://a.example.gov", sites[0].BaseURL)
}

func TestStoreSinkWrapsRepositoryErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(memory.NewRunStore())
	err := sink.Consume(context.Background(), runEvents("missing", store.ModeScrape)[1])
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPublishSinkPublishesSitesAndRuns(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	sink := NewPublishSink(pub)
	consumeAll(t, sink, runEvents("run-p", store.ModeScrape))

	msgs := pub.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, KindSiteDone, msgs[0].Kind)
	assert.Equal(t, KindSiteDone, msgs[1].Kind)
	assert.Equal(t, KindRunDone, msgs[2].Kind)

	var site SiteMessage
	require.NoError(t, json.Unmarshal(msgs[0].Data, &site))
	assert.Equal(t, "run-p", site.RunID)
	assert.Equal(t, 1, site.Meetings)
	assert.Equal(t, 1, site.Done)
	assert.Equal(t, 2, site.Total)

	var run RunMessage
	require.NoError(t, json.Unmarshal(msgs[2].Data, &run))
	assert.Equal(t, "success", run.Status)
	assert.Equal(t, 3.0, run.DurationSeconds)
	require.NotNil(t, run.Statistics)
	assert.Equal(t, 1, run.Statistics.TotalMeetingsExtracted)
}

func TestPublishSinkNilPublisher(t *testing.T) {
	t.Parallel()

	sink := NewPublishSink(nil)
	consumeAll(t, sink, runEvents("run-n", store.ModeScrape))
}

func TestPrometheusSinkTracksRuns(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	events := runEvents("run-m", store.ModeUniversal)
	consumeAll(t, sink, events[:1])
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("universal")))

	consumeAll(t, sink, events[1:])
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.siteMeetings))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.runDuration))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkAcceptsLifecycle(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(zap.NewNop())
	consumeAll(t, sink, runEvents("run-l", store.ModeScrape))
	assert.Empty(t, sink.totals)
	require.NoError(t, sink.Close(context.Background()))
}
