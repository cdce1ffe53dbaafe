package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/config"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/pipeline"
	memoryStorage "github.com/JakeFAU/meeting-crawler/internal/storage/memory"
	"github.com/JakeFAU/meeting-crawler/internal/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Crawler.Browser = config.BrowserStatic
	cfg.Crawler.RequestsPerSecond = -1
	cfg.Output.Provider = config.OutputMemory
	return cfg
}

func TestBuildUsesInMemoryBackends(t *testing.T) {
	t.Parallel()
	app, err := Build(context.Background(), testConfig(t), zap.NewNop(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	assert.Len(t, app.engines, 1)
	assert.Nil(t, app.pgStore)
	assert.Nil(t, app.publisher)
	assert.IsType(t, &memoryStorage.RunStore{}, app.runs)
	assert.IsType(t, &memoryStorage.BlobStore{}, app.blobs)
}

func TestBuildHonorsEngineCount(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Server.Workers = 3
	app, err := Build(context.Background(), cfg, zap.NewNop(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	assert.Len(t, app.engines, 3)

	single, err := Build(context.Background(), cfg, zap.NewNop(), Options{Engines: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = single.Close(context.Background()) })
	assert.Len(t, single.engines, 1)
}

func TestNewJobAssignsDistinctIDs(t *testing.T) {
	t.Parallel()
	app, err := Build(context.Background(), testConfig(t), zap.NewNop(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	in := meeting.Input{StartDate: "2024-01-01", EndDate: "2024-12-31", BaseURLs: []string{"https://example.gov"}}
	a, err := app.NewJob(store.ModeScrape, in)
	require.NoError(t, err)
	b, err := app.NewJob(store.ModeUniversal, in)
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, store.ModeScrape, a.Mode)
	assert.Equal(t, store.ModeUniversal, b.Mode)
	assert.Equal(t, in, b.Input)
}

func TestExecuteRecordsFailedRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	app, err := Build(ctx, testConfig(t), zap.NewNop(), Options{
		ObjectName: func(runID string) string { return "out/" + runID + ".json" },
	})
	require.NoError(t, err)

	job, err := app.NewJob(store.ModeScrape, meeting.Input{StartDate: "not a date", EndDate: "2024-12-31"})
	require.NoError(t, err)
	_, err = app.Execute(ctx, job)
	require.ErrorIs(t, err, pipeline.ErrInvalidInput)

	runs := app.runs
	blobs := app.blobs.(*memoryStorage.BlobStore)
	require.NoError(t, app.Close(ctx))

	run, err := runs.GetRun(ctx, job.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunError, run.Status)
	assert.NotEmpty(t, run.Error)

	_, ok := blobs.Object("out/" + job.RunID + ".json")
	assert.True(t, ok)
}

func TestDefaultObjectName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "runs/abc.json", DefaultObjectName("abc"))
}
