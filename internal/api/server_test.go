package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/config"
	"github.com/JakeFAU/meeting-crawler/internal/dispatcher"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	queueMemory "github.com/JakeFAU/meeting-crawler/internal/queue/memory"
	"github.com/JakeFAU/meeting-crawler/internal/resolver"
	"github.com/JakeFAU/meeting-crawler/internal/storage/memory"
	"github.com/JakeFAU/meeting-crawler/internal/store"
	"github.com/JakeFAU/meeting-crawler/internal/worker"
)

const (
	runA = "0190f0b6-6a6e-7b3c-9c1d-2e4f5a6b7c8d"
	runB = "0190f0b6-6a6e-7b3c-9c1d-2e4f5a6b7c8e"
)

type testEnv struct {
	server   *Server
	runs     *memory.RunStore
	queue    *queueMemory.Queue[worker.Job]
	registry *worker.Registry
	resolver *fakeResolver
}

func newTestEnv(t *testing.T, mutate func(*config.Config), checks ...ReadinessCheck) *testEnv {
	t.Helper()
	env := &testEnv{
		runs:     memory.NewRunStore(),
		queue:    queueMemory.NewQueue[worker.Job](10),
		registry: worker.NewRegistry(),
		resolver: &fakeResolver{},
	}
	cfg := config.Config{Logging: config.LoggingConfig{Development: true}}
	if mutate != nil {
		mutate(&cfg)
	}
	env.server = NewServer(
		env.runs,
		dispatcher.New(env.queue, nil),
		env.registry,
		env.resolver,
		&fakeIDGen{ids: []string{runA, runB}},
		&fakeClock{now: time.Unix(100, 0).UTC()},
		cfg,
		zap.NewNop(),
		checks...,
	)
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedRun(t *testing.T, id string, mode store.Mode) {
	t.Helper()
	require.NoError(t, e.runs.CreateRun(context.Background(), store.Run{
		ID:   id,
		Mode: mode,
		Input: meeting.Input{
			StartDate: "2025-01-01",
			EndDate:   "2025-01-31",
			BaseURLs:  []string{"https://a.example.gov", "https://b.example.gov"},
		},
		SubmittedAt: time.Unix(90, 0).UTC(),
	}))
}

const validRun = `{"start_date":"2025-01-01","end_date":"2025-01-31","base_urls":["https://a.example.gov"]}`

func TestServer_SubmitRun_Succeeds(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/v1/runs", validRun)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), runA)

	job, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runA, job.RunID)
	assert.Equal(t, store.ModeScrape, job.Mode)
	assert.Equal(t, []string{"https://a.example.gov"}, job.Input.BaseURLs)

	run, err := env.runs.GetRun(context.Background(), runA)
	require.NoError(t, err)
	assert.Equal(t, store.RunQueued, run.Status)
	assert.True(t, run.SubmittedAt.Equal(time.Unix(100, 0)))
}

func TestServer_SubmitRun_UniversalMode(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	body := `{"start_date":"2025-01-01","end_date":"2025-01-31","base_urls":[" https://a.example.gov ",""],"mode":"Universal"}`
	rec := env.do(http.MethodPost, "/v1/runs", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	job, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.ModeUniversal, job.Mode)
	assert.Equal(t, []string{"https://a.example.gov"}, job.Input.BaseURLs)
}

func TestServer_SubmitRun_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", "{invalid", "invalid JSON"},
		{"unknown field", `{"urls":["https://a.example.gov"]}`, "invalid JSON"},
		{"no urls", `{"start_date":"2025-01-01","end_date":"2025-01-31","base_urls":[]}`, "base_urls required"},
		{"bad url", `{"start_date":"2025-01-01","end_date":"2025-01-31","base_urls":["ftp://x"]}`, "invalid base url"},
		{"bad dates", `{"start_date":"2025-02-01","end_date":"2025-01-31","base_urls":["https://a.example.gov"]}`, "invalid dates"},
		{"bad mode", `{"start_date":"2025-01-01","end_date":"2025-01-31","base_urls":["https://a.example.gov"],"mode":"fast"}`, "mode must be"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, nil)
			rec := env.do(http.MethodPost, "/v1/runs", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want)
			assert.Equal(t, 0, env.queue.Len())
		})
	}
}

func TestServer_SubmitRun_EnqueueFailureMarksRun(t *testing.T) {
	t.Parallel()

	runs := memory.NewRunStore()
	server := NewServer(
		runs,
		failingEnqueuer{},
		worker.NewRegistry(),
		nil,
		&fakeIDGen{ids: []string{runA}},
		&fakeClock{now: time.Unix(100, 0).UTC()},
		config.Config{},
		zap.NewNop(),
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(validRun))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	run, err := runs.GetRun(context.Background(), runA)
	require.NoError(t, err)
	assert.Equal(t, store.RunError, run.Status)
	assert.Equal(t, "queue unavailable", run.Error)
}

func TestServer_GetRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.seedRun(t, runA, store.ModeScrape)

	rec := env.do(http.MethodGet, "/v1/runs/"+runA, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, runA, run.ID)
	assert.Equal(t, store.RunQueued, run.Status)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/v1/runs/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/v1/runs/"+runB, "").Code)
}

func TestServer_GetRunSites(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.seedRun(t, runA, store.ModeScrape)
	ctx := context.Background()
	require.NoError(t, env.runs.UpsertRunStart(ctx, store.Run{ID: runA}, time.Unix(95, 0)))
	require.NoError(t, env.runs.SaveSite(ctx, runA, meeting.SiteResult{
		BaseURL: "https://a.example.gov",
		Records: []meeting.Record{{Title: "Council", Date: "2025-01-14"}},
	}, time.Unix(96, 0)))

	rec := env.do(http.MethodGet, "/v1/runs/"+runA+"/sites", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status         string               `json:"status"`
		SitesCompleted int                  `json:"sites_completed"`
		TotalSites     int                  `json:"total_sites"`
		Results        []meeting.SiteResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "running", body.Status)
	assert.Equal(t, 1, body.SitesCompleted)
	assert.Equal(t, 2, body.TotalSites)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "Council", body.Results[0].Records[0].Title)
}

func TestServer_GetRunResult(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.seedRun(t, runA, store.ModeUniversal)
	env.seedRun(t, runB, store.ModeScrape)
	ctx := context.Background()

	rec := env.do(http.MethodGet, "/v1/runs/"+runA+"/result", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "queued")

	require.NoError(t, env.runs.UpsertRunStart(ctx, store.Run{ID: runA}, time.Unix(95, 0)))
	require.NoError(t, env.runs.SaveSite(ctx, runA, meeting.SiteResult{BaseURL: "https://a.example.gov", Records: []meeting.Record{}}, time.Unix(96, 0)))
	stats := &meeting.Statistics{TotalSitesRequested: 2, SitesSuccessfullyScraped: 1}
	require.NoError(t, env.runs.CompleteRun(ctx, runA, time.Unix(97, 0), store.RunSuccess, "", stats))

	rec = env.do(http.MethodGet, "/v1/runs/"+runA+"/result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report meeting.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Len(t, report.Results, 1)
	assert.Equal(t, 2, report.Statistics.TotalSitesRequested)

	require.NoError(t, env.runs.CompleteRun(ctx, runB, time.Unix(97, 0), store.RunError, "boom", nil))
	rec = env.do(http.MethodGet, "/v1/runs/"+runB+"/result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestServer_CancelQueuedRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.seedRun(t, runA, store.ModeScrape)

	rec := env.do(http.MethodPost, "/v1/runs/"+runA+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "canceled")

	run, err := env.runs.GetRun(context.Background(), runA)
	require.NoError(t, err)
	assert.Equal(t, store.RunCanceled, run.Status)

	_, release, ok := env.registry.Acquire(context.Background(), runA)
	release()
	assert.False(t, ok)

	rec = env.do(http.MethodPost, "/v1/runs/"+runA+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_CancelRunningRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.seedRun(t, runA, store.ModeScrape)
	require.NoError(t, env.runs.UpsertRunStart(context.Background(), store.Run{ID: runA}, time.Unix(95, 0)))
	runCtx, release, ok := env.registry.Acquire(context.Background(), runA)
	require.True(t, ok)
	defer release()

	rec := env.do(http.MethodPost, "/v1/runs/"+runA+"/cancel", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "canceling")
	assert.ErrorIs(t, runCtx.Err(), context.Canceled)
}

func TestServer_Resolve(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.resolver.resolved = []string{"https://cdn.example.gov/meeting.mp4"}

	rec := env.do(http.MethodPost, "/v1/resolve", `{"requests":[{"url":"https://video.example.gov/1"},{"url":"https://a.example.gov/a.pdf","type":"document"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"requested":2,"resolved":["https://cdn.example.gov/meeting.mp4"]}`, rec.Body.String())
	require.Len(t, env.resolver.got, 2)
	assert.Equal(t, resolver.Document, env.resolver.got[1].Type)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/v1/resolve", `{"requests":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/v1/resolve", `{"requests":[{"url":"https://x.example.gov","type":"audio"}]}`).Code)
}

func TestServer_HealthAndReadiness(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/readyz", "").Code)

	failing := newTestEnv(t, nil, func(context.Context) error { return errors.New("db down") })
	rec := failing.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.do(http.MethodGet, "/healthz", "")
	rec := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	})
	env.seedRun(t, runA, store.ModeScrape)

	rec := env.do(http.MethodGet, "/v1/runs/"+runA, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+runA, nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "").Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeIDGen struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return "", errors.New("no ids left")
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeResolver struct {
	mu       sync.Mutex
	got      []resolver.Request
	resolved []string
}

func (f *fakeResolver) BatchResolve(_ context.Context, reqs []resolver.Request) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, reqs...)
	return f.resolved
}

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(context.Context, worker.Job) error {
	return errors.New("queue closed")
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
