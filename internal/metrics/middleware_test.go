package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsStatusAndRoute(t *testing.T) {
	Init()
	ok := httpRequestsTotal.WithLabelValues(http.MethodPost, "202")
	missing := httpRequestsTotal.WithLabelValues(http.MethodGet, "404")
	okBefore, missingBefore := testutil.ToFloat64(ok), testutil.ToFloat64(missing)
	seriesBefore := testutil.CollectAndCount(httpRequestDurationSeconds)

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Post("/v1/runs/{run_id}/cancel", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs/abc/cancel", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, missingBefore+1, testutil.ToFloat64(missing))
	assert.Greater(t, testutil.CollectAndCount(httpRequestDurationSeconds), seriesBefore)
}

func TestMiddlewareDefaultsToOK(t *testing.T) {
	Init()
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "200")
	before := testutil.ToFloat64(counter)

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
