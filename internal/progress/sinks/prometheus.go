package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/meeting-crawler/internal/progress"
)

// PrometheusSink exports run-level progress: runs started, finished and in
// flight, run wall time, and meetings per finished site.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec
	siteMeetings  prometheus.Histogram

	running map[string]struct{}
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meetings_runs_started_total",
			Help: "Runs started, partitioned by mode.",
		}, []string{"mode"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meetings_runs_completed_total",
			Help: "Runs finished, partitioned by terminal status.",
		}, []string{"status"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meetings_runs_running",
			Help: "Runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meetings_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{10, 30, 60, 300, 600, 1200, 1800, 3600, 7200},
		}, []string{"status"}),
		siteMeetings: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetings_site_records",
			Help:    "Meeting records found per finished site.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		running: make(map[string]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.siteMeetings,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors. It is only called from the hub goroutine.
func (s *PrometheusSink) Consume(_ context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(string(evt.Mode)).Inc()
		if _, ok := s.running[evt.RunID]; !ok {
			s.running[evt.RunID] = struct{}{}
			s.runsRunning.Inc()
		}
	case progress.StageSiteDone:
		s.siteMeetings.Observe(float64(len(evt.Site.Records)))
	case progress.StageRunDone:
		status := string(evt.Status)
		s.runsCompleted.WithLabelValues(status).Inc()
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(status).Observe(evt.Dur.Seconds())
		}
		if _, ok := s.running[evt.RunID]; ok {
			delete(s.running, evt.RunID)
			s.runsRunning.Dec()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
