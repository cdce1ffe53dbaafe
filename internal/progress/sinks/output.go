package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/progress"
	"github.com/JakeFAU/meeting-crawler/internal/store"
)

const jsonContentType = "application/json"

// BlobStore persists output documents.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// ObjectNamer maps a run to the object its output document is written to.
type ObjectNamer func(runID string) string

// OutputSink rewrites a run's output document after every finished site so
// an interrupted run still leaves every completed site on disk. The final
// document is written on RUN_DONE: the site list for scrape runs, and
// results plus statistics for universal runs.
type OutputSink struct {
	blobs  BlobStore
	name   ObjectNamer
	logger *zap.Logger
	runs   map[string]*runOutput
}

type runOutput struct {
	mode    store.Mode
	total   int
	results []meeting.SiteResult
}

// partialReport is the in-progress universal document.
type partialReport struct {
	Results    []meeting.SiteResult `json:"results"`
	Statistics partialStatistics    `json:"statistics"`
}

type partialStatistics struct {
	SitesCompleted int  `json:"sites_completed"`
	TotalSites     int  `json:"total_sites"`
	MeetingsSoFar  int  `json:"meetings_so_far"`
	InProgress     bool `json:"in_progress"`
}

// NewOutputSink writes documents through blobs at the names produced by name.
func NewOutputSink(blobs BlobStore, name ObjectNamer, logger *zap.Logger) *OutputSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutputSink{blobs: blobs, name: name, logger: logger, runs: make(map[string]*runOutput)}
}

// Consume updates the run's document. It is only called from the hub goroutine.
func (s *OutputSink) Consume(ctx context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runs[evt.RunID] = &runOutput{mode: evt.Mode, total: len(evt.Input.BaseURLs), results: []meeting.SiteResult{}}
		return nil
	case progress.StageSiteDone:
		run := s.run(evt)
		if evt.Total > 0 {
			run.total = evt.Total
		}
		run.results = append(run.results, evt.Site)
		return s.write(ctx, evt.RunID, run.partial())
	case progress.StageRunDone:
		run, ok := s.runs[evt.RunID]
		delete(s.runs, evt.RunID)
		if !ok && evt.Statistics == nil {
			return nil
		}
		if !ok {
			run = &runOutput{mode: evt.Mode, results: []meeting.SiteResult{}}
		}
		return s.write(ctx, evt.RunID, run.final(evt.Statistics))
	}
	return nil
}

func (s *OutputSink) run(evt progress.Event) *runOutput {
	run, ok := s.runs[evt.RunID]
	if !ok {
		run = &runOutput{mode: evt.Mode, results: []meeting.SiteResult{}}
		s.runs[evt.RunID] = run
	}
	return run
}

func (r *runOutput) partial() any {
	if r.mode != store.ModeUniversal {
		return r.results
	}
	meetings := 0
	for _, res := range r.results {
		meetings += len(res.Records)
	}
	return partialReport{
		Results: r.results,
		Statistics: partialStatistics{
			SitesCompleted: len(r.results),
			TotalSites:     r.total,
			MeetingsSoFar:  meetings,
			InProgress:     true,
		},
	}
}

func (r *runOutput) final(stats *meeting.Statistics) any {
	if r.mode != store.ModeUniversal {
		return r.results
	}
	report := meeting.Report{Results: r.results}
	if stats != nil {
		report.Statistics = *stats
	}
	return report
}

func (s *OutputSink) write(ctx context.Context, runID string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	name := s.name(runID)
	uri, err := s.blobs.PutObject(ctx, name, jsonContentType, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write output %s: %w", name, err)
	}
	s.logger.Debug("Output written", zap.String("run_id", runID), zap.String("uri", uri))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *OutputSink) Close(context.Context) error {
	return nil
}
