package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/store"
)

// RunStore provides an in-memory store.RunRepository for development and
// single-process serving.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]store.Run
	sites map[string][]meeting.SiteResult
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:  make(map[string]store.Run),
		sites: make(map[string][]meeting.SiteResult),
	}
}

// CreateRun stores a new run in queued status.
func (s *RunStore) CreateRun(_ context.Context, run store.Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	run.Status = store.RunQueued
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// UpsertRunStart marks the run running, creating it when absent.
func (s *RunStore) UpsertRunStart(_ context.Context, run store.Run, startedAt time.Time) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok {
		existing = cloneRun(run)
		if existing.SubmittedAt.IsZero() {
			existing.SubmittedAt = startedAt
		}
	}
	existing.Status = store.RunRunning
	existing.StartedAt = pointerTime(startedAt)
	s.runs[run.ID] = existing
	return nil
}

// SaveSite appends a finished site and bumps the run counters.
func (s *RunStore) SaveSite(_ context.Context, runID string, site meeting.SiteResult, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.SitesCompleted++
	run.MeetingsFound += len(site.Records)
	s.runs[runID] = run
	s.sites[runID] = append(s.sites[runID], cloneSite(site))
	return nil
}

// CompleteRun records the terminal status of a run.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID string,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg string,
	stats *meeting.Statistics,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = pointerTime(finishedAt)
	if stats != nil {
		cp := *stats
		run.Statistics = &cp
	}
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return cloneRun(run), nil
}

// ListSites returns copies of the stored site results for a run.
func (s *RunStore) ListSites(_ context.Context, runID string) ([]meeting.SiteResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, store.ErrNotFound
	}
	sites := s.sites[runID]
	out := make([]meeting.SiteResult, 0, len(sites))
	for _, site := range sites {
		out = append(out, cloneSite(site))
	}
	return out, nil
}

func cloneRun(run store.Run) store.Run {
	run.Input.BaseURLs = append([]string(nil), run.Input.BaseURLs...)
	if run.Statistics != nil {
		cp := *run.Statistics
		run.Statistics = &cp
	}
	return run
}

func cloneSite(site meeting.SiteResult) meeting.SiteResult {
	site.Records = append([]meeting.Record{}, site.Records...)
	return site
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
