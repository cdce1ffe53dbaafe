package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Mode selects which pipeline a run executes.
type Mode string

// Run modes.
const (
	ModeScrape    Mode = "scrape"
	ModeUniversal Mode = "universal"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeScrape || m == ModeUniversal
}

// RunStatus mirrors the meeting_runs status column.
type RunStatus string

// Run statuses.
const (
	RunQueued   RunStatus = "queued"
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunError    RunStatus = "error"
	RunCanceled RunStatus = "canceled"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunError || s == RunCanceled
}

// Run is one submitted scrape request and its progress.
type Run struct {
	ID             string              `json:"run_id"`
	Mode           Mode                `json:"mode"`
	Status         RunStatus           `json:"status"`
	Input          meeting.Input       `json:"input"`
	SubmittedAt    time.Time           `json:"submitted_at"`
	StartedAt      *time.Time          `json:"started_at,omitempty"`
	FinishedAt     *time.Time          `json:"finished_at,omitempty"`
	SitesCompleted int                 `json:"sites_completed"`
	MeetingsFound  int                 `json:"meetings_found"`
	Statistics     *meeting.Statistics `json:"statistics,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// RunRepository persists runs and their site results.
type RunRepository interface {
	// CreateRun records a queued run.
	CreateRun(ctx context.Context, run Run) error
	// UpsertRunStart marks a run running, inserting it when absent.
	UpsertRunStart(ctx context.Context, run Run, startedAt time.Time) error
	// SaveSite stores one finished site and bumps the run counters.
	SaveSite(ctx context.Context, runID string, site meeting.SiteResult, at time.Time) error
	// CompleteRun marks the run finished with status, error text and optional statistics.
	CompleteRun(
		ctx context.Context,
		runID string,
		finishedAt time.Time,
		status RunStatus,
		errMsg string,
		stats *meeting.Statistics,
	) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID string) (Run, error)
	// ListSites returns the stored site results of a run in completion order.
	ListSites(ctx context.Context, runID string) ([]meeting.SiteResult, error)
}
