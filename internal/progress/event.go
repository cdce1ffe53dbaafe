package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/store"
)

// Stage denotes the run milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageSiteDone Stage = "SITE_DONE"
	StageRunDone  Stage = "RUN_DONE"
)

// Event captures one run milestone.
type Event struct {
	// RunID identifies the run.
	RunID string
	// TS is the timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	Mode  store.Mode
	// Input is set on RUN_START.
	Input meeting.Input
	// Site, Done and Total are set on SITE_DONE.
	Site  meeting.SiteResult
	Done  int
	Total int
	// Status, Statistics, Dur and Note are set on RUN_DONE.
	Status     store.RunStatus
	Statistics *meeting.Statistics
	Dur        time.Duration
	Note       string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart:
	case StageSiteDone:
		if e.Site.BaseURL == "" {
			return errors.New("site done requires base url")
		}
	case StageRunDone:
		if !e.Status.Terminal() {
			return fmt.Errorf("run done requires terminal status, got %q", e.Status)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
