package sinks

import (
	"context"
	"fmt"

	"github.com/JakeFAU/meeting-crawler/internal/progress"
	"github.com/JakeFAU/meeting-crawler/internal/store"
)

// StoreSink persists run milestones through a store.RunRepository.
type StoreSink struct {
	repo store.RunRepository
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

// Consume forwards the event to the repository and returns its errors.
func (s *StoreSink) Consume(ctx context.Context, evt progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	switch evt.Stage {
	case progress.StageRunStart:
		run := store.Run{ID: evt.RunID, Mode: evt.Mode, Input: evt.Input}
		if err := s.repo.UpsertRunStart(ctx, run, evt.TS); err != nil {
			return fmt.Errorf("upsert run start: %w", err)
		}
	case progress.StageSiteDone:
		if err := s.repo.SaveSite(ctx, evt.RunID, evt.Site, evt.TS); err != nil {
			return fmt.Errorf("save site: %w", err)
		}
	case progress.StageRunDone:
		if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, evt.Status, evt.Note, evt.Statistics); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
