package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/progress"
)

// LogSink emits one structured log line per run milestone, with running
// totals so the log reads as a progress report.
type LogSink struct {
	logger *zap.Logger
	totals map[string]int
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger, totals: make(map[string]int)}
}

// Consume logs the event. It is only called from the hub goroutine.
func (s *LogSink) Consume(_ context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		s.totals[evt.RunID] = 0
		s.logger.Info("Run started",
			zap.String("run_id", evt.RunID),
			zap.String("mode", string(evt.Mode)),
			zap.Int("sites", len(evt.Input.BaseURLs)),
			zap.String("start_date", evt.Input.StartDate),
			zap.String("end_date", evt.Input.EndDate),
		)
	case progress.StageSiteDone:
		s.totals[evt.RunID] += len(evt.Site.Records)
		s.logger.Info("Saved site meetings",
			zap.String("run_id", evt.RunID),
			zap.String("base_url", evt.Site.BaseURL),
			zap.Int("meetings", len(evt.Site.Records)),
			zap.Int("done", evt.Done),
			zap.Int("total", evt.Total),
			zap.Int("meetings_so_far", s.totals[evt.RunID]),
		)
	case progress.StageRunDone:
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("status", string(evt.Status)),
			zap.Int("meetings", s.totals[evt.RunID]),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Statistics != nil {
			fields = append(fields,
				zap.Int("sites_with_meetings", evt.Statistics.SitesWithMeetingsFound),
				zap.Float64("coverage_percentage", evt.Statistics.CoveragePercentage),
			)
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		delete(s.totals, evt.RunID)
		s.logger.Info("Run finished", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
