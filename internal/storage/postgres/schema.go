package postgres

import (
	"context"
	"fmt"
)

const runSchema = `
CREATE TABLE IF NOT EXISTS meeting_runs (
	id              TEXT PRIMARY KEY,
	mode            TEXT NOT NULL,
	status          TEXT NOT NULL,
	input           JSONB NOT NULL,
	submitted_at    TIMESTAMPTZ NOT NULL,
	started_at      TIMESTAMPTZ,
	finished_at     TIMESTAMPTZ,
	sites_completed INTEGER NOT NULL DEFAULT 0,
	meetings_found  INTEGER NOT NULL DEFAULT 0,
	statistics      JSONB,
	error_message   TEXT
);
CREATE TABLE IF NOT EXISTS meeting_sites (
	id             BIGSERIAL PRIMARY KEY,
	run_id         TEXT NOT NULL REFERENCES meeting_runs (id) ON DELETE CASCADE,
	base_url       TEXT NOT NULL,
	meetings_found INTEGER NOT NULL,
	records        JSONB NOT NULL,
	completed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS meeting_sites_run_id_idx ON meeting_sites (run_id);`

const meetingsSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	base_url     TEXT NOT NULL,
	meeting_date DATE NOT NULL,
	title        TEXT NOT NULL,
	agenda_url   TEXT NOT NULL DEFAULT '',
	minutes_url  TEXT NOT NULL DEFAULT '',
	video_url    TEXT NOT NULL DEFAULT '',
	run_id       TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (base_url, meeting_date, title)
);`

// EnsureSchema creates the run, site, and meetings tables when missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, runSchema); err != nil {
		return fmt.Errorf("create run tables: %w", err)
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(meetingsSchema, s.table)); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}
