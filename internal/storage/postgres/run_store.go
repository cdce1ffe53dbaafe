// Package postgres provides Postgres-backed persistence for runs, their site
// results, and the accumulated meeting records.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and the meetings table name.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// RunStore implements store.RunRepository. Runs live in meeting_runs, site
// results in meeting_sites, and every record is upserted into the meetings
// table keyed by (base_url, meeting_date, title).
type RunStore struct {
	pool   pool
	table  string
	logger *zap.Logger
}

// NewRunStore connects a pool using cfg.
func NewRunStore(ctx context.Context, cfg Config, logger *zap.Logger) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewRunStoreWithPool(p, cfg.Table, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool, table string, logger *zap.Logger) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "meetings"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunStore{pool: p, table: table, logger: logger.Named("postgres")}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *RunStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// CreateRun inserts a queued run.
func (s *RunStore) CreateRun(ctx context.Context, run store.Run) error {
	input, err := json.Marshal(run.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	const query = `
INSERT INTO meeting_runs (id, mode, status, input, submitted_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query, run.ID, string(run.Mode), string(store.RunQueued), input, run.SubmittedAt); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpsertRunStart marks a run running, inserting it for runs that were never queued.
func (s *RunStore) UpsertRunStart(ctx context.Context, run store.Run, startedAt time.Time) error {
	input, err := json.Marshal(run.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	submitted := run.SubmittedAt
	if submitted.IsZero() {
		submitted = startedAt
	}
	const query = `
INSERT INTO meeting_runs (id, mode, status, input, submitted_at, started_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status, started_at = EXCLUDED.started_at`
	if _, err := s.pool.Exec(
		ctx,
		query,
		run.ID,
		string(run.Mode),
		string(store.RunRunning),
		input,
		submitted,
		startedAt,
	); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// SaveSite stores one site result, upserts its records, and bumps the run
// counters in a single transaction.
func (s *RunStore) SaveSite(ctx context.Context, runID string, site meeting.SiteResult, at time.Time) error {
	records, err := json.Marshal(site.Records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := s.saveSite(ctx, tx, runID, site, records, at); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("rollback failed", zap.String("run_id", runID), zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit site: %w", err)
	}
	return nil
}

func (s *RunStore) saveSite(
	ctx context.Context,
	tx pgx.Tx,
	runID string,
	site meeting.SiteResult,
	records []byte,
	at time.Time,
) error {
	tag, err := tx.Exec(ctx, `
UPDATE meeting_runs
SET sites_completed = sites_completed + 1, meetings_found = meetings_found + $2
WHERE id = $1`, runID, len(site.Records))
	if err != nil {
		return fmt.Errorf("update run counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO meeting_sites (run_id, base_url, meetings_found, records, completed_at)
VALUES ($1, $2, $3, $4, $5)`, runID, site.BaseURL, len(site.Records), records, at); err != nil {
		return fmt.Errorf("insert site: %w", err)
	}

	upsert := fmt.Sprintf(`
INSERT INTO %[1]s AS m (base_url, meeting_date, title, agenda_url, minutes_url, video_url, run_id, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (base_url, meeting_date, title) DO UPDATE
SET agenda_url = COALESCE(NULLIF(m.agenda_url, ''), EXCLUDED.agenda_url),
	minutes_url = COALESCE(NULLIF(m.minutes_url, ''), EXCLUDED.minutes_url),
	video_url = COALESCE(NULLIF(m.video_url, ''), EXCLUDED.video_url),
	run_id = EXCLUDED.run_id,
	updated_at = EXCLUDED.updated_at`, s.table)
	for _, rec := range site.Records {
		if _, err := tx.Exec(
			ctx,
			upsert,
			site.BaseURL,
			rec.Date,
			rec.Title,
			rec.AgendaURL,
			rec.MinutesURL,
			rec.VideoURL,
			runID,
			at,
		); err != nil {
			return fmt.Errorf("upsert meeting: %w", err)
		}
	}
	return nil
}

// CompleteRun marks the run finished.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID string,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg string,
	stats *meeting.Statistics,
) error {
	var statsJSON []byte
	if stats != nil {
		var err error
		if statsJSON, err = json.Marshal(stats); err != nil {
			return fmt.Errorf("marshal statistics: %w", err)
		}
	}
	var errText *string
	if errMsg != "" {
		errText = &errMsg
	}
	const query = `
UPDATE meeting_runs
SET finished_at = $1, status = $2, error_message = $3, statistics = $4
WHERE id = $5`
	tag, err := s.pool.Exec(ctx, query, finishedAt, string(status), errText, statsJSON, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, runID string) (store.Run, error) {
	const query = `
SELECT id, mode, status, input, submitted_at, started_at, finished_at,
	sites_completed, meetings_found, statistics, error_message
FROM meeting_runs
WHERE id = $1`
	var (
		run        store.Run
		mode       string
		status     string
		input      []byte
		statistics []byte
		errText    *string
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&mode,
		&status,
		&input,
		&run.SubmittedAt,
		&run.StartedAt,
		&run.FinishedAt,
		&run.SitesCompleted,
		&run.MeetingsFound,
		&statistics,
		&errText,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Run{}, store.ErrNotFound
	}
	if err != nil {
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Mode = store.Mode(mode)
	run.Status = store.RunStatus(status)
	if len(input) > 0 {
		if err := json.Unmarshal(input, &run.Input); err != nil {
			return store.Run{}, fmt.Errorf("decode run input: %w", err)
		}
	}
	if len(statistics) > 0 {
		run.Statistics = &meeting.Statistics{}
		if err := json.Unmarshal(statistics, run.Statistics); err != nil {
			return store.Run{}, fmt.Errorf("decode run statistics: %w", err)
		}
	}
	if errText != nil {
		run.Error = *errText
	}
	return run, nil
}

// ListSites returns a run's site results in completion order.
func (s *RunStore) ListSites(ctx context.Context, runID string) ([]meeting.SiteResult, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT base_url, records
FROM meeting_sites
WHERE run_id = $1
ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []meeting.SiteResult
	for rows.Next() {
		var (
			site    meeting.SiteResult
			records []byte
		)
		if err := rows.Scan(&site.BaseURL, &records); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		site.Records = []meeting.Record{}
		if len(records) > 0 {
			if err := json.Unmarshal(records, &site.Records); err != nil {
				return nil, fmt.Errorf("decode site records: %w", err)
			}
		}
		out = append(out, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return out, nil
}
