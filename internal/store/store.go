// Package store persists agent runs and their action records in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/deskpilot/internal/agent"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS agent_runs (
    id          UUID PRIMARY KEY,
    objective   TEXT NOT NULL,
    variant     TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT '',
    summary     TEXT NOT NULL DEFAULT '',
    steps       INTEGER NOT NULL DEFAULT 0,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS action_records (
    id          UUID PRIMARY KEY,
    run_id      UUID NOT NULL REFERENCES agent_runs(id) ON DELETE CASCADE,
    step_index  INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    action      TEXT NOT NULL DEFAULT '',
    args        JSONB NOT NULL DEFAULT '{}',
    observation TEXT NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL,
    UNIQUE (run_id, step_index)
);
`

const (
	sqlInsertRun = `
        INSERT INTO agent_runs (id, objective, variant, started_at)
        VALUES ($1, $2, $3, $4);
    `
	sqlInsertRecord = `
        INSERT INTO action_records (id, run_id, step_index, kind, action, args, observation, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
    `
	sqlFinishRun = `
        UPDATE agent_runs
        SET status = $2, summary = $3, steps = $4, finished_at = $5
        WHERE id = $1;
    `
	sqlSelectRun = `
        SELECT objective, variant, status, summary, steps, started_at, finished_at
        FROM agent_runs
        WHERE id = $1;
    `
	sqlSelectRecords = `
        SELECT id, step_index, kind, action, args, observation, recorded_at
        FROM action_records
        WHERE run_id = $1
        ORDER BY step_index ASC;
    `
	sqlListRuns = `
        SELECT id, objective, variant, status, summary, steps, started_at, finished_at
        FROM agent_runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
)

// Store is the PostgreSQL run recorder.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ agent.Recorder = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// StartRun inserts the run row.
func (s *Store) StartRun(ctx context.Context, out *agent.Outcome) error {
	_, err := s.pool.Exec(ctx, sqlInsertRun, out.RunID, out.Objective, out.Variant, out.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", out.RunID, err)
	}
	return nil
}

// AppendRecord inserts one action record.
func (s *Store) AppendRecord(ctx context.Context, rec agent.ActionRecord) error {
	args, err := encodeArgs(rec.Args)
	if err != nil {
		return fmt.Errorf("failed to encode args for record %d: %w", rec.StepIndex, err)
	}
	_, err = s.pool.Exec(ctx, sqlInsertRecord,
		rec.ID, rec.RunID, rec.StepIndex,
		string(rec.Kind), rec.Action, args,
		rec.Observation, rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record %d of run %s: %w", rec.StepIndex, rec.RunID, err)
	}
	return nil
}

// FinishRun stores the final status of the run.
func (s *Store) FinishRun(ctx context.Context, out *agent.Outcome) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	tag, err := tx.Exec(ctx, sqlFinishRun, out.RunID, string(out.Status), out.Summary, out.Steps, out.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", out.RunID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("failed to update run %s: %w", out.RunID, ErrRunNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadRun reads a run and its records back.
func (s *Store) LoadRun(ctx context.Context, id uuid.UUID) (*agent.Outcome, error) {
	out := &agent.Outcome{RunID: id}
	var status string
	var finished *time.Time
	err := s.pool.QueryRow(ctx, sqlSelectRun, id).Scan(
		&out.Objective, &out.Variant, &status, &out.Summary, &out.Steps, &out.StartedAt, &finished,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	out.Status = agent.Status(status)
	if finished != nil {
		out.FinishedAt = *finished
	}

	rows, err := s.pool.Query(ctx, sqlSelectRecords, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec := agent.ActionRecord{RunID: id}
		var kind string
		var args []byte
		if err := rows.Scan(&rec.ID, &rec.StepIndex, &kind, &rec.Action, &args, &rec.Observation, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		rec.Kind = agent.RecordKind(kind)
		if rec.Args, err = decodeArgs(args); err != nil {
			return nil, fmt.Errorf("failed to decode args of record %d: %w", rec.StepIndex, err)
		}
		out.Records = append(out.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// ListRuns returns the most recent runs without their records.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]agent.Outcome, error) {
	rows, err := s.pool.Query(ctx, sqlListRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []agent.Outcome
	for rows.Next() {
		var o agent.Outcome
		var status string
		var finished *time.Time
		if err := rows.Scan(&o.RunID, &o.Objective, &o.Variant, &status, &o.Summary, &o.Steps, &o.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		o.Status = agent.Status(status)
		if finished != nil {
			o.FinishedAt = *finished
		}
		runs = append(runs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// encodeArgs never yields SQL NULL; an absent map is stored as an empty object.
func encodeArgs(args map[string]any) ([]byte, error) {
	if len(args) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(args)
}

func decodeArgs(raw []byte) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}
