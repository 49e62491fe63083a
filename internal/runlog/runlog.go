// Package runlog implements the Run-logging collaborator of spec.md §6:
// an append-only sink for phase timings and LLM-call telemetry, backed
// by SQLite (default) or Postgres. The core only ever writes to the
// Sink interface; nothing in the pipeline reads the run log back.
// Grounded on rohankatakam-coderisk's internal/database (sqlx query
// style) and internal/dlq (append-only, upsert-free write path).
package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// LLMCallRecord is one LLM invocation's telemetry, matching the
// collaborator contract's {phase, src, prompt_tokens, latency_ms,
// resolved} shape.
type LLMCallRecord struct {
	RunID        string
	Phase        string
	Src          string
	PromptTokens int
	LatencyMs    int
	Resolved     bool
}

// Sink is the Run Logger's contract. Implementations must tolerate
// concurrent calls from the Mapper's per-dynamic-call-site goroutines
// within a single run.
type Sink interface {
	LogPhase(ctx context.Context, runID, phase string, start, end time.Time) error
	LogLLMCall(ctx context.Context, record LLMCallRecord) error
	Close() error
}

// SQLiteSink is the default, zero-config backend: a local SQLite file
// opened in WAL mode so the Mapper's concurrent writers don't serialize
// on a single-writer lock.
type SQLiteSink struct {
	db *sqlx.DB
}

// NewSQLiteSink opens (creating if absent) a SQLite run log at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite run log: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite run log: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS phase_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	phase TEXT NOT NULL,
	start_ts DATETIME NOT NULL,
	end_ts DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS llm_call_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	phase TEXT NOT NULL,
	src TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	resolved BOOLEAN NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func (s *SQLiteSink) LogPhase(ctx context.Context, runID, phase string, start, end time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO phase_log (run_id, phase, start_ts, end_ts) VALUES (?, ?, ?, ?)`,
		runID, phase, start, end)
	return err
}

func (s *SQLiteSink) LogLLMCall(ctx context.Context, r LLMCallRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_call_log (run_id, phase, src, prompt_tokens, latency_ms, resolved) VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Phase, r.Src, r.PromptTokens, r.LatencyMs, r.Resolved)
	return err
}

func (s *SQLiteSink) Close() error { return s.db.Close() }

// PostgresSink is the opt-in backend for teams sharing one run log
// across CI workers.
type PostgresSink struct {
	db *sqlx.DB
}

// NewPostgresSink connects to dsn and ensures the run-log tables exist.
func NewPostgresSink(dsn string) (*PostgresSink, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres run log: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate postgres run log: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS phase_log (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	phase TEXT NOT NULL,
	start_ts TIMESTAMPTZ NOT NULL,
	end_ts TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS llm_call_log (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	phase TEXT NOT NULL,
	src TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	resolved BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func (s *PostgresSink) LogPhase(ctx context.Context, runID, phase string, start, end time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO phase_log (run_id, phase, start_ts, end_ts) VALUES ($1, $2, $3, $4)`,
		runID, phase, start, end)
	return err
}

func (s *PostgresSink) LogLLMCall(ctx context.Context, r LLMCallRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_call_log (run_id, phase, src, prompt_tokens, latency_ms, resolved) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.RunID, r.Phase, r.Src, r.PromptTokens, r.LatencyMs, r.Resolved)
	return err
}

func (s *PostgresSink) Close() error { return s.db.Close() }

// NoopSink discards every record. Used when run logging isn't
// configured; the Mapper and Writer never special-case a nil Sink.
type NoopSink struct{}

func (NoopSink) LogPhase(context.Context, string, string, time.Time, time.Time) error { return nil }
func (NoopSink) LogLLMCall(context.Context, LLMCallRecord) error                      { return nil }
func (NoopSink) Close() error                                                         { return nil }

var _ Sink = (*SQLiteSink)(nil)
var _ Sink = (*PostgresSink)(nil)
var _ Sink = NoopSink{}
