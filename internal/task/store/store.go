// Package store implements the durable task queue and run log on SQLite or
// Postgres. All task mutations go through this package; concurrent workers
// are serialized by the claim statement's conditional update.
package store

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/drover/drover/internal/common/sqlite"
	"github.com/drover/drover/internal/db/dialect"
)

// ErrTaskNotFound is returned when a task id does not exist.
var ErrTaskNotFound = errors.New("task not found")

// Store provides task queue storage operations.
type Store struct {
	db     *sqlx.DB // writer
	ro     *sqlx.DB // reader (read-only pool)
	driver string
}

// New creates a task store over existing database connections (shared
// ownership; the caller closes them).
func New(writer, reader *sqlx.DB) (*Store, error) {
	s := &Store{db: writer, ro: reader, driver: writer.DriverName()}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the database tables if they don't exist
func (s *Store) initSchema() error {
	if err := s.initTaskSchema(); err != nil {
		return err
	}
	if err := s.initRunLogSchema(); err != nil {
		return err
	}
	if err := s.migrate(); err != nil {
		return err
	}
	return s.initIndexes()
}

// migrate applies additive column changes for databases created by builds
// that predate them. Postgres databases always come from the current CREATE
// TABLE statement, so only SQLite needs the ALTERs.
func (s *Store) migrate() error {
	if s.driver != dialect.SQLite3 {
		return nil
	}
	// plan arrived with plan-mode support.
	if err := sqlite.EnsureColumn(s.db.DB, "tasks", "plan", "TEXT"); err != nil {
		return fmt.Errorf("failed to migrate tasks.plan: %w", err)
	}
	// duration_s arrived with run metrics.
	if err := sqlite.EnsureColumn(s.db.DB, "tasks", "duration_s", "REAL"); err != nil {
		return fmt.Errorf("failed to migrate tasks.duration_s: %w", err)
	}
	return nil
}

func (s *Store) initTaskSchema() error {
	_, err := s.db.Exec(fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS tasks (
		id %s,
		prompt TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		priority INTEGER NOT NULL DEFAULT 0,
		worker_id INTEGER,
		plan TEXT,
		result_summary TEXT,
		error TEXT,
		cost_usd REAL,
		tokens_in BIGINT,
		tokens_out BIGINT,
		duration_s REAL,
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP
	);
	`, dialect.AutoIncrementPK(s.driver)))
	return err
}

func (s *Store) initRunLogSchema() error {
	_, err := s.db.Exec(fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS run_logs (
		id %s,
		task_id BIGINT NOT NULL,
		event_type TEXT NOT NULL,
		content TEXT,
		raw_json TEXT,
		ts TIMESTAMP NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);
	`, dialect.AutoIncrementPK(s.driver)))
	return err
}

func (s *Store) initIndexes() error {
	_, err := s.db.Exec(`
	CREATE INDEX IF NOT EXISTS idx_tasks_status_priority ON tasks(status, priority DESC, id ASC);
	CREATE INDEX IF NOT EXISTS idx_run_logs_task_id ON run_logs(task_id);
	`)
	return err
}
