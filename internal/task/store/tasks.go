package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/drover/drover/internal/common/tracing"
	"github.com/drover/drover/internal/db/dialect"
	"github.com/drover/drover/internal/task/models"
)

const taskColumns = `id, prompt, status, priority, worker_id, plan, result_summary, error, cost_usd, tokens_in, tokens_out, duration_s, created_at, started_at, finished_at`

// Settlement carries the terminal outcome written by Settle.
type Settlement struct {
	ResultSummary string
	Error         string
	CostUSD       float64
	TokensIn      int64
	TokensOut     int64
	DurationS     float64
}

// Enqueue inserts a new pending task and returns it fully populated.
func (s *Store) Enqueue(ctx context.Context, prompt string, priority int) (*models.Task, error) {
	now := time.Now().UTC()
	id, err := dialect.InsertReturningID(ctx, s.db, `
		INSERT INTO tasks (prompt, status, priority, created_at) VALUES (?, ?, ?, ?)
	`, prompt, models.StatusPending, priority, now)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return &models.Task{
		ID:        id,
		Prompt:    prompt,
		Status:    models.StatusPending,
		Priority:  priority,
		CreatedAt: now,
	}, nil
}

// Claim atomically reserves the highest-priority pending task for a worker.
// Ties are broken by lowest id (FIFO within a priority). Returns nil when
// nothing is pending or another worker won the race; the caller retries later.
func (s *Store) Claim(ctx context.Context, workerID int) (*models.Task, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT id FROM tasks WHERE status = ? ORDER BY priority DESC, id ASC LIMIT 1
	`), models.StatusPending).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select pending task: %w", err)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks SET status = ?, worker_id = ?, started_at = ? WHERE id = ? AND status = ?
	`), models.StatusRunning, workerID, now, id, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task %d: %w", id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Another worker claimed it between the select and the update.
		return nil, nil
	}

	// Re-read through the writer to confirm ownership before handing the
	// task out.
	task, err := s.getTask(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if task.Status != models.StatusRunning || task.WorkerID == nil || *task.WorkerID != workerID {
		return nil, nil
	}
	return task, nil
}

// Get retrieves a task by ID
func (s *Store) Get(ctx context.Context, id int64) (*models.Task, error) {
	return s.getTask(ctx, s.ro, id)
}

func (s *Store) getTask(ctx context.Context, q *sqlx.DB, id int64) (*models.Task, error) {
	row := q.QueryRowContext(ctx, q.Rebind(`
		SELECT `+taskColumns+` FROM tasks WHERE id = ?
	`), id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// List returns the newest tasks first. A non-positive limit defaults to 50.
func (s *Store) List(ctx context.Context, limit int) ([]*models.Task, error) {
	ctx, span := tracing.Tracer("drover-db").Start(ctx, "db.ListTasks")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(`
		SELECT `+taskColumns+` FROM tasks ORDER BY id DESC LIMIT ?
	`), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanTasks(rows)
}

// SetStatus updates the status of a task
func (s *Store) SetStatus(ctx context.Context, id int64, status models.TaskStatus) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks SET status = ? WHERE id = ?
	`), status, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return nil
}

// SetPlan writes the generated plan and moves the task to planned.
func (s *Store) SetPlan(ctx context.Context, id int64, plan string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks SET plan = ?, status = ? WHERE id = ?
	`), plan, models.StatusPlanned, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return nil
}

// Settle writes the terminal outcome of a task and stamps finished_at.
func (s *Store) Settle(ctx context.Context, id int64, status models.TaskStatus, settlement Settlement) error {
	if !status.Terminal() {
		return fmt.Errorf("settle requires a terminal status, got %q", status)
	}
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks SET status = ?, result_summary = ?, error = ?,
			cost_usd = ?, tokens_in = ?, tokens_out = ?, duration_s = ?,
			finished_at = ?
		WHERE id = ?
	`), status, settlement.ResultSummary, settlement.Error,
		settlement.CostUSD, settlement.TokensIn, settlement.TokensOut, settlement.DurationS,
		now, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTask is a helper to scan one task row
func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var workerID, tokensIn, tokensOut sql.NullInt64
	var plan, resultSummary, taskErr sql.NullString
	var costUSD, durationS sql.NullFloat64
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(
		&task.ID,
		&task.Prompt,
		&task.Status,
		&task.Priority,
		&workerID,
		&plan,
		&resultSummary,
		&taskErr,
		&costUSD,
		&tokensIn,
		&tokensOut,
		&durationS,
		&task.CreatedAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}
	if workerID.Valid {
		w := int(workerID.Int64)
		task.WorkerID = &w
	}
	task.Plan = plan.String
	task.ResultSummary = resultSummary.String
	task.Error = taskErr.String
	task.CostUSD = costUSD.Float64
	task.TokensIn = tokensIn.Int64
	task.TokensOut = tokensOut.Int64
	task.DurationS = durationS.Float64
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		task.FinishedAt = &finishedAt.Time
	}
	return task, nil
}

// scanTasks is a helper to scan task rows
func scanTasks(rows *sql.Rows) ([]*models.Task, error) {
	var result []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, rows.Err()
}
