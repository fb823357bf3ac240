package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/drover/drover/internal/task/models"
)

// AppendLog records one agent stream event for a task. Content is expected
// to be pre-truncated by the caller; raw is the original record as JSON text.
func (s *Store) AppendLog(ctx context.Context, taskID int64, eventType, content, raw string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO run_logs (task_id, event_type, content, raw_json, ts) VALUES (?, ?, ?, ?, ?)
	`), taskID, eventType, content, raw, time.Now().UTC())
	return err
}

// Logs returns all run log entries for a task in insertion order.
func (s *Store) Logs(ctx context.Context, taskID int64) ([]*models.RunLogEntry, error) {
	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(`
		SELECT id, task_id, event_type, content, raw_json, ts FROM run_logs WHERE task_id = ? ORDER BY id
	`), taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*models.RunLogEntry
	for rows.Next() {
		entry := &models.RunLogEntry{}
		var content, raw sql.NullString
		if err := rows.Scan(&entry.ID, &entry.TaskID, &entry.EventType, &content, &raw, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Content = content.String
		entry.Raw = raw.String
		result = append(result, entry)
	}
	return result, rows.Err()
}
