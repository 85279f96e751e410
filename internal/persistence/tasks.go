package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/taskconsole/internal/taskgraph"
)

// SaveTask caches a fetched task instance, replacing any previous copy of
// the same task together with its subtasks and edges.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *taskgraph.TaskInstance, fetchedAt time.Time) error {
	if task == nil {
		return errors.New("save task: nil task")
	}

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_instances (id, name, status, start_time, finish_time, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			start_time = excluded.start_time,
			finish_time = excluded.finish_time,
			fetched_at = excluded.fetched_at
	`, task.ID, task.Name, string(task.Status), task.StartTime, task.FinishTime, fetchedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert task %d: %w", task.ID, err)
	}

	// Subtasks may have been added or removed since the last poll; edges go
	// with them through ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, `DELETE FROM subtasks WHERE task_id = ?`, task.ID); err != nil {
		return fmt.Errorf("failed to delete old subtasks: %w", err)
	}

	// The first copy of a repeated subtask id wins, as in graph reconstruction
	saved := make(map[int64]bool, len(task.Subtasks))
	for _, r := range task.Subtasks {
		if saved[r.ID] {
			continue
		}
		saved[r.ID] = true

		_, err := tx.ExecContext(ctx, `
			INSERT INTO subtasks (task_id, id, name, type, status, start_time, finish_time, log_text)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, task.ID, r.ID, r.Name, r.Type, string(r.Status), r.StartTime, r.FinishTime, r.LogText)
		if err != nil {
			return fmt.Errorf("failed to insert subtask %d: %w", r.ID, err)
		}

		if err := insertEdges(ctx, tx, task.ID, r.ID, "up", r.Upstreams); err != nil {
			return err
		}
		if err := insertEdges(ctx, tx, task.ID, r.ID, "down", r.Downstreams); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, taskID, subtaskID int64, direction string, peers []int64) error {
	for _, peer := range peers {
		// OR IGNORE collapses ids the API repeated within one list
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO subtask_edges (task_id, subtask_id, peer_id, direction)
			VALUES (?, ?, ?, ?)
		`, taskID, subtaskID, peer, direction)
		if err != nil {
			return fmt.Errorf("failed to insert edge %d %s %d: %w", subtaskID, direction, peer, err)
		}
	}
	return nil
}

// GetTask returns the cached copy of a task and when it was fetched.
// Adjacency lists come back sorted ascending.
func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (*taskgraph.TaskInstance, time.Time, error) {
	task := &taskgraph.TaskInstance{ID: id, Subtasks: []taskgraph.SubtaskRecord{}}
	var status string
	var fetchedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT name, status, start_time, finish_time, fetched_at
		FROM task_instances
		WHERE id = ?
	`, id).Scan(&task.Name, &status, &task.StartTime, &task.FinishTime, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query task: %w", err)
	}
	task.Status = taskgraph.Status(status)

	// Load subtasks
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, status, start_time, finish_time, log_text
		FROM subtasks
		WHERE task_id = ?
		ORDER BY id
	`, id)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query subtasks: %w", err)
	}

	pos := make(map[int64]int)
	for rows.Next() {
		r := taskgraph.SubtaskRecord{Upstreams: []int64{}, Downstreams: []int64{}}
		var st string
		if err := rows.Scan(&r.ID, &r.Name, &r.Type, &st, &r.StartTime, &r.FinishTime, &r.LogText); err != nil {
			rows.Close()
			return nil, time.Time{}, fmt.Errorf("failed to scan subtask: %w", err)
		}
		r.Status = taskgraph.Status(st)
		pos[r.ID] = len(task.Subtasks)
		task.Subtasks = append(task.Subtasks, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("error iterating subtasks: %w", err)
	}

	// Load edges
	edges, err := s.db.QueryContext(ctx, `
		SELECT subtask_id, peer_id, direction
		FROM subtask_edges
		WHERE task_id = ?
		ORDER BY subtask_id, direction, peer_id
	`, id)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query edges: %w", err)
	}
	defer edges.Close()

	for edges.Next() {
		var subtaskID, peer int64
		var direction string
		if err := edges.Scan(&subtaskID, &peer, &direction); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan edge: %w", err)
		}
		r := &task.Subtasks[pos[subtaskID]]
		if direction == "up" {
			r.Upstreams = append(r.Upstreams, peer)
		} else {
			r.Downstreams = append(r.Downstreams, peer)
		}
	}
	if err := edges.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("error iterating edges: %w", err)
	}

	return task, time.UnixMilli(fetchedAt), nil
}

// ListTasks returns a summary of every cached task, most recently fetched first.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]TaskSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.status, t.fetched_at,
			(SELECT COUNT(*) FROM subtasks s WHERE s.task_id = t.id)
		FROM task_instances t
		ORDER BY t.fetched_at DESC, t.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	summaries := []TaskSummary{}
	for rows.Next() {
		var sum TaskSummary
		var status string
		var fetchedAt int64
		if err := rows.Scan(&sum.ID, &sum.Name, &status, &fetchedAt, &sum.SubtaskCount); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		sum.Status = taskgraph.Status(status)
		sum.FetchedAt = time.UnixMilli(fetchedAt)
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return summaries, nil
}

// DeleteTask removes a task and its subtasks from the cache.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

// PruneTasks removes tasks fetched before olderThan and reports how many
// were removed.
func (s *SQLiteStore) PruneTasks(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_instances WHERE fetched_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
