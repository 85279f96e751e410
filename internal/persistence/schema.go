package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
// Times are stored as unix milliseconds.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_instances (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time TEXT NOT NULL,
		finish_time TEXT NOT NULL,
		fetched_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_task_instances_fetched_at ON task_instances(fetched_at);

	CREATE TABLE IF NOT EXISTS subtasks (
		task_id INTEGER NOT NULL,
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time TEXT NOT NULL,
		finish_time TEXT NOT NULL,
		log_text TEXT NOT NULL,
		PRIMARY KEY (task_id, id),
		FOREIGN KEY (task_id) REFERENCES task_instances(id) ON DELETE CASCADE
	);

	-- Adjacency exactly as each subtask declared it; direction is 'up' or 'down'
	CREATE TABLE IF NOT EXISTS subtask_edges (
		task_id INTEGER NOT NULL,
		subtask_id INTEGER NOT NULL,
		peer_id INTEGER NOT NULL,
		direction TEXT NOT NULL CHECK (direction IN ('up', 'down')),
		PRIMARY KEY (task_id, subtask_id, direction, peer_id),
		FOREIGN KEY (task_id, subtask_id) REFERENCES subtasks(task_id, id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS watch_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_ids TEXT NOT NULL,
		started_at INTEGER NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
