package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SaveWatchSession records the task ids a watch command was started with and
// returns the session id.
func (s *SQLiteStore) SaveWatchSession(ctx context.Context, taskIDs []int64, startedAt time.Time) (int64, error) {
	// Create 5-second timeout context
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ids, err := json.Marshal(taskIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to encode task ids: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO watch_sessions (task_ids, started_at)
		VALUES (?, ?)
	`, string(ids), startedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to save watch session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read session id: %w", err)
	}
	return id, nil
}

// LastWatchSession returns the most recently started watch session.
func (s *SQLiteStore) LastWatchSession(ctx context.Context) (*WatchSession, error) {
	var ws WatchSession
	var ids string
	var startedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_ids, started_at
		FROM watch_sessions
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`).Scan(&ws.ID, &ids, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("watch session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query watch session: %w", err)
	}

	if err := json.Unmarshal([]byte(ids), &ws.TaskIDs); err != nil {
		return nil, fmt.Errorf("failed to decode task ids of session %d: %w", ws.ID, err)
	}
	ws.StartedAt = time.UnixMilli(startedAt)

	return &ws, nil
}
