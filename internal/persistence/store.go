// Package persistence caches fetched task instances in SQLite so the console
// can render the last known state when the task API is unreachable.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/taskconsole/internal/taskgraph"
)

// ErrNotFound is returned when a task or watch session is not cached.
var ErrNotFound = errors.New("not found in cache")

// TaskSummary is one row of the cache listing.
type TaskSummary struct {
	ID           int64
	Name         string
	Status       taskgraph.Status
	SubtaskCount int
	FetchedAt    time.Time
}

// WatchSession records which tasks a watch command followed.
type WatchSession struct {
	ID        int64
	TaskIDs   []int64
	StartedAt time.Time
}

// Store defines the persistence interface for cached task instances.
type Store interface {
	// Task cache
	SaveTask(ctx context.Context, task *taskgraph.TaskInstance, fetchedAt time.Time) error
	GetTask(ctx context.Context, id int64) (*taskgraph.TaskInstance, time.Time, error)
	ListTasks(ctx context.Context) ([]TaskSummary, error)
	DeleteTask(ctx context.Context, id int64) error
	PruneTasks(ctx context.Context, olderThan time.Time) (int64, error)

	// Watch sessions
	SaveWatchSession(ctx context.Context, taskIDs []int64, startedAt time.Time) (int64, error)
	LastWatchSession(ctx context.Context) (*WatchSession, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite applies _pragma parameters on every new connection
	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing. Each store
// gets its own named database shared by its connections.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:taskconsole-%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Concurrent pollers share one connection; SQLite serialises writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
