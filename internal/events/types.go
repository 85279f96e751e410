package events

import (
	"time"

	"github.com/aristath/taskconsole/internal/snapshot"
	"github.com/aristath/taskconsole/internal/taskgraph"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() int64
}

// Topic constants
const (
	TopicTask = "task"
	TopicDAG  = "dag"
)

// Event type constants
const (
	EventTypeTaskSnapshot = "task.snapshot"
	EventTypePollFailed   = "task.poll_failed"
	EventTypeDAGProgress  = "dag.progress"
)

// TaskSnapshotEvent carries a freshly built snapshot of one task. A stale
// snapshot comes from the local cache after a failed fetch.
type TaskSnapshotEvent struct {
	Snapshot snapshot.Snapshot
}

func (e TaskSnapshotEvent) EventType() string { return EventTypeTaskSnapshot }
func (e TaskSnapshotEvent) TaskID() int64     { return e.Snapshot.TaskID() }

// PollFailedEvent is published when fetching a task failed.
type PollFailedEvent struct {
	ID        int64
	Err       error
	Attempt   int // Consecutive failures for this task, starting at 1
	Timestamp time.Time
}

func (e PollFailedEvent) EventType() string { return EventTypePollFailed }
func (e PollFailedEvent) TaskID() int64     { return e.ID }

// DAGProgressEvent reports per-status subtask counts of one task.
type DAGProgressEvent struct {
	ID        int64
	Status    taskgraph.Status
	Progress  taskgraph.Progress
	Timestamp time.Time
}

func (e DAGProgressEvent) EventType() string { return EventTypeDAGProgress }
func (e DAGProgressEvent) TaskID() int64     { return e.ID }
