// Package snapshot composes one poll of a task instance into everything the
// console renders: the reconstructed graph, the progress pointer, durations
// and segmented logs.
package snapshot

import (
	"time"

	"github.com/aristath/taskconsole/internal/duration"
	"github.com/aristath/taskconsole/internal/logseg"
	"github.com/aristath/taskconsole/internal/taskgraph"
)

// Options controls how a snapshot is rendered.
type Options struct {
	Now      time.Time      // Reference time for running durations; zero means time.Now()
	Units    duration.Units // Zero value means duration.UnitsZH
	Location *time.Location // Zone for log marker clocks; nil keeps each marker's offset
}

// Snapshot is an immutable view of one task instance at TakenAt.
// Consumers replace a task's snapshot wholesale; newer TakenAt wins.
type Snapshot struct {
	Task     *taskgraph.TaskInstance
	Nodes    []taskgraph.GraphNode
	Flat     []*taskgraph.SubtaskRecord
	Current  *taskgraph.SubtaskRecord // Progress pointer, nil for an empty task
	Progress taskgraph.Progress

	Duration  string               // Whole task
	Durations map[int64]string     // Per subtask id
	Logs      map[int64]logseg.Log // Per subtask id, newest segment first

	// TopologyErr is set when Nodes is only a partial sequence.
	TopologyErr error

	TakenAt time.Time
	Stale   bool // Served from the local cache after a failed fetch
}

// Build composes a snapshot of task. A nil task yields an empty snapshot.
func Build(task *taskgraph.TaskInstance, opts Options) Snapshot {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	units := opts.Units
	if units == (duration.Units{}) {
		units = duration.UnitsZH
	}

	snap := Snapshot{
		Task:      task,
		Nodes:     []taskgraph.GraphNode{},
		Durations: map[int64]string{},
		Logs:      map[int64]logseg.Log{},
		Duration:  duration.Placeholder,
		TakenAt:   now,
	}
	if task == nil {
		return snap
	}

	snap.Nodes, snap.TopologyErr = taskgraph.Reconstruct(task.Subtasks)
	snap.Flat = taskgraph.Flatten(snap.Nodes)
	snap.Current = taskgraph.LocateProgress(snap.Flat)
	snap.Progress = taskgraph.Summarize(snap.Flat)
	snap.Duration = duration.Compute(task, now, units)

	// Durations and logs cover every subtask, including ones a partial
	// reconstruction left out of Nodes.
	for i := range task.Subtasks {
		r := &task.Subtasks[i]
		snap.Durations[r.ID] = duration.Compute(r, now, units)
		snap.Logs[r.ID] = logseg.Split(r.LogText, opts.Location)
	}

	return snap
}

// TaskID returns the id of the snapshotted task, or 0 when there is none.
func (s Snapshot) TaskID() int64 {
	if s.Task == nil {
		return 0
	}
	return s.Task.ID
}

// Done reports whether the task has reached a terminal status.
func (s Snapshot) Done() bool {
	return s.Task != nil && s.Task.Status.Terminal()
}

// Record returns the subtask with the given id from the flattened sequence.
func (s Snapshot) Record(id int64) *taskgraph.SubtaskRecord {
	for _, r := range s.Flat {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// AsStale returns a copy of s flagged as served from cache.
func (s Snapshot) AsStale() Snapshot {
	s.Stale = true
	return s
}
