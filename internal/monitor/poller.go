// Package monitor polls the task API and turns every response into a
// snapshot published on the event bus.
package monitor

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/taskconsole/internal/duration"
	"github.com/aristath/taskconsole/internal/events"
	"github.com/aristath/taskconsole/internal/persistence"
	"github.com/aristath/taskconsole/internal/snapshot"
	"github.com/aristath/taskconsole/internal/taskapi"
)

// PollResult is the outcome of polling one task.
type PollResult struct {
	TaskID   int64
	Snapshot *snapshot.Snapshot // Nil when the fetch failed and nothing was cached
	Err      error              // Fetch error; a stale Snapshot may still be set
}

// PollerConfig configures the poller.
type PollerConfig struct {
	Interval         time.Duration     // Time between polls (default 5s)
	ConcurrencyLimit int               // Max concurrent fetches (default 4)
	StopWhenDone     bool              // Drop tasks from Run once they reach a terminal status
	Units            duration.Units    // Duration units for snapshots
	Location         *time.Location    // Zone for log marker clocks
	Fetcher          taskapi.Fetcher   // Required
	Store            persistence.Store // Optional cache (nil disables)
	Bus              *events.EventBus  // Optional (nil disables publishing)
	Logger           *slog.Logger      // Nil means slog.Default()
	Now              func() time.Time  // Clock, for tests (default time.Now)
}

// Poller fetches task instances on an interval and publishes snapshots.
type Poller struct {
	config   PollerConfig
	mu       sync.Mutex
	failures map[int64]int               // Consecutive fetch failures per task
	latest   map[int64]snapshot.Snapshot // Last snapshot per task
}

// NewPoller creates a new poller.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Poller{
		config:   cfg,
		failures: make(map[int64]int),
		latest:   make(map[int64]snapshot.Snapshot),
	}
}

// Run polls ids immediately and then every Interval until ctx is done. With
// StopWhenDone it returns nil once every task has reached a terminal status.
func (p *Poller) Run(ctx context.Context, ids []int64) error {
	active := slices.Clone(ids)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		results, err := p.PollOnce(ctx, active)
		if err != nil {
			return err
		}

		if p.config.StopWhenDone {
			active = slices.DeleteFunc(active, func(id int64) bool {
				for _, r := range results {
					if r.TaskID == id && r.Err == nil && r.Snapshot != nil && r.Snapshot.Done() {
						p.config.Logger.Info("task finished, no longer polling", "task_id", id, "status", r.Snapshot.Task.Status)
						return true
					}
				}
				return false
			})
			if len(active) == 0 {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce fetches every task in ids with bounded concurrency. Fetch errors
// are reported per task in the results; the returned error is only set when
// ctx is done.
func (p *Poller) PollOnce(ctx context.Context, ids []int64) ([]PollResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]PollResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.ConcurrencyLimit)

	for i, id := range ids {
		g.Go(func() error {
			results[i] = p.pollTask(gctx, id)
			return nil // Failures are per task, never abort the wave
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// Latest returns the most recent snapshot published for a task.
func (p *Poller) Latest(id int64) (snapshot.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.latest[id]
	return s, ok
}

// pollTask fetches one task and publishes the outcome.
func (p *Poller) pollTask(ctx context.Context, id int64) PollResult {
	log := p.config.Logger.With("task_id", id)
	now := p.config.Now()

	task, err := p.config.Fetcher.GetTask(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return PollResult{TaskID: id, Err: err}
		}
		return p.handleFailure(ctx, id, now, err)
	}

	p.mu.Lock()
	delete(p.failures, id)
	p.mu.Unlock()

	snap := snapshot.Build(task, p.snapshotOptions(now))
	if snap.TopologyErr != nil {
		log.Warn("showing partial graph", "error", snap.TopologyErr)
	}

	if p.config.Store != nil {
		if err := p.config.Store.SaveTask(ctx, task, now); err != nil {
			log.Error("failed to cache task", "error", err)
		}
	}

	p.publish(snap)
	log.Debug("polled task",
		"status", task.Status,
		"subtasks", snap.Progress.Total,
		"current", currentID(snap))

	return PollResult{TaskID: id, Snapshot: &snap}
}

// handleFailure publishes a PollFailedEvent and, when the cache has a copy
// of the task, a stale snapshot built from it.
func (p *Poller) handleFailure(ctx context.Context, id int64, now time.Time, fetchErr error) PollResult {
	p.mu.Lock()
	p.failures[id]++
	attempt := p.failures[id]
	p.mu.Unlock()

	log := p.config.Logger.With("task_id", id)
	log.Warn("failed to fetch task", "attempt", attempt, "error", fetchErr)

	if p.config.Bus != nil {
		p.config.Bus.Publish(events.TopicTask, events.PollFailedEvent{
			ID:        id,
			Err:       fetchErr,
			Attempt:   attempt,
			Timestamp: now,
		})
	}

	result := PollResult{TaskID: id, Err: fetchErr}
	if p.config.Store == nil {
		return result
	}

	cached, fetchedAt, err := p.config.Store.GetTask(ctx, id)
	if err != nil {
		log.Debug("no cached copy", "error", err)
		return result
	}

	snap := snapshot.Build(cached, p.snapshotOptions(now)).AsStale()
	snap.TakenAt = fetchedAt
	p.publish(snap)

	result.Snapshot = &snap
	return result
}

func (p *Poller) snapshotOptions(now time.Time) snapshot.Options {
	return snapshot.Options{
		Now:      now,
		Units:    p.config.Units,
		Location: p.config.Location,
	}
}

// publish records snap as the latest for its task and emits snapshot and
// progress events. A stale snapshot only replaces an older one.
func (p *Poller) publish(snap snapshot.Snapshot) {
	p.mu.Lock()
	if prev, ok := p.latest[snap.TaskID()]; !ok || !snap.Stale || snap.TakenAt.After(prev.TakenAt) {
		p.latest[snap.TaskID()] = snap
	}
	p.mu.Unlock()

	if p.config.Bus == nil {
		return
	}
	p.config.Bus.Publish(events.TopicTask, events.TaskSnapshotEvent{Snapshot: snap})
	p.config.Bus.Publish(events.TopicDAG, events.DAGProgressEvent{
		ID:        snap.TaskID(),
		Status:    snap.Task.Status,
		Progress:  snap.Progress,
		Timestamp: snap.TakenAt,
	})
}

func currentID(s snapshot.Snapshot) int64 {
	if s.Current == nil {
		return 0
	}
	return s.Current.ID
}
