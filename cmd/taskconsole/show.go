package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/taskconsole/internal/snapshot"
	"github.com/aristath/taskconsole/internal/tui"
)

func newShowCmd(a *app) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Print a task's graph, progress and current log",
		Long: `Fetch one task instance and print its execution graph. When the task
API cannot be reached the cached copy is shown instead, marked as stale.
Colors are used only when stdout is a terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTaskIDs(args)
			if err != nil {
				return err
			}
			snap, err := a.loadSnapshot(cmd.Context(), ids[0], offline)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, tui.RenderPlain(snap, a.styled()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "read the task from the local cache only")

	return cmd
}

// loadSnapshot fetches a task, caching it, or falls back to the cached copy.
func (a *app) loadSnapshot(ctx context.Context, id int64, offline bool) (snapshot.Snapshot, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	if store != nil {
		defer store.Close()
	}

	now := a.now()

	var fetchErr error
	if offline {
		if store == nil {
			return snapshot.Snapshot{}, errors.New("--offline needs the cache, which is disabled")
		}
	} else {
		client, err := a.newClient()
		if err != nil {
			return snapshot.Snapshot{}, err
		}
		task, err := client.GetTask(ctx, id)
		if err == nil {
			if store != nil {
				if err := store.SaveTask(ctx, task, now); err != nil {
					a.logger.Error("failed to cache task", "task_id", id, "error", err)
				}
			}
			return snapshot.Build(task, a.snapshotOptions(now)), nil
		}
		if store == nil || ctx.Err() != nil {
			return snapshot.Snapshot{}, fmt.Errorf("fetching task %d: %w", id, err)
		}
		fetchErr = err
	}

	cached, fetchedAt, err := store.GetTask(ctx, id)
	if err != nil {
		if fetchErr != nil {
			return snapshot.Snapshot{}, fmt.Errorf("fetching task %d: %w (no cached copy)", id, fetchErr)
		}
		return snapshot.Snapshot{}, err
	}
	if fetchErr != nil {
		a.logger.Warn("task API unreachable, showing cached copy", "task_id", id, "error", fetchErr)
	}

	snap := snapshot.Build(cached, a.snapshotOptions(now)).AsStale()
	snap.TakenAt = fetchedAt
	return snap, nil
}
