package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/taskconsole/internal/config"
	"github.com/aristath/taskconsole/internal/duration"
	"github.com/aristath/taskconsole/internal/events"
	"github.com/aristath/taskconsole/internal/monitor"
	"github.com/aristath/taskconsole/internal/persistence"
	"github.com/aristath/taskconsole/internal/tui"
)

// shutdownTimeout bounds how long watch waits for the TUI and poller to stop.
const shutdownTimeout = 10 * time.Second

func newWatchCmd(a *app) *cobra.Command {
	var resume bool

	cmd := &cobra.Command{
		Use:   "watch [task-id...]",
		Short: "Poll tasks and show them in an interactive console",
		Long: `Poll one or more task instances and display their execution graphs
live. Logs go to the state directory while the console owns the terminal.
With --resume the task ids of the previous watch session are added.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTaskIDs(args)
			if err != nil {
				return err
			}
			return a.watch(cmd.Context(), ids, resume)
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "also watch the tasks of the previous session")

	return cmd
}

func (a *app) watch(ctx context.Context, ids []int64, resume bool) error {
	// Own signal context so a second Ctrl+C after stop() force-exits
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logFile, err := a.openLogFile()
	if err != nil {
		return err
	}
	defer logFile.Close()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	ids, err = a.prepareWatch(ctx, store, ids, resume)
	if err != nil {
		return err
	}

	client, err := a.newClient()
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	defer bus.Close()

	loc, _ := a.cfg.Location()
	poller := monitor.NewPoller(monitor.PollerConfig{
		Interval:         a.cfg.Poll.Interval.Duration,
		ConcurrencyLimit: a.cfg.Poll.Concurrency,
		StopWhenDone:     a.cfg.Poll.StopWhenDone,
		Units:            duration.UnitsFor(a.cfg.Display.Locale),
		Location:         loc,
		Fetcher:          client,
		Store:            store,
		Bus:              bus,
		Logger:           a.logger,
	})

	model := tui.New(bus, a.cfg, a.globalPath, a.projectPath, ids)

	// Subscribe before polling starts so the first snapshots reach the TUI
	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	pollDone := make(chan error, 1)
	go func() {
		pollDone <- poller.Run(pollCtx, ids)
	}()

	// Start Bubble Tea program in a goroutine so watch can handle shutdown
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	a.logger.Info("watching tasks", "task_ids", ids, "api", client.BaseURL())

	var tuiErr error
	select {
	case tuiErr = <-errChan:
		// Normal TUI exit (user pressed 'q')
	case <-ctx.Done():
		// Restore default signal handling (double Ctrl+C = force exit)
		stop()
		a.logger.Info("shutdown signal received, cleaning up")
		p.Quit()

		select {
		case tuiErr = <-errChan:
		case <-time.After(shutdownTimeout):
			a.logger.Warn("shutdown timeout exceeded waiting for the console")
		}
	}

	cancelPoll()
	select {
	case err := <-pollDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("poller stopped with error", "error", err)
		}
	case <-time.After(shutdownTimeout):
		a.logger.Warn("shutdown timeout exceeded waiting for the poller")
	}

	if dropped := bus.Dropped(); dropped > 0 {
		a.logger.Debug("events dropped by slow subscribers", "count", dropped)
	}
	a.logger.Info("shutdown complete")

	if tuiErr != nil {
		return fmt.Errorf("console: %w", tuiErr)
	}
	return nil
}

// openLogFile redirects logging to the state directory; the console owns
// the terminal.
func (a *app) openLogFile() (*os.File, error) {
	path, err := config.LogPath()
	if err != nil {
		return nil, fmt.Errorf("resolving log path: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return f, nil
}

// prepareWatch prunes the cache, resolves the ids to watch and records the
// watch session.
func (a *app) prepareWatch(ctx context.Context, store persistence.Store, ids []int64, resume bool) ([]int64, error) {
	now := a.now()

	if store != nil && a.cfg.Cache.MaxAge.Duration > 0 {
		n, err := store.PruneTasks(ctx, now.Add(-a.cfg.Cache.MaxAge.Duration))
		if err != nil {
			a.logger.Warn("failed to prune cache", "error", err)
		} else if n > 0 {
			a.logger.Info("pruned cache", "tasks", n)
		}
	}

	if resume {
		if store == nil {
			return nil, errors.New("--resume needs the cache, which is disabled")
		}
		ws, err := store.LastWatchSession(ctx)
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			a.logger.Info("no previous watch session to resume")
		case err != nil:
			return nil, err
		default:
			ids = append(ids, ws.TaskIDs...)
		}
	}

	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, errors.New("no task ids given (pass ids or --resume)")
	}

	if store != nil {
		if _, err := store.SaveWatchSession(ctx, ids, now); err != nil {
			a.logger.Warn("failed to record watch session", "error", err)
		}
	}
	return ids, nil
}

// dedupe drops repeated ids, keeping first occurrences in order.
func dedupe(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
