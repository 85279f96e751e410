package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/aristath/taskconsole/internal/config"
	"github.com/aristath/taskconsole/internal/duration"
	"github.com/aristath/taskconsole/internal/persistence"
	"github.com/aristath/taskconsole/internal/snapshot"
	"github.com/aristath/taskconsole/internal/taskapi"
)

// app carries the state shared by every command.
type app struct {
	out    io.Writer
	errOut io.Writer

	// Persistent flags
	apiURL   string
	token    string
	interval time.Duration
	locale   string
	noCache  bool
	verbose  bool

	globalPath  string
	projectPath string
	cachePath   string // Used when cache.path is empty
	retry       taskapi.RetryConfig
	now         func() time.Time

	cfg    *config.ConsoleConfig
	logger *slog.Logger
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:         out,
		errOut:      errOut,
		globalPath:  config.GlobalPath(),
		projectPath: config.ProjectPath(),
		cachePath:   config.DefaultCachePath(),
		retry:       taskapi.DefaultRetryConfig(),
		now:         time.Now,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "taskconsole",
		Short: "Watch task instances and their subtask graphs",
		Long: `taskconsole polls a task API and shows each task instance as an
execution graph: subtasks in order, parallel branches grouped, the subtask
where execution stands highlighted, with durations and segmented logs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	f := root.PersistentFlags()
	f.StringVar(&a.apiURL, "api-url", "", "task API base URL (overrides config and "+config.EnvAPIURL+")")
	f.StringVar(&a.token, "token", "", "task API bearer token (prefer "+config.EnvAPIToken+")")
	f.DurationVar(&a.interval, "interval", 0, "poll interval (overrides config)")
	f.StringVar(&a.locale, "locale", "", "duration units: zh-CN or en-US (overrides config)")
	f.BoolVar(&a.noCache, "no-cache", false, "do not read or write the local cache")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newWatchCmd(a), newShowCmd(a), newHistoryCmd(a))
	return root
}

// setup loads configuration, applies flag overrides and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.globalPath, a.projectPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.API.BaseURL = a.apiURL
	}
	if flags.Changed("token") {
		cfg.API.Token = a.token
	}
	if flags.Changed("interval") {
		cfg.Poll.Interval = config.Duration{Duration: a.interval}
	}
	if flags.Changed("locale") {
		cfg.Display.Locale = a.locale
	}
	if a.noCache {
		cfg.Cache.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))
	return nil
}

// newClient builds a task API client from the loaded configuration.
func (a *app) newClient() (*taskapi.Client, error) {
	return taskapi.New(a.cfg.API.BaseURL,
		taskapi.WithToken(a.cfg.API.Token),
		taskapi.WithTimeout(a.cfg.API.Timeout.Duration),
		taskapi.WithRetry(a.retry),
		taskapi.WithLogger(a.logger),
	)
}

// openStore opens the snapshot cache. It returns nil when caching is off.
func (a *app) openStore(ctx context.Context) (persistence.Store, error) {
	if !a.cfg.Cache.Enabled {
		return nil, nil
	}
	path := a.cfg.Cache.Path
	if path == "" {
		path = a.cachePath
	}
	store, err := persistence.NewSQLiteStore(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	return store, nil
}

// snapshotOptions renders snapshots with the configured units and zone.
func (a *app) snapshotOptions(now time.Time) snapshot.Options {
	loc, _ := a.cfg.Location() // validated in setup
	return snapshot.Options{
		Now:      now,
		Units:    duration.UnitsFor(a.cfg.Display.Locale),
		Location: loc,
	}
}

// styled reports whether output goes to a terminal.
func (a *app) styled() bool {
	f, ok := a.out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// parseTaskIDs converts command arguments to task ids.
func parseTaskIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid task id %q: must be a positive integer", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
