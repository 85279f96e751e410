package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var prune bool
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List cached tasks",
		Long: `List every task in the local cache, most recently fetched first.
With --prune, entries fetched longer ago than cache.max_age (or
--older-than) are removed first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("the cache is disabled")
			}
			defer store.Close()

			now := a.now()

			if prune {
				age := a.cfg.Cache.MaxAge.Duration
				if cmd.Flags().Changed("older-than") {
					age = olderThan
				}
				if age <= 0 {
					return errors.New("--prune needs a positive cache.max_age or --older-than")
				}
				n, err := store.PruneTasks(ctx, now.Add(-age))
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Pruned %d task(s) fetched more than %s ago\n", n, age)
			}

			tasks, err := store.ListTasks(ctx)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(a.out, "No cached tasks")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSUBTASKS\tFETCHED")
			for _, t := range tasks {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
					t.ID, t.Name, t.Status, t.SubtaskCount,
					humanize.RelTime(t.FetchedAt, now, "ago", "from now"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "remove old entries before listing")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age threshold for --prune (default cache.max_age)")

	return cmd
}
