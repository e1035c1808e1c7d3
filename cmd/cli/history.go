package main

import (
	"fmt"
	"time"

	"github.com/neural-chilli/codesworth/internal/config"
	"github.com/neural-chilli/codesworth/internal/export"
	"github.com/spf13/cobra"
)

// openHistory opens the SQLite run history named by flag or CODESWORTH_SQLITE_PATH
func openHistory(path string) (*export.SQLiteStore, error) {
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		path = cfg.SQLitePath
	}
	if path == "" {
		return nil, fmt.Errorf("no run history: pass --sqlite or set CODESWORTH_SQLITE_PATH")
	}
	return export.OpenSQLite(path)
}

func runsCmd() *cobra.Command {
	var (
		sqlitePath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List analysis runs recorded in SQLite",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(sqlitePath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			fmt.Fprintf(out, "%-36s %-20s %-9s %-8s %-7s %s\n", "RUN", "STARTED", "REVISION", "METHODS", "GROUPS", "ROOT")
			for _, r := range runs {
				fmt.Fprintf(out, "%-36s %-20s %-9s %-8d %-7d %s\n",
					r.RunID,
					r.StartedAt.Local().Format(time.DateTime),
					shortRevision(r.Revision),
					r.Statistics.TotalMethods,
					r.Statistics.GroupsCreated,
					r.Root,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "SQLite database written by analyze --sqlite")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")

	return cmd
}

func callersCmd() *cobra.Command {
	var (
		sqlitePath string
		runID      string
	)

	cmd := &cobra.Command{
		Use:   "callers <file#method>",
		Short: "Show the recorded callers of a method",
		Long: `Show the callers of a method in a recorded run. Methods are named
file#method, or file#Class.method for methods of a class.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(sqlitePath)
			if err != nil {
				return err
			}
			defer store.Close()

			if runID == "" {
				runs, err := store.Runs(cmd.Context(), 1)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					return fmt.Errorf("no runs recorded")
				}
				runID = runs[0].RunID
			}

			callers, err := store.Callers(cmd.Context(), runID, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(callers) == 0 {
				fmt.Fprintf(out, "No callers of %s in run %s\n", args[0], runID)
				return nil
			}
			for _, c := range callers {
				fmt.Fprintln(out, c)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "SQLite database written by analyze --sqlite")
	cmd.Flags().StringVar(&runID, "run", "", "Run to query (default: latest)")

	return cmd
}
