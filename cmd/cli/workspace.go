package main

import (
	"fmt"

	"github.com/neural-chilli/codesworth/internal/workspace"
	"github.com/spf13/cobra"
)

func workspaceCmd() *cobra.Command {
	var baseDir string

	cmd := &cobra.Command{
		Use:     "workspace",
		Aliases: []string{"ws"},
		Short:   "Inspect the workspaces of earlier analyze runs",
	}
	cmd.PersistentFlags().StringVar(&baseDir, "workspace-dir", workspace.DefaultConfig().BaseDir, "Where workspace state is kept")

	cmd.AddCommand(workspaceListCmd(&baseDir))
	cmd.AddCommand(workspaceStatusCmd(&baseDir))

	return cmd
}

func workspaceListCmd(baseDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaces, err := workspace.ListWorkspaces(&workspace.WorkspaceConfig{BaseDir: *baseDir})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(workspaces) == 0 {
				fmt.Fprintln(out, "No workspaces found.")
				fmt.Fprintln(out, "Create one with: codesworth analyze <path>")
				return nil
			}

			fmt.Fprintf(out, "%-10s %-40s %-11s %s\n", "ID", "SOURCE", "PHASE", "GROUPS")
			fmt.Fprintln(out, "----------------------------------------------------------------------")

			for _, ws := range workspaces {
				groups := "-"
				if ws.State.Statistics != nil {
					groups = fmt.Sprint(ws.State.Statistics.GroupsCreated)
				}
				fmt.Fprintf(out, "%-10s %-40s %-11s %s\n",
					ws.ID,
					truncate(ws.Source, 38),
					ws.State.Phase,
					groups,
				)
			}

			return nil
		},
	}
}

func workspaceStatusCmd(baseDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <workspace-id>",
		Short: "Show workspace status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := workspace.LoadByID(args[0], &workspace.WorkspaceConfig{BaseDir: *baseDir})
			if err != nil {
				return fmt.Errorf("workspace not found: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Workspace: %s\n", ws.ID)
			fmt.Fprintf(out, "Source: %s\n", ws.Source)
			fmt.Fprintf(out, "Path: %s\n", ws.RepoPath)
			if ws.CommitSHA != "" {
				fmt.Fprintf(out, "Commit: %s (%s)\n", shortRevision(ws.CommitSHA), ws.Branch)
			}
			fmt.Fprintf(out, "\nPhase: %s\n", ws.State.Phase)
			if ws.State.Error != "" {
				fmt.Fprintf(out, "Error: %s\n", ws.State.Error)
			}
			if ws.State.RunID != "" {
				fmt.Fprintf(out, "Run: %s\n", ws.State.RunID)
			}

			if s := ws.State.Statistics; s != nil {
				fmt.Fprintf(out, "\n")
				fmt.Fprintf(out, "  Methods:       %d\n", s.TotalMethods)
				fmt.Fprintf(out, "  Calls:         %d\n", s.TotalCalls)
				fmt.Fprintf(out, "  Entry points:  %d\n", s.EntryPointsFound)
				fmt.Fprintf(out, "  Chains:        %d\n", s.CallChainsTraced)
				fmt.Fprintf(out, "  Groups:        %d\n", s.GroupsCreated)
			}

			return nil
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
