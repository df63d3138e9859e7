package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"captioner/internal/workspace"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var dryRun bool
	var pruneHistory time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove workspaces left behind by crashed jobs",
		Long: `Remove job workspaces older than --max-age.

Workspaces whose lock is still held belong to a running job and are never
removed, whatever their age.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if maxAge <= 0 {
				maxAge = cfg.StaleWorkspaceAge()
			}
			out := cmd.OutOrStdout()
			root := cfg.Paths.WorkspaceDir

			if dryRun {
				dirs, err := workspace.List(root)
				if err != nil {
					return fmt.Errorf("list workspaces: %w", err)
				}
				cutoff := time.Now().Add(-maxAge)
				candidates := 0
				for _, dir := range dirs {
					switch {
					case dir.Locked:
						fmt.Fprintf(out, "skip   %s (in use)\n", dir.Name)
					case dir.ModTime.After(cutoff):
						fmt.Fprintf(out, "keep   %s (%s old)\n", dir.Name, formatDuration(time.Since(dir.ModTime)))
					default:
						candidates++
						fmt.Fprintf(out, "remove %s (%s)\n", dir.Name, formatBytes(dir.Size))
					}
				}
				fmt.Fprintf(out, "%d workspace(s) would be removed\n", candidates)
				return nil
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			result := workspace.CleanStale(cmd.Context(), root, maxAge, logger)
			fmt.Fprintf(out, "Removed %d workspace(s), skipped %d\n", len(result.Removed), len(result.Skipped))
			for _, failure := range result.Errors {
				fmt.Fprintf(out, "  failed %s: %v\n", failure.Path, failure.Error)
			}

			if pruneHistory > 0 {
				store, err := ctx.openStore()
				if err != nil {
					return fmt.Errorf("open history: %w", err)
				}
				if store != nil {
					defer store.Close()
					pruned, err := store.Prune(cmd.Context(), time.Now().Add(-pruneHistory))
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Pruned %d history record(s)\n", pruned)
				}
			}

			if len(result.Errors) > 0 {
				return fmt.Errorf("%d workspace(s) could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Remove workspaces older than this (default workflow.stale_workspace_hours)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be removed without deleting anything")
	cmd.Flags().DurationVar(&pruneHistory, "prune-history", 0, "Also delete finished history records older than this")
	return cmd
}
