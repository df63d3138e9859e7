package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"captioner/internal/preflight"
	"captioner/internal/services"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify ffmpeg, directories, and the caption font",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			for _, line := range renderSectionHeader("Environment", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range results {
				kind := statusOK
				switch {
				case !result.Passed && result.Optional:
					kind = statusWarn
				case !result.Passed:
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			failed := preflight.Failed(results)
			if len(failed) == 0 {
				return nil
			}
			return services.Wrap(services.ErrConfiguration, "preflight", "check",
				fmt.Sprintf("%d required check(s) failed, starting with %s", len(failed), failed[0].Name), nil)
		},
	}
}
