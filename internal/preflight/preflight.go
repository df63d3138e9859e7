package preflight

import (
	"context"

	"captioner/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, Result{
			Name:     status.Name,
			Passed:   status.Available,
			Optional: status.Optional,
			Detail:   firstNonEmpty(status.Detail, status.Command),
		})
	}

	results = append(results,
		CheckDirectoryAccess("Workspace directory", cfg.Paths.WorkspaceDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckFont(cfg.Caption.FontPath, cfg.Caption.FontSize),
	)
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
