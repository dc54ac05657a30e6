package preflight

import (
	"context"

	"storyforge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks applicable to cfg. Network probes of the
// generation and script backends run only when probe is set and a key is
// configured.
func RunAll(ctx context.Context, cfg *config.Config, probe bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
	}
	if cfg.Paths.MinFreeMB > 0 {
		results = append(results, CheckFreeSpace("Output free space", cfg.Paths.OutputDir, uint64(cfg.Paths.MinFreeMB)<<20))
	}
	if !probe {
		return results
	}

	if cfg.Generation.APIKey != "" {
		results = append(results, CheckGeneration(ctx, cfg.Generation))
	}
	if cfg.LLM.APIKey != "" {
		results = append(results, CheckLLM(ctx, "Script model", cfg.LLM))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
