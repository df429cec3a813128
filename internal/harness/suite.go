package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// SuiteOptions configures RunDir.
type SuiteOptions struct {
	// GoldenDir holds {name}.golden snapshots. Empty disables golden checks.
	GoldenDir string

	// Update rewrites golden files instead of comparing them.
	Update bool
}

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Updated        int               `json:"updated,omitempty"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents one failed scenario.
type ScenarioFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// RunDir runs every *.yaml scenario in dir, in file name order.
//
// For each scenario file:
// 1. Load the scenario (paths resolve against dir)
// 2. Run it via Run
// 3. Compare or update its golden snapshot when GoldenDir is set
// 4. Collect the outcome
func RunDir(ctx context.Context, dir string, opts SuiteOptions) (*SuiteResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}
	slices.Sort(paths)

	result := &SuiteResult{}
	fail := func(path, msg string) {
		result.Failed++
		result.Failures = append(result.Failures, ScenarioFailure{ScenarioPath: path, Error: msg})
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			fail(path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := Run(scenario)
		if err != nil {
			fail(path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		if !runResult.Pass {
			fail(path, fmt.Sprintf("scenario assertions failed: %v", runResult.Errors))
			continue
		}

		if opts.GoldenDir != "" {
			updated, err := checkGolden(opts, scenario.Name, runResult)
			if err != nil {
				fail(path, err.Error())
				continue
			}
			if updated {
				result.Updated++
			}
		}

		result.Passed++
	}

	return result, nil
}

// checkGolden compares the snapshot with {GoldenDir}/{name}.golden, or
// writes it when opts.Update is set.
func checkGolden(opts SuiteOptions, name string, result *Result) (bool, error) {
	data, err := Snapshot(result)
	if err != nil {
		return false, fmt.Errorf("render snapshot: %w", err)
	}
	path := filepath.Join(opts.GoldenDir, name+".golden")

	if opts.Update {
		if err := os.MkdirAll(opts.GoldenDir, 0o755); err != nil {
			return false, fmt.Errorf("create golden dir: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return false, fmt.Errorf("write golden: %w", err)
		}
		return true, nil
	}

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, fmt.Errorf("golden file %s missing (run with --update)", path)
	}
	if err != nil {
		return false, fmt.Errorf("read golden: %w", err)
	}
	if !bytes.Equal(want, data) {
		return false, fmt.Errorf("snapshot differs from %s", path)
	}
	return false, nil
}
