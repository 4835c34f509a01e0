package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run store scenarios",
		Long: `Run YAML scenarios against a fresh in-memory store.

Each scenario runs its setup and flow steps, then checks trace and
final-state assertions. When <dir>/golden/<name>.golden exists the trace
must also match it byte for byte. The configured store is never touched.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  roster test ./scenarios
  roster test ./scenarios --filter "upsert_*"
  roster test ./scenarios --update
  roster test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	files, err := harness.FindScenarios(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	rep := &scenarioReporter{w: cmd.OutOrStdout(), text: opts.Format != "json"}
	if len(files) == 0 && rep.text {
		fmt.Fprintln(rep.w, "No scenarios found.")
		return nil
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files))}
	for _, file := range files {
		r := rep.run(file, opts.Update)
		result.Scenarios = append(result.Scenarios, r)
		result.Total++
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if !rep.text {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// scenarioReporter runs scenario files and prints one line per scenario in
// text mode.
type scenarioReporter struct {
	w    io.Writer
	text bool
}

func (r *scenarioReporter) run(file string, update bool) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return r.fail(filepath.Base(file), fmt.Sprintf("failed to load scenario: %v", err))
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return r.fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}

	if update {
		if err := harness.UpdateGolden(scenario, result, file); err != nil {
			return r.fail(scenario.Name, fmt.Sprintf("failed to update golden file: %v", err))
		}
		return r.pass(scenario.Name, " (golden updated)")
	}

	match, err := harness.CompareGolden(scenario, result, file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// No golden file: assertions decide.
	case err != nil:
		return r.fail(scenario.Name, fmt.Sprintf("golden comparison failed: %v", err))
	case !match:
		return r.fail(scenario.Name, "Golden file mismatch (run with --update to regenerate)")
	}

	if !result.Pass {
		return r.fail(scenario.Name, result.Errors...)
	}
	return r.pass(scenario.Name, "")
}

func (r *scenarioReporter) pass(name, note string) ScenarioResult {
	if r.text {
		fmt.Fprintf(r.w, "%s %s%s\n", color.GreenString("✓"), name, note)
	}
	return ScenarioResult{Name: name, Pass: true}
}

func (r *scenarioReporter) fail(name string, messages ...string) ScenarioResult {
	if r.text {
		fmt.Fprintf(r.w, "%s %s\n", color.RedString("✗"), name)
		for _, m := range messages {
			fmt.Fprintf(r.w, "  %s\n", m)
		}
	}
	return ScenarioResult{Name: name, Pass: false, Errors: messages}
}

// outputTestJSON writes the result as a CLIResponse. Failures set the error
// field and exit with ExitFailure.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    CodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(response); err != nil {
		return err
	}
	return scenarioFailures(result)
}

func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if err := scenarioFailures(result); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s All scenarios passed\n", color.GreenString("✓"))
	return nil
}

func scenarioFailures(result TestResult) error {
	if result.Failed == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
}
