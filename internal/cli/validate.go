package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/persist"
	"github.com/roach88/roster/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Location string         `json:"location"`
	Valid    bool           `json:"valid"`
	Errors   []schema.Issue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [document]",
		Short: "Check a stored document against the current schema",
		Long: `Check a document against the current schema without loading it into a store.

Without an argument the configured store is checked. Structure is checked
against the CUE schema, then ids, identity keys and memberships are checked
across records. Legacy documents fail with a hint to run migrate.

Exit codes:
  0 - Document valid
  1 - Document has issues
  2 - Command error (document not found)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts)

	location, data, err := readDocument(cmd, opts, path)
	if err != nil {
		return outputValidateError(formatter, CodeStore, err.Error())
	}
	formatter.VerboseLog("Validating %s (%d bytes)", location, len(data))

	validator, err := schema.New()
	if err != nil {
		return outputValidateError(formatter, CodeValidation, err.Error())
	}

	if issues := validator.Validate(location, data); len(issues) > 0 {
		return outputValidationErrors(formatter, location, issues)
	}
	return outputValidateSuccess(formatter, location)
}

// readDocument returns the raw document at path, or the configured store's
// document when path is empty.
func readDocument(cmd *cobra.Command, opts *RootOptions, path string) (string, []byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return path, nil, fmt.Errorf("read document: %w", err)
		}
		return path, data, nil
	}

	s, err := openSession(cmd, opts)
	if err != nil {
		return "", nil, err
	}
	defer s.Close()

	location := s.backend.Location()
	data, err := s.backend.Load(cmd.Context())
	if errors.Is(err, persist.ErrNotFound) {
		return location, nil, fmt.Errorf("no document at %s", location)
	}
	if err != nil {
		return location, nil, err
	}
	return location, data, nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, location string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Location: location, Valid: true})
	}

	fmt.Fprintf(formatter.Writer, "%s %s is valid\n", color.GreenString("✓"), location)
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Unreadable input is a command-level error (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every issue found.
func outputValidationErrors(formatter *OutputFormatter, location string, issues []schema.Issue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Location: location,
				Valid:    false,
				Errors:   issues,
			},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(issues)))
	}

	// Text format
	fmt.Fprintf(formatter.Writer, "%s Validation failed: %s\n", color.RedString("✗"), location)
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", issue.Code, issue.Path, issue.Message)
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(issues)))
}
