package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/importer"
	"github.com/roach88/roster/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Group         string
	Performance   string
	Contributions bool
	DryRun        bool
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import people from a CSV or XLSX table",
		Long: `Import people from a CSV or XLSX table into one group.

Every row is an upsert, so rows naming someone already stored merge into them.
Role and department columns become membership fields. A detected performance
column sets base scores according to --performance:

  ignore     leave base scores alone (default)
  new_only   set the base score of people this import created
  overwrite  set the base score of every imported person

With --contributions the contribution column becomes contribution events in
the target group.

Exit codes:
  0 - Import finished
  1 - A row failed; rows before it stay written
  2 - Command error (unreadable file, unknown group)`,
		Example: `  roster import team.csv --group <group-id>
  roster import scores.xlsx --performance overwrite --contributions`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Group, "group", "", "target group (default: first group, created when none exists)")
	cmd.Flags().StringVar(&opts.Performance, "performance", string(importer.StrategyIgnore), "performance column strategy (ignore|new_only|overwrite)")
	cmd.Flags().BoolVar(&opts.Contributions, "contributions", false, "import the contribution column as events")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "only report the detected columns")

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, path string) error {
	f := newFormatter(cmd, opts.RootOptions)

	strategy, err := importer.ParseStrategy(opts.Performance)
	if err != nil {
		return f.Fail(ExitCommandError, CodeInvalidArgs, err)
	}
	table, err := importer.ReadFile(path)
	if err != nil {
		if errors.Is(err, importer.ErrUnsupportedFormat) {
			return f.Fail(ExitCommandError, CodeInvalidArgs, err)
		}
		return f.Fail(ExitCommandError, CodeImport, fmt.Errorf("read %s: %w", path, err))
	}
	f.VerboseLog("Read %d rows, columns: %s", len(table.Rows), strings.Join(table.Columns, ", "))

	if opts.DryRun {
		columns := importer.Detect(table.Columns)
		return f.Emit(columns, func(w io.Writer) {
			writeColumns(w, columns)
		})
	}

	return withSession(cmd, opts.RootOptions, f, func(s *session) error {
		im := importer.New(s.store, importer.WithLogger(s.logger))
		res, err := im.Import(cmd.Context(), table, importer.Options{
			GroupID:       opts.Group,
			Strategy:      strategy,
			Contributions: opts.Contributions,
		})
		if errors.Is(err, store.ErrUnknownGroup) {
			return f.Fail(ExitCommandError, CodeInvalidArgs, err)
		}
		if err != nil {
			return f.Fail(ExitFailure, CodeImport, err)
		}
		return f.Emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "%s Imported into group %s: %d created, %d updated, %d skipped\n",
				color.GreenString("✓"), res.GroupID, res.Created, res.Updated, res.Skipped)
			if res.BaseScores > 0 || res.Contributions > 0 {
				fmt.Fprintf(w, "  %d base scores set, %d contribution events\n", res.BaseScores, res.Contributions)
			}
		})
	})
}

func writeColumns(w io.Writer, c importer.Columns) {
	none := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	fmt.Fprintf(w, "name:               %s\n", none(c.Name))
	fmt.Fprintf(w, "membership:         %s\n", none(strings.Join(c.Membership, ", ")))
	fmt.Fprintf(w, "performance:        %s\n", none(c.Performance))
	fmt.Fprintf(w, "contribution:       %s\n", none(c.Contribution))
	fmt.Fprintf(w, "contribution score: %s\n", none(c.ContributionScore))
}
