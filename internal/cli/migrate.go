package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/migrate"
	"github.com/roach88/roster/internal/persist"
)

// MigrateCheck is the output of migrate --check.
type MigrateCheck struct {
	Location   string             `json:"location"`
	Generation migrate.Generation `json:"generation"`
	Current    bool               `json:"current"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the stored document to the current schema",
		Long: `Upgrade the stored document to the current schema generation.

Legacy team arrays (v1) and ledger-less documents (v2) are rewritten as v3.
Legacy members sharing a phone or email are merged into one person. Running
migrate on a current document changes nothing.

Exit codes:
  0 - Document is current (upgraded or already)
  1 - --check found a document that needs upgrading
  2 - Document unreadable or written by a newer release`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if check {
				return runMigrateCheck(cmd, rootOpts)
			}
			return runMigrate(cmd, rootOpts)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "report the stored generation without writing")
	return cmd
}

func runMigrate(cmd *cobra.Command, opts *RootOptions) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		report, err := s.store.Migrate(cmd.Context())
		if err != nil {
			return f.Fail(ExitCommandError, CodeMigration, err)
		}
		return f.Emit(report, func(w io.Writer) {
			if !report.Migrated() {
				fmt.Fprintf(w, "%s Store is current (%s)\n", color.GreenString("✓"), report.To)
				return
			}
			fmt.Fprintf(w, "%s Migrated %s -> %s: %d groups, %d people, %d merged\n",
				color.GreenString("✓"), report.From, report.To, report.Groups, report.People, report.Merged)
		})
	})
}

func runMigrateCheck(cmd *cobra.Command, opts *RootOptions) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		raw, err := s.backend.Load(cmd.Context())
		if errors.Is(err, persist.ErrNotFound) {
			return f.Emit(MigrateCheck{Location: s.backend.Location(), Generation: migrate.GenerationV3, Current: true},
				func(w io.Writer) {
					fmt.Fprintf(w, "%s No store at %s\n", color.GreenString("✓"), s.backend.Location())
				})
		}
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}

		gen, err := migrate.Detect(raw)
		if err != nil {
			return f.Fail(ExitCommandError, CodeMigration, err)
		}
		result := MigrateCheck{Location: s.backend.Location(), Generation: gen, Current: gen == migrate.GenerationV3}
		if err := f.Emit(result, func(w io.Writer) {
			mark := color.GreenString("✓")
			if !result.Current {
				mark = color.YellowString("!")
			}
			fmt.Fprintf(w, "%s %s is %s\n", mark, result.Location, gen)
		}); err != nil {
			return err
		}
		if !result.Current {
			return NewExitError(ExitFailure, fmt.Sprintf("store is %s, run migrate to upgrade", gen))
		}
		return nil
	})
}
