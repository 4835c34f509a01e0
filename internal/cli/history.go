package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/persist"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved revisions of the store (sqlite backend)",
		Long: `List saved revisions of the store, newest first.

Only the sqlite backend keeps revisions. Select it with --backend sqlite,
ROSTER_BACKEND, or the deployment file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, rootOpts, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most n revisions (0 for all)")
	return cmd
}

func runHistory(cmd *cobra.Command, opts *RootOptions, limit int) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		lister, ok := s.backend.(persist.HistoryLister)
		if !ok {
			return f.Fail(ExitCommandError, CodeInvalidArgs,
				fmt.Errorf("backend %s keeps no history; use --backend sqlite", s.paths.Backend))
		}
		revisions, err := lister.History(cmd.Context(), limit)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if revisions == nil {
			revisions = []persist.Revision{}
		}

		rows := make([][]string, len(revisions))
		for i, r := range revisions {
			rows[i] = []string{
				strconv.FormatInt(r.Seq, 10),
				r.WrittenAt,
				strconv.Itoa(r.SchemaVersion),
				strconv.Itoa(r.Size),
				r.Checksum,
			}
		}
		return f.Emit(revisions, func(w io.Writer) {
			if len(revisions) == 0 {
				fmt.Fprintln(w, "No revisions.")
				return
			}
			f.Table([]string{"SEQ", "WRITTEN", "SCHEMA", "BYTES", "CHECKSUM"}, rows)
		})
	})
}
