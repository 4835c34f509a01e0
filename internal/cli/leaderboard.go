package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/store"
)

// NewLeaderboardCommand creates the leaderboard command.
func NewLeaderboardCommand(rootOpts *RootOptions) *cobra.Command {
	var groupID string
	var limit int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank people by current score",
		Long: `Rank people by current score, highest first. Equal scores share a rank.

With --group only the group's members are ranked, each scored over the
group's events and global events.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaderboard(cmd, rootOpts, groupID, limit)
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "rank one group's members")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n entries (0 for all)")
	return cmd
}

func runLeaderboard(cmd *cobra.Command, opts *RootOptions, groupID string, limit int) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ctx := cmd.Context()
		if groupID != "" {
			if _, ok, err := s.store.Group(ctx, groupID); err != nil {
				return f.Fail(ExitCommandError, CodeStore, err)
			} else if !ok {
				return f.NotFound("group", groupID)
			}
		}
		board, err := s.store.Leaderboard(ctx, groupID)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if limit > 0 && len(board) > limit {
			board = board[:limit]
		}
		if board == nil {
			board = []store.Standing{}
		}

		rows := make([][]string, len(board))
		for i, st := range board {
			rows[i] = []string{
				strconv.Itoa(st.Rank),
				st.Name,
				formatScore(st.Summary.CurrentScore),
				formatScore(st.Summary.ContributionTotal),
				st.PersonID,
			}
		}
		return f.Emit(board, func(w io.Writer) {
			if len(board) == 0 {
				fmt.Fprintln(w, "No people ranked.")
				return
			}
			f.Table([]string{"RANK", "NAME", "SCORE", "CONTRIBUTIONS", "ID"}, rows)
		})
	})
}
