package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/ledger"
)

// EventOptions holds flags for perf add and perf update.
type EventOptions struct {
	Type    string
	Delta   float64
	Title   string
	Note    string
	GroupID string
	At      string
}

// PerformanceView is the output of perf show.
type PerformanceView struct {
	PersonID string         `json:"person_id"`
	GroupID  string         `json:"group_id,omitempty"`
	Summary  ledger.Summary `json:"summary"`
	Events   []ledger.Event `json:"events"`
}

// NewPerfCommand creates the perf command group.
func NewPerfCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perf",
		Short: "Inspect and edit performance ledgers",
		Long: `Inspect and edit the performance ledger of a person.

A ledger is a base score plus events. An event tagged with a group only
counts in that group's views; an event without a group counts everywhere.`,
	}

	var showGroup, showType string
	showCmd := &cobra.Command{
		Use:           "show <person-id>",
		Short:         "Show a person's events and summary",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPerfShow(cmd, rootOpts, args[0], showGroup, showType)
		},
	}
	showCmd.Flags().StringVar(&showGroup, "group", "", "scope to a group's events and global events")
	showCmd.Flags().StringVar(&showType, "type", "", "only events of this type")
	cmd.AddCommand(showCmd)

	var summaryGroup string
	summaryCmd := &cobra.Command{
		Use:           "summary <person-id>",
		Short:         "Fold a person's ledger into a score summary",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPerfSummary(cmd, rootOpts, args[0], summaryGroup)
		},
	}
	summaryCmd.Flags().StringVar(&summaryGroup, "group", "", "scope to a group's events and global events")
	cmd.AddCommand(summaryCmd)

	cmd.AddCommand(&cobra.Command{
		Use:           "base <person-id> <score>",
		Short:         "Set a person's base score",
		Example:       "  roster perf base <person-id> 85\n  roster perf base <person-id> -- -5",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPerfBase(cmd, rootOpts, args[0], args[1])
		},
	})

	add := &EventOptions{}
	addCmd := &cobra.Command{
		Use:           "add <person-id>",
		Short:         "Record a performance event",
		Example:       `  roster perf add <person-id> --delta 2.5 --type contribution --title "Release" --group <group-id>`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPerfAdd(cmd, rootOpts, args[0], add)
		},
	}
	bindEventFlags(addCmd, add)
	cmd.AddCommand(addCmd)

	update := &EventOptions{}
	updateCmd := &cobra.Command{
		Use:           "update <person-id> <event-id>",
		Short:         "Change fields of a performance event",
		Long:          "Change the given fields of an event. Pass --group \"\" to make the event global.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPerfUpdate(cmd, rootOpts, args[0], args[1], eventPatch(cmd, update))
		},
	}
	bindEventFlags(updateCmd, update)
	cmd.AddCommand(updateCmd)

	cmd.AddCommand(&cobra.Command{
		Use:           "delete <person-id> <event-id>",
		Short:         "Delete a performance event",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPerfDelete(cmd, rootOpts, args[0], args[1])
		},
	})

	return cmd
}

func bindEventFlags(cmd *cobra.Command, opts *EventOptions) {
	cmd.Flags().StringVar(&opts.Type, "type", ledger.TypeManualAdjust, "event type (import_base|contribution|manual_adjust)")
	cmd.Flags().Float64Var(&opts.Delta, "delta", 0, "score delta")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note")
	cmd.Flags().StringVar(&opts.GroupID, "group", "", "group the event counts in (empty for global)")
	cmd.Flags().StringVar(&opts.At, "at", "", "date, YYYY-MM-DD (default today)")
}

// eventPatch builds a patch from the flags that were set.
func eventPatch(cmd *cobra.Command, opts *EventOptions) ledger.EventPatch {
	var patch ledger.EventPatch
	flags := cmd.Flags()
	if flags.Changed("type") {
		patch.Type = &opts.Type
	}
	if flags.Changed("delta") {
		patch.Delta = &opts.Delta
	}
	if flags.Changed("title") {
		patch.Title = &opts.Title
	}
	if flags.Changed("note") {
		patch.Note = &opts.Note
	}
	if flags.Changed("group") {
		patch.GroupID = &opts.GroupID
	}
	if flags.Changed("at") {
		patch.At = &opts.At
	}
	return patch
}

func runPerfShow(cmd *cobra.Command, opts *RootOptions, personID, groupID, eventType string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		l, ok, err := s.store.PersonPerformance(cmd.Context(), personID)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if !ok {
			return f.NotFound("person", personID)
		}
		view := PerformanceView{
			PersonID: personID,
			GroupID:  groupID,
			Summary:  ledger.Summarize(l, groupID),
			Events:   ledger.Filter(l, groupID, eventType),
		}

		rows := make([][]string, len(view.Events))
		for i, e := range view.Events {
			group := e.GroupID
			if group == "" {
				group = "(global)"
			}
			rows[i] = []string{e.ID, e.At, e.Type, formatScore(e.Delta), group, e.Title}
		}
		return f.Emit(view, func(w io.Writer) {
			writeSummary(w, view.Summary)
			if len(rows) > 0 {
				fmt.Fprintln(w)
				f.Table([]string{"ID", "DATE", "TYPE", "DELTA", "GROUP", "TITLE"}, rows)
			}
		})
	})
}

func runPerfSummary(cmd *cobra.Command, opts *RootOptions, personID, groupID string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		summary, ok, err := s.store.PersonSummary(cmd.Context(), personID, groupID)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if !ok {
			return f.NotFound("person", personID)
		}
		return f.Emit(summary, func(w io.Writer) {
			writeSummary(w, summary)
		})
	})
}

func writeSummary(w io.Writer, s ledger.Summary) {
	fmt.Fprintf(w, "current score:  %s\n", formatScore(s.CurrentScore))
	fmt.Fprintf(w, "base score:     %s\n", formatScore(s.BaseScore))
	fmt.Fprintf(w, "contributions:  %s (%d)\n", formatScore(s.ContributionTotal), s.ContributionCount)
	fmt.Fprintf(w, "events:         %d\n", s.EventCount)
}

func runPerfBase(cmd *cobra.Command, opts *RootOptions, personID, text string) error {
	f := newFormatter(cmd, opts)
	score, ok := ledger.ParseScore(text)
	if !ok {
		return f.Fail(ExitCommandError, CodeInvalidArgs, fmt.Errorf("invalid score %q", text))
	}
	return withSession(cmd, opts, f, func(s *session) error {
		found, err := s.store.SetPersonBaseScore(cmd.Context(), personID, score)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if !found {
			return f.NotFound("person", personID)
		}
		return f.Done(map[string]any{"person_id": personID, "base_score": score},
			"Base score of %s set to %s", personID, formatScore(score))
	})
}

func runPerfAdd(cmd *cobra.Command, opts *RootOptions, personID string, in *EventOptions) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		stored, ok, err := s.store.AddPerformanceEvent(cmd.Context(), personID, ledger.Event{
			Type:    in.Type,
			Delta:   in.Delta,
			Title:   in.Title,
			Note:    in.Note,
			GroupID: in.GroupID,
			At:      in.At,
		})
		if err != nil {
			return f.Fail(ExitCommandError, CodeInvalidArgs, err)
		}
		if !ok {
			return f.NotFound("person", personID)
		}
		return f.Done(stored, "Recorded %s %s for %s (%s)", stored.Type, formatScore(stored.Delta), personID, stored.ID)
	})
}

func runPerfUpdate(cmd *cobra.Command, opts *RootOptions, personID, eventID string, patch ledger.EventPatch) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ok, err := s.store.UpdatePerformanceEvent(cmd.Context(), personID, eventID, patch)
		if err != nil {
			return f.Fail(ExitCommandError, CodeInvalidArgs, err)
		}
		if !ok {
			return f.NotFound("event", fmt.Sprintf("%s/%s", personID, eventID))
		}
		return f.Done(map[string]string{"person_id": personID, "event_id": eventID}, "Updated event %s", eventID)
	})
}

func runPerfDelete(cmd *cobra.Command, opts *RootOptions, personID, eventID string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ok, err := s.store.DeletePerformanceEvent(cmd.Context(), personID, eventID)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if !ok {
			return f.NotFound("event", fmt.Sprintf("%s/%s", personID, eventID))
		}
		return f.Done(map[string]string{"person_id": personID, "event_id": eventID}, "Deleted event %s", eventID)
	})
}
