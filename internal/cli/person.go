package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/identity"
	"github.com/roach88/roster/internal/ledger"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/store"
	"github.com/roach88/roster/internal/value"
)

// SourceCLI is recorded as the source of people upserted from the command line.
const SourceCLI = "cli"

// PersonOptions holds flags for person upsert.
type PersonOptions struct {
	*RootOptions
	Name         string
	Phone        string
	Email        string
	Fields       map[string]string
	ProfileJSON  string
	Group        string
	MemberFields map[string]string
	Source       string
}

// UpsertResult is the output of person upsert.
type UpsertResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// PersonDetail is the output of person get.
type PersonDetail struct {
	Person  model.Person        `json:"person"`
	Groups  []store.Affiliation `json:"groups"`
	Summary ledger.Summary      `json:"summary"`
}

// NewPersonCommand creates the person command group.
func NewPersonCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "person",
		Short: "Manage people",
	}
	cmd.AddCommand(newPersonUpsertCommand(rootOpts))

	cmd.AddCommand(&cobra.Command{
		Use:           "get <id>",
		Short:         "Show a person with groups and score summary",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonGet(cmd, rootOpts, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List people",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonList(cmd, rootOpts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a person",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonDelete(cmd, rootOpts, args[0])
		},
	})

	var phone, email string
	findCmd := &cobra.Command{
		Use:           "find",
		Short:         "Find the person owning a phone or email identity",
		Long:          "Find the person whose identity key matches. The phone wins when both are given, as it does on upsert.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonFind(cmd, rootOpts, phone, email)
		},
	}
	findCmd.Flags().StringVar(&phone, "phone", "", "phone number")
	findCmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.AddCommand(findCmd)

	cmd.AddCommand(&cobra.Command{
		Use:           "search <name>",
		Short:         "Search people by name",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonSearch(cmd, rootOpts, args[0])
		},
	})
	return cmd
}

func newPersonUpsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PersonOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create a person or merge into the one sharing their phone or email",
		Long: `Create a person or merge into the one sharing their identity key.

The identity key is the normalized phone, or the lower-cased email when there
is no phone. On merge, given fields overwrite stored ones and absent fields are
kept. Records with neither phone nor email always create a new person.`,
		Example: `  roster person upsert --name Alice --phone "138 0000 0001" --group <group-id>
  roster person upsert --profile '{"name":"Bob","contact":{"email":"bob@example.com"}}'
  roster person upsert --phone 13800000001 --field title=Engineer --member-field role=lead --group <group-id>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonUpsert(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "name")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringToStringVar(&opts.Fields, "field", nil, "profile field key=value (repeatable)")
	cmd.Flags().StringVar(&opts.ProfileJSON, "profile", "", "profile as a JSON object")
	cmd.Flags().StringVar(&opts.Group, "group", "", "group to join")
	cmd.Flags().StringToStringVar(&opts.MemberFields, "member-field", nil, "membership field key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Source, "source", SourceCLI, "source recorded on the person")
	return cmd
}

func runPersonUpsert(cmd *cobra.Command, opts *PersonOptions) error {
	f := newFormatter(cmd, opts.RootOptions)

	profile, err := profileFromFlags(opts.ProfileJSON, opts.Fields, map[string]string{
		"name":  opts.Name,
		"phone": opts.Phone,
		"email": opts.Email,
	})
	if err != nil {
		return f.Fail(ExitCommandError, CodeInvalidArgs, err)
	}

	return withSession(cmd, opts.RootOptions, f, func(s *session) error {
		id, created, err := s.store.UpsertPerson(cmd.Context(), store.UpsertInput{
			Profile:          profile,
			Source:           opts.Source,
			GroupID:          opts.Group,
			MembershipFields: fieldsMap(opts.MemberFields),
		})
		if err != nil {
			return f.Fail(ExitCommandError, CodeInvalidArgs, err)
		}
		verb := "Merged into"
		if created {
			verb = "Created"
		}
		return f.Done(UpsertResult{ID: id, Created: created}, "%s person %s", verb, id)
	})
}

func runPersonGet(cmd *cobra.Command, opts *RootOptions, id string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ctx := cmd.Context()
		p, ok, err := s.store.Person(ctx, id)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if !ok {
			return f.NotFound("person", id)
		}
		groups, err := s.store.PersonGroups(ctx, id)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		detail := PersonDetail{Person: p, Groups: groups, Summary: ledger.Summarize(p.Performance, "")}

		return f.Emit(detail, func(w io.Writer) {
			fmt.Fprintf(w, "%s (%s)\n", displayName(p), p.ID)
			fmt.Fprintf(w, "  phone:    %s\n", p.Phone)
			fmt.Fprintf(w, "  email:    %s\n", p.Email)
			fmt.Fprintf(w, "  identity: %s\n", p.Dedup.Key)
			fmt.Fprintf(w, "  score:    %s (base %s, %d events)\n",
				formatScore(detail.Summary.CurrentScore), formatScore(detail.Summary.BaseScore), detail.Summary.EventCount)
			for _, k := range p.Profile.SortedKeys() {
				fmt.Fprintf(w, "  profile.%s = %s\n", k, value.Text(p.Profile[k]))
			}
			for _, g := range groups {
				fmt.Fprintf(w, "  group %s (%s) %s\n", g.Group.Name, g.Group.ID, formatFields(g.Membership.Fields))
			}
		})
	})
}

func runPersonList(cmd *cobra.Command, opts *RootOptions) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		people, err := s.store.People(cmd.Context())
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		return emitPeople(f, people)
	})
}

func runPersonDelete(cmd *cobra.Command, opts *RootOptions, id string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ok, err := s.store.DeletePerson(cmd.Context(), id)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if !ok {
			return f.NotFound("person", id)
		}
		return f.Done(map[string]string{"id": id}, "Deleted person %s", id)
	})
}

func runPersonFind(cmd *cobra.Command, opts *RootOptions, phone, email string) error {
	f := newFormatter(cmd, opts)
	key := identity.ComputeDedupKey(phone, email).Key
	if key == "" {
		return f.Fail(ExitCommandError, CodeInvalidArgs, errors.New("find: a usable --phone or --email is required"))
	}
	return withSession(cmd, opts, f, func(s *session) error {
		p, ok, err := s.store.FindPersonByDedupKey(cmd.Context(), key)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if !ok {
			return f.NotFound("identity", key)
		}
		return f.Emit(p, func(w io.Writer) {
			fmt.Fprintf(w, "%s (%s)\n", displayName(p), p.ID)
		})
	})
}

func runPersonSearch(cmd *cobra.Command, opts *RootOptions, query string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		people, err := s.store.SearchByName(cmd.Context(), query)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		return emitPeople(f, people)
	})
}

// emitPeople writes a people listing. JSON output is never null.
func emitPeople(f *OutputFormatter, people []model.Person) error {
	if people == nil {
		people = []model.Person{}
	}
	rows := make([][]string, len(people))
	for i, p := range people {
		rows[i] = []string{
			p.ID,
			displayName(p),
			p.Phone,
			p.Email,
			strconv.Itoa(len(p.Memberships)),
			formatScore(ledger.CurrentScore(p.Performance)),
		}
	}
	return f.Emit(people, func(w io.Writer) {
		if len(people) == 0 {
			fmt.Fprintln(w, "No people.")
			return
		}
		f.Table([]string{"ID", "NAME", "PHONE", "EMAIL", "GROUPS", "SCORE"}, rows)
	})
}

// displayName falls back to a short id for unnamed people.
func displayName(p model.Person) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return identity.PlaceholderName(model.ShortID(p.ID, 6))
}

// formatScore renders a score without trailing zeros.
func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
