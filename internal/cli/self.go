package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/selfbind"
)

// SourceSelf is recorded on profiles saved with self save.
const SourceSelf = "self_profile"

// SelfView is the output of self show.
type SelfView struct {
	Binding selfbind.Binding `json:"binding"`
	Path    string           `json:"path"`
	Person  *model.Person    `json:"person,omitempty"`
}

// NewSelfCommand creates the self command group.
func NewSelfCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "self",
		Short: "Manage which person is you on this machine",
		Long: `Manage the local self binding.

The binding lives in the local directory (self.json), not in the shared
store, so every user of a shared store keeps their own.`,
	}

	var phone string
	bindCmd := &cobra.Command{
		Use:   "bind [person-id]",
		Short: "Bind a person as yourself, by id or by phone",
		Example: `  roster self bind <person-id>
  roster self bind --phone "138 0000 0001"`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && phone != "" {
				return errors.New("give a person id or --phone, not both")
			}
			if len(args) == 1 {
				return runSelfBind(cmd, rootOpts, args[0])
			}
			if phone == "" {
				return errors.New("a person id or --phone is required")
			}
			return runSelfBindPhone(cmd, rootOpts, phone)
		},
	}
	bindCmd.Flags().StringVar(&phone, "phone", "", "bind the person owning this phone number")
	cmd.AddCommand(bindCmd)

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Show the bound person",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfShow(cmd, rootOpts)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "clear",
		Short:         "Remove the binding",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfClear(cmd, rootOpts)
		},
	})

	save := &PersonOptions{RootOptions: rootOpts}
	saveCmd := &cobra.Command{
		Use:           "save",
		Short:         "Save your own profile and bind it",
		Long:          "Upsert your own profile without joining a group, then bind the result. A phone number is required.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfSave(cmd, save)
		},
	}
	saveCmd.Flags().StringVar(&save.Name, "name", "", "name")
	saveCmd.Flags().StringVar(&save.Phone, "phone", "", "phone number")
	saveCmd.Flags().StringVar(&save.Email, "email", "", "email address")
	saveCmd.Flags().StringToStringVar(&save.Fields, "field", nil, "profile field key=value (repeatable)")
	saveCmd.Flags().StringVar(&save.ProfileJSON, "profile", "", "profile as a JSON object")
	cmd.AddCommand(saveCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate <profile-file>",
		Short: "Move a single-user profile file into the store and bind it",
		Long: `Move a single-user profile file ({"profile": ..., "source": ...}) into the
store and bind it. Nothing happens when a binding already exists. A person
already owning the profile's phone number is bound instead of updated.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfMigrate(cmd, rootOpts, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "candidates <name>",
		Short:         "List people whose name matches, to pick one to bind",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfCandidates(cmd, rootOpts, args[0])
		},
	})

	return cmd
}

func runSelfBind(cmd *cobra.Command, opts *RootOptions, personID string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ctx := cmd.Context()
		if _, ok, err := s.store.Person(ctx, personID); err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		} else if !ok {
			return f.NotFound("person", personID)
		}
		if err := s.binder().Bind(ctx, personID); err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		return f.Done(selfbind.Binding{SelfPersonID: personID}, "Bound %s", personID)
	})
}

func runSelfBindPhone(cmd *cobra.Command, opts *RootOptions, phone string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		id, ok, err := s.binder().BindByPhone(cmd.Context(), phone)
		if errors.Is(err, selfbind.ErrPhoneRequired) {
			return f.Fail(ExitCommandError, CodeInvalidArgs, err)
		}
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if !ok {
			return f.NotFound("person with phone", phone)
		}
		return f.Done(selfbind.Binding{SelfPersonID: id}, "Bound %s", id)
	})
}

func runSelfShow(cmd *cobra.Command, opts *RootOptions) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ctx := cmd.Context()
		b := s.binder()
		binding, err := b.Binding(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		view := SelfView{Binding: binding, Path: b.Location()}
		p, ok, err := b.Self(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if ok {
			view.Person = &p
		}

		return f.Emit(view, func(w io.Writer) {
			switch {
			case binding.SelfPersonID == "":
				fmt.Fprintln(w, "Not bound.")
			case view.Person == nil:
				fmt.Fprintf(w, "Bound to %s, which is no longer in the store.\n", binding.SelfPersonID)
			default:
				fmt.Fprintf(w, "%s (%s)\n", displayName(p), p.ID)
			}
		})
	})
}

func runSelfClear(cmd *cobra.Command, opts *RootOptions) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		if err := s.binder().Clear(cmd.Context()); err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		return f.Done(selfbind.Binding{}, "Binding cleared")
	})
}

func runSelfSave(cmd *cobra.Command, opts *PersonOptions) error {
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
		id, created, err := s.binder().SaveProfile(cmd.Context(), profile, SourceSelf)
		if errors.Is(err, selfbind.ErrPhoneRequired) {
			return f.Fail(ExitCommandError, CodeInvalidArgs, err)
		}
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		return f.Done(UpsertResult{ID: id, Created: created}, "Saved and bound %s", id)
	})
}

// SelfMigrateResult is the output of self migrate.
type SelfMigrateResult struct {
	ID      string                  `json:"id,omitempty"`
	Outcome selfbind.MigrateOutcome `json:"outcome"`
}

func runSelfMigrate(cmd *cobra.Command, opts *RootOptions, path string) error {
	f := newFormatter(cmd, opts)

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return f.Fail(ExitCommandError, CodeInvalidArgs, err)
	}

	return withSession(cmd, opts, f, func(s *session) error {
		id, outcome, err := s.binder().MigrateSingle(cmd.Context(), data)
		switch {
		case errors.Is(err, selfbind.ErrPhoneRequired),
			errors.Is(err, selfbind.ErrMultiRowProfile),
			errors.Is(err, selfbind.ErrMalformedProfile):
			return f.Fail(ExitCommandError, CodeInvalidArgs, err)
		case err != nil:
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		return f.Done(SelfMigrateResult{ID: id, Outcome: outcome}, "Self profile %s %s", outcome, id)
	})
}

func runSelfCandidates(cmd *cobra.Command, opts *RootOptions, name string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		people, err := s.binder().Candidates(cmd.Context(), name)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		return emitPeople(f, people)
	})
}
