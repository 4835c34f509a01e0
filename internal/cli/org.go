package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewOrgCommand creates the org command group.
func NewOrgCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Show or rename the organization",
	}
	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Show the organization",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrgShow(cmd, rootOpts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "rename <name>",
		Short:         "Rename the organization",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrgRename(cmd, rootOpts, args[0])
		},
	})
	return cmd
}

func runOrgShow(cmd *cobra.Command, opts *RootOptions) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		org, err := s.store.Organization(cmd.Context())
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		return f.Emit(org, func(w io.Writer) {
			fmt.Fprintf(w, "%s (%s)\n", org.Name, org.ID)
			fmt.Fprintf(w, "created %s, updated %s\n", org.CreatedAt, org.UpdatedAt)
		})
	})
}

func runOrgRename(cmd *cobra.Command, opts *RootOptions, name string) error {
	f := newFormatter(cmd, opts)
	name = strings.TrimSpace(name)
	return withSession(cmd, opts, f, func(s *session) error {
		if err := s.store.RenameOrganization(cmd.Context(), name); err != nil {
			return f.Fail(ExitCommandError, CodeInvalidArgs, err)
		}
		return f.Done(map[string]string{"name": name}, "Organization renamed to %s", name)
	})
}
