package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// MemberResult is the output of the member subcommands.
type MemberResult struct {
	PersonID string `json:"person_id"`
	GroupID  string `json:"group_id"`
}

// NewMemberCommand creates the member command group.
func NewMemberCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage group memberships",
	}

	var addFields map[string]string
	addCmd := &cobra.Command{
		Use:           "add <person-id> <group-id>",
		Short:         "Add a person to a group, or refresh an existing membership",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemberAdd(cmd, rootOpts, args[0], args[1], addFields)
		},
	}
	addCmd.Flags().StringToStringVar(&addFields, "field", nil, "membership field key=value (repeatable)")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:           "remove <person-id> <group-id>",
		Short:         "Remove a person from a group",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemberRemove(cmd, rootOpts, args[0], args[1])
		},
	})

	var updateFields map[string]string
	updateCmd := &cobra.Command{
		Use:           "update <person-id> <group-id>",
		Short:         "Merge fields into an existing membership",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemberUpdate(cmd, rootOpts, args[0], args[1], updateFields)
		},
	}
	updateCmd.Flags().StringToStringVar(&updateFields, "field", nil, "membership field key=value (repeatable)")
	cmd.AddCommand(updateCmd)

	return cmd
}

func runMemberAdd(cmd *cobra.Command, opts *RootOptions, personID, groupID string, fields map[string]string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ok, err := s.store.AddPersonToGroup(cmd.Context(), personID, groupID, fieldsMap(fields))
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if !ok {
			return f.NotFound("person or group", fmt.Sprintf("%s/%s", personID, groupID))
		}
		return f.Done(MemberResult{PersonID: personID, GroupID: groupID}, "Added %s to %s", personID, groupID)
	})
}

func runMemberRemove(cmd *cobra.Command, opts *RootOptions, personID, groupID string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ok, err := s.store.RemovePersonFromGroup(cmd.Context(), personID, groupID)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if !ok {
			return f.NotFound("membership", fmt.Sprintf("%s/%s", personID, groupID))
		}
		return f.Done(MemberResult{PersonID: personID, GroupID: groupID}, "Removed %s from %s", personID, groupID)
	})
}

func runMemberUpdate(cmd *cobra.Command, opts *RootOptions, personID, groupID string, fields map[string]string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ok, err := s.store.UpdateMembershipFields(cmd.Context(), personID, groupID, fieldsMap(fields))
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if !ok {
			return f.NotFound("membership", fmt.Sprintf("%s/%s", personID, groupID))
		}
		return f.Done(MemberResult{PersonID: personID, GroupID: groupID}, "Updated membership %s/%s", personID, groupID)
	})
}
