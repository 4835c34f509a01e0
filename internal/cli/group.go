package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/store"
	"github.com/roach88/roster/internal/value"
)

// GroupOptions holds flags for the group subcommands.
type GroupOptions struct {
	*RootOptions
	Name        string
	Description string
	Tags        []string
	ClearTags   bool
}

// GroupListing is one row of group list output.
type GroupListing struct {
	model.Group
	MemberCount int `json:"member_count"`
}

// NewGroupCommand creates the group command group.
func NewGroupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups",
	}

	create := &GroupOptions{RootOptions: rootOpts}
	createCmd := &cobra.Command{
		Use:           "create <name>",
		Short:         "Create a group",
		Example:       `  roster group create "Platform" --description "infra team" --tag backend --tag oncall`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroupCreate(cmd, create, args[0])
		},
	}
	createCmd.Flags().StringVar(&create.Description, "description", "", "group description")
	createCmd.Flags().StringSliceVar(&create.Tags, "tag", nil, "tag (repeatable)")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:           "rename <id> <name>",
		Short:         "Rename a group",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[1]
			return runGroupUpdate(cmd, rootOpts, args[0], store.GroupPatch{Name: &name})
		},
	})

	update := &GroupOptions{RootOptions: rootOpts}
	updateCmd := &cobra.Command{
		Use:           "update <id>",
		Short:         "Update a group's name, description or tags",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch store.GroupPatch
			if cmd.Flags().Changed("name") {
				patch.Name = &update.Name
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &update.Description
			}
			if cmd.Flags().Changed("tag") || update.ClearTags {
				patch.Tags = update.Tags
				patch.SetTags = true
			}
			return runGroupUpdate(cmd, rootOpts, args[0], patch)
		},
	}
	updateCmd.Flags().StringVar(&update.Name, "name", "", "new name")
	updateCmd.Flags().StringVar(&update.Description, "description", "", "new description")
	updateCmd.Flags().StringSliceVar(&update.Tags, "tag", nil, "replacement tags (repeatable)")
	updateCmd.Flags().BoolVar(&update.ClearTags, "clear-tags", false, "remove every tag")
	cmd.AddCommand(updateCmd)

	cmd.AddCommand(&cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a group and its memberships",
		Long:          "Delete a group. Memberships pointing at it are removed; people and their performance events are kept.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroupDelete(cmd, rootOpts, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List groups",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroupList(cmd, rootOpts)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "members <id>",
		Short:         "List the people in a group with their membership fields",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroupMembers(cmd, rootOpts, args[0])
		},
	})

	return cmd
}

func runGroupCreate(cmd *cobra.Command, opts *GroupOptions, name string) error {
	f := newFormatter(cmd, opts.RootOptions)
	return withSession(cmd, opts.RootOptions, f, func(s *session) error {
		id, err := s.store.CreateGroup(cmd.Context(), store.GroupInput{
			Name:        name,
			Description: opts.Description,
			Tags:        opts.Tags,
		})
		if err != nil {
			return f.Fail(ExitCommandError, CodeInvalidArgs, err)
		}
		return f.Done(map[string]string{"id": id}, "Created group %s (%s)", strings.TrimSpace(name), id)
	})
}

func runGroupUpdate(cmd *cobra.Command, opts *RootOptions, id string, patch store.GroupPatch) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ok, err := s.store.UpdateGroup(cmd.Context(), id, patch)
		if err != nil {
			return f.Fail(ExitCommandError, CodeInvalidArgs, err)
		}
		if !ok {
			return f.NotFound("group", id)
		}
		return f.Done(map[string]string{"id": id}, "Updated group %s", id)
	})
}

func runGroupDelete(cmd *cobra.Command, opts *RootOptions, id string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ok, err := s.store.DeleteGroup(cmd.Context(), id)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		if !ok {
			return f.NotFound("group", id)
		}
		return f.Done(map[string]string{"id": id}, "Deleted group %s", id)
	})
}

func runGroupList(cmd *cobra.Command, opts *RootOptions) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ctx := cmd.Context()
		groups, err := s.store.Groups(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}
		people, err := s.store.People(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}

		counts := make(map[string]int, len(groups))
		for _, p := range people {
			for _, m := range p.Memberships {
				counts[m.GroupID]++
			}
		}
		listing := make([]GroupListing, len(groups))
		rows := make([][]string, len(groups))
		for i, g := range groups {
			listing[i] = GroupListing{Group: g, MemberCount: counts[g.ID]}
			rows[i] = []string{g.ID, g.Name, strconv.Itoa(counts[g.ID]), strings.Join(g.Tags, ","), g.Description}
		}

		return f.Emit(listing, func(w io.Writer) {
			if len(groups) == 0 {
				fmt.Fprintln(w, "No groups.")
				return
			}
			f.Table([]string{"ID", "NAME", "MEMBERS", "TAGS", "DESCRIPTION"}, rows)
		})
	})
}

func runGroupMembers(cmd *cobra.Command, opts *RootOptions, id string) error {
	f := newFormatter(cmd, opts)
	return withSession(cmd, opts, f, func(s *session) error {
		ctx := cmd.Context()
		if _, ok, err := s.store.Group(ctx, id); err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		} else if !ok {
			return f.NotFound("group", id)
		}
		members, err := s.store.PeopleInGroup(ctx, id)
		if err != nil {
			return f.Fail(ExitCommandError, CodeStore, err)
		}

		rows := make([][]string, len(members))
		for i, m := range members {
			rows[i] = []string{m.Person.ID, m.Person.Name, m.Person.Phone, formatFields(m.Membership.Fields)}
		}
		return f.Emit(members, func(w io.Writer) {
			if len(members) == 0 {
				fmt.Fprintln(w, "No members.")
				return
			}
			f.Table([]string{"ID", "NAME", "PHONE", "FIELDS"}, rows)
		})
	})
}

// formatFields renders a map as sorted key=value pairs.
func formatFields(m value.Map) string {
	parts := make([]string, 0, len(m))
	for _, k := range m.SortedKeys() {
		parts = append(parts, k+"="+value.Text(m[k]))
	}
	return strings.Join(parts, " ")
}
