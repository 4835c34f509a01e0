package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/config"
)

// ConfigInitOptions holds flags for config init.
type ConfigInitOptions struct {
	*RootOptions
	Path         string
	SharedDir    string
	LocalDir     string
	HistoryLimit int
	Description  string
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the deployment configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Show the resolved storage locations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, rootOpts)
		},
	})

	opts := &ConfigInitOptions{RootOptions: rootOpts}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a deployment file",
		Long: `Write a deployment file pointing every user at one shared data directory.

The file is read from $ROSTER_CONFIG, ./roster.yaml or ~/Roster/roster.yaml.
Environment variables still override it.`,
		Example:       `  roster config init --shared /mnt/team/roster --backend sqlite`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, opts)
		},
	}
	initCmd.Flags().StringVar(&opts.Path, "path", config.DeploymentFile, "deployment file to write")
	initCmd.Flags().StringVar(&opts.SharedDir, "shared", ".", "shared data directory")
	initCmd.Flags().StringVar(&opts.LocalDir, "local", "", "local directory (default ~/Roster)")
	initCmd.Flags().IntVar(&opts.HistoryLimit, "history-limit", 0, "revisions kept by the sqlite backend (0 keeps all)")
	initCmd.Flags().StringVar(&opts.Description, "description", "", "free-form description")
	cmd.AddCommand(initCmd)

	return cmd
}

func runConfigShow(cmd *cobra.Command, opts *RootOptions) error {
	f := newFormatter(cmd, opts)
	paths, err := resolvePaths(opts)
	if err != nil {
		return f.Fail(ExitCommandError, CodeConfig, err)
	}
	return f.Emit(paths, func(w io.Writer) {
		deployment := paths.Deployment
		if deployment == "" {
			deployment = "(none)"
		}
		fmt.Fprintf(w, "deployment:    %s\n", deployment)
		fmt.Fprintf(w, "backend:       %s\n", paths.Backend)
		fmt.Fprintf(w, "document:      %s\n", paths.DocumentPath())
		fmt.Fprintf(w, "self binding:  %s\n", paths.SelfPath())
		if paths.HistoryLimit > 0 {
			fmt.Fprintf(w, "history limit: %d\n", paths.HistoryLimit)
		}
	})
}

func runConfigInit(cmd *cobra.Command, opts *ConfigInitOptions) error {
	f := newFormatter(cmd, opts.RootOptions)
	d := config.Deployment{
		SharedDataPath:  opts.SharedDir,
		LocalConfigPath: opts.LocalDir,
		Backend:         opts.Backend,
		HistoryLimit:    opts.HistoryLimit,
		Description:     opts.Description,
	}
	if err := config.WriteDeployment(opts.Path, d); err != nil {
		return f.Fail(ExitCommandError, CodeConfig, err)
	}
	written, err := config.LoadDeployment(opts.Path)
	if err != nil {
		return f.Fail(ExitCommandError, CodeConfig, err)
	}
	return f.Done(written, "Wrote %s (shared data: %s)", opts.Path, written.SharedDataPath)
}
