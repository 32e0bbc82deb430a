package root

import (
	"github.com/spf13/cobra"

	"github.com/flarebyte/mipforge/cmd/mipforge/check"
	"github.com/flarebyte/mipforge/cmd/mipforge/run"
	"github.com/flarebyte/mipforge/cmd/mipforge/version"
)

// NewRootCmd creates the root command for mipforge.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mipforge",
		Short: "Run diagnose and transform tools over texture trees, skipping what is up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Show help when no subcommand is provided.
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(version.VersionCmd)
	cmd.AddCommand(run.NewCmd())
	cmd.AddCommand(check.NewCmd())

	return cmd
}

// Execute runs the root command with provided args.
func Execute(args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}
