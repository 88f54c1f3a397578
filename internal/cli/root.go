package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand assembles the syncplan command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "syncplan",
		Short: "Plan, estimate and run filtered file copies",
		Long: `syncplan selects files by name pattern, directory, modification time and
size, shows how much would be copied and how long it should take, and after
confirmation copies them to a local path, an SFTP host or an S3 bucket.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(NewPlanCommand())
	rootCmd.AddCommand(NewSyncCommand())
	rootCmd.AddCommand(NewReplayCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}
