package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the ChannelPulse admin CLI. Subcommands
// (bootstrap, tenant, vendor-config) are attached here.
var rootCmd = &cobra.Command{
	Use:           "channelpulse",
	Short:         "ChannelPulse admin CLI",
	Long:          "Administrative utilities for ChannelPulse (platform bootstrap, tenant provisioning, vendor config management).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
