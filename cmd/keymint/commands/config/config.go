// Package config implements the "keymint config" subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent "config" command, wired into the root command.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration tooling",
	Long: `Inspect and validate the keymint configuration.

Use "keymint init" to create a configuration file in the first place.`,
}

func init() {
	Cmd.AddCommand(schemaCmd)
	Cmd.AddCommand(validateCmd)
}
