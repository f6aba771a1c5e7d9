package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keymint/keymint/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the keymint configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  keymint config validate

  # Validate specific config file
  keymint config validate --config /etc/keymint/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from the root's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	if !cfg.API.HasJWTSecret() {
		warnings = append(warnings, "JWT secret not configured - API authentication will fail")
	}

	if cfg.Admin.PasswordHash == "" {
		warnings = append(warnings, "Admin password hash not set - run 'keymint init' to bootstrap the admin user")
	}

	if cfg.Engine.CacheDir == "" {
		warnings = append(warnings, "Keytab cache directory not configured - cache restores and stores will be skipped")
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Database type:   %s\n", cfg.Database.Type)
	fmt.Printf("  Data directory:  %s\n", cfg.Engine.DataDir)
	fmt.Printf("  Cache directory: %s\n", cfg.Engine.CacheDir)
	fmt.Printf("  API port:        %d\n", cfg.API.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
