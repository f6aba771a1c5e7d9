package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keymint/keymint/internal/api/auth"
	"github.com/keymint/keymint/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a keymint configuration file with sensible defaults.

By default, the configuration file is created at
$XDG_CONFIG_HOME/keymint/config.yaml. Use --config to specify a custom path.

An admin account is set up for the management API. The initial password is
taken from the ` + auth.EnvAdminInitialPassword + ` environment variable when
set, otherwise a random one is generated and printed once.

Examples:
  # Initialize with default location
  keymint init

  # Initialize with custom path
  keymint init --config /etc/keymint/config.yaml

  # Force overwrite existing config
  keymint init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s\nUse --force to overwrite", configPath)
	}

	cfg := config.GetDefaultConfig()

	// Admin account for the management API. The password itself is never
	// stored, only its bcrypt hash.
	password, err := auth.GetOrGenerateAdminPassword()
	if err != nil {
		return fmt.Errorf("failed to generate admin password: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	cfg.Admin.PasswordHash = hash

	// Development JWT secret; production deployments should override it
	// via the environment.
	secret, err := generateJWTSecret()
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg.API.JWT.Secret = secret

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Printf("\nAdmin account for the management API:\n")
	fmt.Printf("  Username: %s\n", cfg.Admin.Username)
	if os.Getenv(auth.EnvAdminInitialPassword) == "" {
		fmt.Printf("  Password: %s\n", password)
		fmt.Println("  (store this now; only the hash is kept in the config file)")
	} else {
		fmt.Printf("  Password: taken from %s\n", auth.EnvAdminInitialPassword)
	}
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to set your Kerberos realm and directories")
	fmt.Println("  2. Materialize keytabs with: keymint run --manifest identities.yaml")
	fmt.Println("  3. Or start the management API with: keymint serve")
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random JWT secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and use an environment variable:")
	fmt.Println("    # Generates a 64-character hex string (32 bytes of entropy)")
	fmt.Printf("    export %s=$(openssl rand -hex 32)\n", config.EnvAPISecret)

	return nil
}

// generateJWTSecret returns a 64-character hex string (32 random bytes).
func generateJWTSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
