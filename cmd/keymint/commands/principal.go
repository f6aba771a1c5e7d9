package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/keymint/keymint/internal/cli/output"
	"github.com/keymint/keymint/internal/cli/prompt"
	"github.com/keymint/keymint/pkg/config"
	"github.com/keymint/keymint/pkg/registry/models"
)

var (
	principalOutputFormat string
	principalDeleteForce  bool
)

var principalCmd = &cobra.Command{
	Use:   "principal",
	Short: "Manage registered principals",
	Long: `Inspect and manage the Kerberos principals tracked by the registry.

The registry records which principals exist, whether they are service
principals, where their keytab material is cached, and which hosts they
have been provisioned on.`,
}

var principalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered principals",
	RunE:  runPrincipalList,
}

var principalShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a principal and its host provisions",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrincipalShow,
}

var principalDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a principal and its host provisions",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrincipalDelete,
}

var principalProvisionsCmd = &cobra.Command{
	Use:   "provisions <name>",
	Short: "List the hosts a principal has been provisioned on",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrincipalProvisions,
}

var principalForgetCmd = &cobra.Command{
	Use:   "forget <name> <host>",
	Short: "Remove a host provision so the next run rematerializes",
	Args:  cobra.ExactArgs(2),
	RunE:  runPrincipalForget,
}

func init() {
	principalCmd.PersistentFlags().StringVarP(&principalOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	principalDeleteCmd.Flags().BoolVarP(&principalDeleteForce, "force", "f", false, "Skip confirmation prompt")

	principalCmd.AddCommand(principalListCmd)
	principalCmd.AddCommand(principalShowCmd)
	principalCmd.AddCommand(principalDeleteCmd)
	principalCmd.AddCommand(principalProvisionsCmd)
	principalCmd.AddCommand(principalForgetCmd)
}

func runPrincipalList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(principalOutputFormat)
	if err != nil {
		return err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	principals, err := store.ListPrincipals(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list principals: %w", err)
	}

	printer := output.NewPrinter(os.Stdout, format, true)
	if format != output.FormatTable {
		return printer.Print(principals)
	}

	if len(principals) == 0 {
		printer.Println("No principals registered")
		return nil
	}

	table := output.NewTableData("NAME", "SERVICE", "CACHED", "UPDATED")
	for _, p := range principals {
		cached := "-"
		if p.HasCachedKeytab() {
			cached = "yes"
		}
		table.AddRow(p.Name, strconv.FormatBool(p.IsService), cached, p.UpdatedAt.Format(time.RFC3339))
	}
	return output.PrintTable(os.Stdout, table)
}

func runPrincipalShow(cmd *cobra.Command, args []string) error {
	name := args[0]

	format, err := output.ParseFormat(principalOutputFormat)
	if err != nil {
		return err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	principal, err := store.FindPrincipal(ctx, name)
	if err != nil {
		if errors.Is(err, models.ErrPrincipalNotFound) {
			return fmt.Errorf("principal %q is not registered", name)
		}
		return fmt.Errorf("failed to look up principal: %w", err)
	}

	provisions, err := store.ListProvisions(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to list provisions: %w", err)
	}

	printer := output.NewPrinter(os.Stdout, format, true)
	if format != output.FormatTable {
		return printer.Print(struct {
			Principal  *models.Principal       `json:"principal" yaml:"principal"`
			Provisions []*models.HostProvision `json:"provisions" yaml:"provisions"`
		}{principal, provisions})
	}

	pairs := [][2]string{
		{"Name", principal.Name},
		{"Service", strconv.FormatBool(principal.IsService)},
		{"Cached keytab", valueOrDash(principal.CachedKeytabPath)},
		{"Created", principal.CreatedAt.Format(time.RFC3339)},
		{"Updated", principal.UpdatedAt.Format(time.RFC3339)},
		{"Provisioned hosts", strconv.Itoa(len(provisions))},
	}
	if err := output.SimpleTable(os.Stdout, pairs); err != nil {
		return err
	}

	if len(provisions) > 0 {
		printer.Println()
		table := output.NewTableData("HOST", "KEYTAB PATH", "PROVISIONED")
		for _, p := range provisions {
			table.AddRow(p.Host, valueOrDash(p.KeytabPath), p.CreatedAt.Format(time.RFC3339))
		}
		return output.PrintTable(os.Stdout, table)
	}

	return nil
}

func runPrincipalDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	confirmed, err := prompt.ConfirmWithForce(
		fmt.Sprintf("Delete principal %q and all of its host provisions?", name),
		principalDeleteForce,
	)
	if err != nil {
		if prompt.IsAborted(err) {
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted")
		return nil
	}

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.DeletePrincipal(context.Background(), name); err != nil {
		if errors.Is(err, models.ErrPrincipalNotFound) {
			return fmt.Errorf("principal %q is not registered", name)
		}
		return fmt.Errorf("failed to delete principal: %w", err)
	}

	output.DefaultPrinter().Success(fmt.Sprintf("Deleted principal %q", name))
	return nil
}

func runPrincipalProvisions(cmd *cobra.Command, args []string) error {
	name := args[0]

	format, err := output.ParseFormat(principalOutputFormat)
	if err != nil {
		return err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	provisions, err := store.ListProvisions(context.Background(), name)
	if err != nil {
		if errors.Is(err, models.ErrPrincipalNotFound) {
			return fmt.Errorf("principal %q is not registered", name)
		}
		return fmt.Errorf("failed to list provisions: %w", err)
	}

	printer := output.NewPrinter(os.Stdout, format, true)
	if format != output.FormatTable {
		return printer.Print(provisions)
	}

	if len(provisions) == 0 {
		printer.Println("No host provisions recorded")
		return nil
	}

	table := output.NewTableData("HOST", "KEYTAB PATH", "PROVISIONED")
	for _, p := range provisions {
		table.AddRow(p.Host, valueOrDash(p.KeytabPath), p.CreatedAt.Format(time.RFC3339))
	}
	return output.PrintTable(os.Stdout, table)
}

func runPrincipalForget(cmd *cobra.Command, args []string) error {
	name, host := args[0], args[1]

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.RemoveProvision(context.Background(), name, host); err != nil {
		if errors.Is(err, models.ErrProvisionNotFound) {
			return fmt.Errorf("no provision recorded for %q on %q", name, host)
		}
		return fmt.Errorf("failed to remove provision: %w", err)
	}

	output.DefaultPrinter().Success(fmt.Sprintf("Removed provision for %q on %q", name, host))
	return nil
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
