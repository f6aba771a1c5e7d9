package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/keymint/keymint/internal/cli/output"
	"github.com/keymint/keymint/internal/cli/prompt"
	"github.com/keymint/keymint/pkg/config"
	"github.com/keymint/keymint/pkg/keycache"
)

var (
	cacheOutputFormat string
	cachePurgeForce   bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the keytab cache",
	Long: `Inspect and maintain the keytab cache directory.

Cache files hold reusable key material for non-service principals so that
later runs can materialize keytabs without regenerating keys. File names
are content hashes; the owning principal is resolved through the registry.`,
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cached keytab files",
	RunE:  runCacheLs,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove every cached keytab file",
	Long: `Remove every file from the keytab cache directory.

Registry cache records are cleared for the affected principals, so the
next materialization regenerates their key material from scratch. This
requires the principals' passwords to be available again.`,
	RunE: runCachePurge,
}

func init() {
	cacheCmd.PersistentFlags().StringVarP(&cacheOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	cachePurgeCmd.Flags().BoolVarP(&cachePurgeForce, "force", "f", false, "Skip confirmation prompt")

	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
}

// cacheEntryView is a cache entry annotated with its owning principal.
type cacheEntryView struct {
	Path      string    `json:"path" yaml:"path"`
	Principal string    `json:"principal,omitempty" yaml:"principal,omitempty"`
	Size      int64     `json:"size" yaml:"size"`
	ModTime   time.Time `json:"mod_time" yaml:"mod_time"`
}

func runCacheLs(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(cacheOutputFormat)
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

	cache := keycache.NewWithDir(cfg.Engine.CacheDir)
	entries, err := cache.List()
	if err != nil {
		return fmt.Errorf("failed to list the keytab cache: %w", err)
	}

	// Resolve owners through the registry. A registry failure only
	// degrades the listing, it does not block it.
	owners := make(map[string]string)
	if store, err := openRegistry(cfg); err == nil {
		if principals, err := store.ListPrincipals(context.Background()); err == nil {
			for _, p := range principals {
				if p.CachedKeytabPath != "" {
					owners[p.CachedKeytabPath] = p.Name
				}
			}
		}
		_ = store.Close()
	}

	views := make([]cacheEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, cacheEntryView{
			Path:      e.Path,
			Principal: owners[e.Path],
			Size:      e.Size,
			ModTime:   e.ModTime,
		})
	}

	printer := output.NewPrinter(os.Stdout, format, true)
	if format != output.FormatTable {
		return printer.Print(views)
	}

	if len(views) == 0 {
		printer.Println("The keytab cache is empty")
		return nil
	}

	table := output.NewTableData("FILE", "PRINCIPAL", "SIZE", "CACHED")
	for _, v := range views {
		owner := v.Principal
		if owner == "" {
			owner = "(orphan)"
		}
		table.AddRow(v.Path, owner, strconv.FormatInt(v.Size, 10), v.ModTime.Format(time.RFC3339))
	}
	return output.PrintTable(os.Stdout, table)
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	if !cachePurgeForce {
		confirmed, err := prompt.ConfirmDanger(
			"This removes every cached keytab; future runs must regenerate key material",
			"purge",
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
	}

	cache := keycache.NewWithDir(cfg.Engine.CacheDir)
	removed, err := cache.Purge()
	if err != nil {
		return fmt.Errorf("failed to purge the keytab cache: %w", err)
	}

	// Clear the now dangling registry records.
	if store, err := openRegistry(cfg); err == nil {
		ctx := context.Background()
		if principals, err := store.ListPrincipals(ctx); err == nil {
			for _, p := range principals {
				if p.CachedKeytabPath == "" {
					continue
				}
				if err := store.UpdateCachedKeytabPath(ctx, p.Name, ""); err != nil {
					output.DefaultPrinter().Warning(fmt.Sprintf("failed to clear cache record for %q: %v", p.Name, err))
				}
			}
		}
		_ = store.Close()
	}

	output.DefaultPrinter().Success(fmt.Sprintf("Removed %d cached keytab file(s)", removed))
	return nil
}
