package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keymint/keymint/internal/cli/output"
	"github.com/keymint/keymint/pkg/config"
	"github.com/keymint/keymint/pkg/materialize"
	"github.com/keymint/keymint/pkg/registry"
	"github.com/keymint/keymint/pkg/registry/models"
)

var (
	runManifestPath    string
	runSecretsPath     string
	runRegister        bool
	runMarkProvisioned bool
	runOutputFormat    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Materialize keytabs from a manifest",
	Long: `Run the materialization engine over a manifest of identity records.

Each record names a principal, the host its keytab is destined for, and the
keytab path on that host. Principals listed in the secrets file get freshly
generated keys; the rest are served from the keytab cache. Results land
under the configured data directory as <data_dir>/<host>/<digest>, readable
only by the owning user.

Per-identity failures do not stop the run: every record is attempted and
the report lists each outcome. Only engine faults (unusable cache
directory, permission lockdown failures) abort the batch.

Examples:
  # Materialize with fresh secrets
  keymint run --manifest identities.yaml --secrets secrets.yaml

  # Replay from cache only (no secrets)
  keymint run --manifest identities.yaml

  # Register unknown principals in the registry first
  keymint run --manifest identities.yaml --secrets secrets.yaml --register

  # Machine-readable report
  keymint run --manifest identities.yaml --output json`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runManifestPath, "manifest", "m", "", "Manifest file listing identity records (required)")
	runCmd.Flags().StringVarP(&runSecretsPath, "secrets", "s", "", "Secrets file with passwords and key versions")
	runCmd.Flags().BoolVar(&runRegister, "register", false, "Register manifest principals in the registry before the run")
	runCmd.Flags().BoolVar(&runMarkProvisioned, "mark-provisioned", true, "Record host provisions for delivered keytabs")
	runCmd.Flags().StringVarP(&runOutputFormat, "output", "o", "table", "Output format: table, json, yaml")
	_ = runCmd.MarkFlagRequired("manifest")
}

func runRun(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(runOutputFormat)
	if err != nil {
		return err
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	manifest, err := materialize.LoadManifest(runManifestPath)
	if err != nil {
		return err
	}

	secrets := materialize.Secrets{}
	if runSecretsPath != "" {
		secrets, err = materialize.LoadSecrets(runSecretsPath)
		if err != nil {
			return err
		}
	}

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	jnl, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = jnl.Close() }()

	// Cancel between identity records on SIGINT/SIGTERM; the record in
	// flight finishes first.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runRegister {
		if err := registerPrincipals(ctx, store, manifest); err != nil {
			return err
		}
	}

	engineCfg, err := engineConfig(cfg, store, nil)
	if err != nil {
		return err
	}

	runner, err := materialize.NewRunner(materialize.RunnerConfig{
		Engine:               engineCfg,
		Recorder:             jnl,
		SkipProvisionRecords: !runMarkProvisioned,
	})
	if err != nil {
		return err
	}

	report, runErr := runner.Run(ctx, manifest, secrets)
	if report == nil {
		return runErr
	}

	printer := output.NewPrinter(os.Stdout, format, true)
	if err := printReport(printer, report); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("run %s aborted: %s", report.RunID, report.Fatal)
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d identities failed; last failure: %s",
			report.Failed, report.Total, report.Message)
	}
	return nil
}

// registerPrincipals upserts the manifest's principals into the registry,
// so a first run against an empty registry can cache its fresh material.
func registerPrincipals(ctx context.Context, store registry.Store, manifest *materialize.Manifest) error {
	seen := make(map[string]bool)
	for _, record := range manifest.Identities {
		if seen[record.Principal] {
			continue
		}
		seen[record.Principal] = true

		_, err := store.CreatePrincipal(ctx, &models.Principal{
			Name:      record.Principal,
			IsService: record.Service,
		})
		if err != nil && !errors.Is(err, models.ErrDuplicatePrincipal) {
			return fmt.Errorf("failed to register principal %s: %w", record.Principal, err)
		}
	}
	return nil
}

// printReport renders the run report in the requested format.
func printReport(printer *output.Printer, report *materialize.Report) error {
	if printer.Format() != output.FormatTable {
		return printer.Print(report)
	}

	table := output.NewTableData("PRINCIPAL", "HOST", "OUTCOME", "DETAIL")
	for _, result := range report.Results {
		detail := result.DestinationFile
		switch result.Outcome {
		case materialize.OutcomeSkipped:
			detail = result.Reason
		case materialize.OutcomeFailed:
			detail = result.Message
		}
		table.AddRow(result.Principal, result.Host, string(result.Outcome), detail)
	}

	if err := printer.Print(table); err != nil {
		return err
	}

	printer.Printf("\nRun %s: %d processed, %d created, %d skipped, %d failed\n",
		report.RunID, report.Total, report.Created, report.Skipped, report.Failed)
	if report.Fatal != "" {
		printer.Error("Fatal: " + report.Fatal)
	}
	return nil
}
