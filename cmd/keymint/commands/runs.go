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
	"github.com/keymint/keymint/pkg/config"
	"github.com/keymint/keymint/pkg/journal"
)

var (
	runsOutputFormat string
	runsListLimit    int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run journal",
	Long: `Inspect past materialization runs.

Every batch run is journaled with its summary counts and the outcome of
each identity it processed, in processing order.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and its per-identity outcomes",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsCmd.PersistentFlags().StringVarP(&runsOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	runsListCmd.Flags().IntVarP(&runsListLimit, "limit", "n", 20, "Maximum number of runs to list")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(runsOutputFormat)
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

	jnl, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = jnl.Close() }()

	runs, err := jnl.ListRuns(context.Background(), runsListLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	printer := output.NewPrinter(os.Stdout, format, true)
	if format != output.FormatTable {
		return printer.Print(runs)
	}

	if len(runs) == 0 {
		printer.Println("No runs journaled")
		return nil
	}

	table := output.NewTableData("RUN ID", "STARTED", "DURATION", "TOTAL", "CREATED", "SKIPPED", "FAILED", "STATUS")
	for i := range runs {
		run := &runs[i]
		table.AddRow(
			run.ID,
			run.StartedAt.Format(time.RFC3339),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String(),
			strconv.Itoa(run.Total),
			strconv.Itoa(run.Created),
			strconv.Itoa(run.Skipped),
			strconv.Itoa(run.Failed),
			runStatus(run),
		)
	}
	return output.PrintTable(os.Stdout, table)
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	runID := args[0]

	format, err := output.ParseFormat(runsOutputFormat)
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

	jnl, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = jnl.Close() }()

	ctx := context.Background()

	run, err := jnl.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, journal.ErrRunNotFound) {
			return fmt.Errorf("run %q is not journaled", runID)
		}
		return fmt.Errorf("failed to read run: %w", err)
	}

	results, err := jnl.ListResults(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to read run results: %w", err)
	}

	printer := output.NewPrinter(os.Stdout, format, true)
	if format != output.FormatTable {
		return printer.Print(struct {
			Run     *journal.Run        `json:"run" yaml:"run"`
			Results []journal.RunResult `json:"results" yaml:"results"`
		}{run, results})
	}

	pairs := [][2]string{
		{"Run ID", run.ID},
		{"Started", run.StartedAt.Format(time.RFC3339)},
		{"Finished", run.FinishedAt.Format(time.RFC3339)},
		{"Total", strconv.Itoa(run.Total)},
		{"Created", strconv.Itoa(run.Created)},
		{"Skipped", strconv.Itoa(run.Skipped)},
		{"Failed", strconv.Itoa(run.Failed)},
		{"Status", runStatus(run)},
	}
	if run.Message != "" {
		pairs = append(pairs, [2]string{"Last failure", run.Message})
	}
	if run.Fatal != "" {
		pairs = append(pairs, [2]string{"Fatal", run.Fatal})
	}
	if err := output.SimpleTable(os.Stdout, pairs); err != nil {
		return err
	}

	if len(results) > 0 {
		printer.Println()
		table := output.NewTableData("#", "PRINCIPAL", "HOST", "OUTCOME", "DETAIL")
		for _, r := range results {
			detail := r.DestinationFile
			if r.Message != "" {
				detail = r.Message
			} else if r.Reason != "" {
				detail = r.Reason
			}
			table.AddRow(strconv.Itoa(r.Seq), r.Principal, valueOrDash(r.Host), r.Outcome, valueOrDash(detail))
		}
		return output.PrintTable(os.Stdout, table)
	}

	return nil
}

func runStatus(run *journal.Run) string {
	switch {
	case run.Fatal != "":
		return "fatal"
	case run.Failed > 0:
		return "failed"
	default:
		return "ok"
	}
}
