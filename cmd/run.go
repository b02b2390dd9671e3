package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pricehawk/pricehawk-engine/internal/extraction"
	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract prices for every tracked competitor",
	Long: `Run one periodic extraction pass over the competitors file.

Competitors already extracted in the current period are skipped. Intended to
be invoked by an external scheduler (cron, a task queue) once per period.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSlice("ids", nil, "Only these competitor IDs")
	runCmd.Flags().String("format", "table", "Output format: json, table")
	rootCmd.AddCommand(runCmd)
}

type runReport struct {
	Summary extraction.Summary        `json:"summary"`
	Results []models.ExtractionResult `json:"results"`
}

func runRun(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")

	svc, dir, closeLedger, err := buildServices(cmd.Context())
	if err != nil {
		return err
	}
	defer closeLedger()

	ids, _ := cmd.Flags().GetStringSlice("ids")
	if len(ids) == 0 {
		ids = dir.IDs()
	}
	if len(ids) == 0 {
		return fmt.Errorf("no competitors to extract (file: %s)", cfg.CompetitorsFile)
	}

	spin := ui.NewSpinner(cmd.ErrOrStderr())
	spin.Start(fmt.Sprintf("Extracting %d competitors...", len(ids)))
	ctx := platform.WithProgress(cmd.Context(), spin.Update)
	results := svc.Scheduler.ExtractBatch(ctx, ids)
	spin.Stop()

	sum := extraction.Summarize(results)
	if format == "json" {
		return printJSON(cmd.OutOrStdout(), runReport{Summary: sum, Results: results})
	}

	w := cmd.OutOrStdout()
	printExtractionTable(w, results)
	fmt.Fprintf(w, "\n%d competitors: %d succeeded (%d cached), %d failed\n", sum.Total, sum.Succeeded, sum.Cached, sum.Failed)
	return nil
}
