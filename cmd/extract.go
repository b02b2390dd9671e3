package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/ui"
)

var extractCmd = &cobra.Command{
	Use:   "extract [product-url]",
	Short: "Extract the current price of one product",
	Long: `Extract the current price of a product page.

With --competitor the URL comes from the competitors file and the run is
idempotent: a success already recorded in the current period is returned
without any network work.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().String("competitor", "", "Tracked competitor ID instead of a URL")
	extractCmd.Flags().String("format", "json", "Output format: json, table")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	competitorID, _ := cmd.Flags().GetString("competitor")
	format, _ := cmd.Flags().GetString("format")
	if (competitorID == "") == (len(args) == 0) {
		return fmt.Errorf("pass either a product URL or --competitor")
	}

	svc, _, closeLedger, err := buildServices(cmd.Context())
	if err != nil {
		return err
	}
	defer closeLedger()

	spin := ui.NewSpinner(cmd.ErrOrStderr())
	var res models.ExtractionResult
	if competitorID != "" {
		spin.Start(fmt.Sprintf("Extracting price for %s...", competitorID))
		res, err = svc.Scheduler.ExtractOne(cmd.Context(), competitorID)
	} else {
		spin.Start(fmt.Sprintf("Extracting price from %s...", args[0]))
		res, err = svc.Scheduler.ExtractOnce(cmd.Context(), args[0])
	}
	spin.Stop()
	if err != nil {
		return err
	}

	if format == "table" {
		printExtractionTable(cmd.OutOrStdout(), []models.ExtractionResult{res})
		return nil
	}
	return printJSON(cmd.OutOrStdout(), res)
}
