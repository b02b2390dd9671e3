package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/ui"
)

var discoverCmd = &cobra.Command{
	Use:   "discover [store-url]",
	Short: "Detect a store's platform and list its products",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().String("keyword", "", "Only products matching any of these words")
	discoverCmd.Flags().Int("limit", 50, "Maximum products to return (1-250)")
	discoverCmd.Flags().String("format", "json", "Output format: json, table")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}

	storeURL := args[0]
	keyword, _ := cmd.Flags().GetString("keyword")
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")

	spin := ui.NewSpinner(cmd.ErrOrStderr())
	spin.Start(fmt.Sprintf("Discovering products at %s...", storeURL))
	ctx := platform.WithProgress(cmd.Context(), spin.Update)
	res, err := eng.discovery.Discover(ctx, storeURL, keyword, limit)
	spin.Stop()
	if err != nil {
		return err
	}

	switch format {
	case "table":
		printProductsTable(cmd.OutOrStdout(), res)
		return nil
	default:
		return printJSON(cmd.OutOrStdout(), res)
	}
}
