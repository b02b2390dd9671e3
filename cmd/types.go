package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pricehawk/pricehawk-engine/internal/discovery"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/ui"
)

var typesCmd = &cobra.Command{
	Use:   "types [store-url]",
	Short: "Show the product types a store sells",
	Args:  cobra.ExactArgs(1),
	RunE:  runTypes,
}

func init() {
	typesCmd.Flags().String("keyword", "", "Only count products matching any of these words")
	typesCmd.Flags().Int("limit", platform.MaxLimit, "Number of products to sample (1-250)")
	typesCmd.Flags().String("format", "table", "Output format: json, table")
	rootCmd.AddCommand(typesCmd)
}

func runTypes(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}

	storeURL := args[0]
	keyword, _ := cmd.Flags().GetString("keyword")
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")

	spin := ui.NewSpinner(cmd.ErrOrStderr())
	spin.Start(fmt.Sprintf("Sampling products at %s...", storeURL))
	ctx := platform.WithProgress(cmd.Context(), spin.Update)
	res, err := eng.discovery.Discover(ctx, storeURL, keyword, limit)
	spin.Stop()
	if err != nil {
		return err
	}
	if res.Error != "" {
		return fmt.Errorf("%s", res.Error)
	}

	types := discovery.ProductTypes(res.Products)
	if format == "json" {
		return printJSON(cmd.OutOrStdout(), types)
	}

	w := cmd.OutOrStdout()
	if len(types) == 0 {
		fmt.Fprintln(w, "No products found.")
		return nil
	}
	fmt.Fprintf(w, "Product types at %s (%s, %d products sampled):\n\n", res.StoreURL, res.Platform, res.TotalFound)
	for i, t := range types {
		fmt.Fprintf(w, " %2d. %-50s  (%d products)\n", i+1, truncate(t.Type, 50), t.Count)
	}
	return nil
}
