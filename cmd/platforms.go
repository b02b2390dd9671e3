package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List supported platforms in detection order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		for i, p := range eng.detector.List() {
			fmt.Fprintf(cmd.OutOrStdout(), " %d. %s\n", i+1, p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(platformsCmd)
}
