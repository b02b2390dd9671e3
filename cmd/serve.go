package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	mcpserver "github.com/pricehawk/pricehawk-engine/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP stdio server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	svc, _, closeLedger, err := buildServices(cmd.Context())
	if err != nil {
		return err
	}
	defer closeLedger()

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting PriceHawk MCP server on stdio...")

	if err := mcpserver.Serve(svc); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
