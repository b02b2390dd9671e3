package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	mcpserver "github.com/pricehawk/pricehawk-engine/mcp"
)

var serveHTTPCmd = &cobra.Command{
	Use:   "serve-http",
	Short: "Start MCP HTTP server",
	Long:  "Start the MCP server over HTTP for remote access, with optional Bearer token auth (PRICEHAWK_API_KEY).",
	RunE:  runServeHTTP,
}

func init() {
	serveHTTPCmd.Flags().String("port", "", "HTTP port (default from $PORT or 8080)")
	rootCmd.AddCommand(serveHTTPCmd)
}

func runServeHTTP(cmd *cobra.Command, args []string) error {
	svc, _, closeLedger, err := buildServices(cmd.Context())
	if err != nil {
		return err
	}
	defer closeLedger()

	port := cfg.HTTPPort
	if p, _ := cmd.Flags().GetString("port"); p != "" {
		port = p
	}

	addr := fmt.Sprintf(":%s", port)
	return mcpserver.ServeHTTP(cmd.Context(), addr, cfg.APIKey, svc, log)
}
