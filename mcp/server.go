package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/pricehawk/pricehawk-engine/internal/discovery"
	"github.com/pricehawk/pricehawk-engine/internal/extraction"
	"github.com/pricehawk/pricehawk-engine/internal/ledger"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
)

const (
	serverName    = "pricehawk"
	serverVersion = "1.0.0"
)

// Services are the core entry points the tools call into.
type Services struct {
	Detector  *platform.Detector
	Discovery *discovery.Service
	Scheduler *extraction.Scheduler
	Ledger    ledger.Ledger
}

func newServer(svc *Services) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	registerTools(s, svc)
	return s
}

// Serve starts the MCP stdio server with all tools registered.
func Serve(svc *Services) error {
	return server.ServeStdio(newServer(svc))
}
