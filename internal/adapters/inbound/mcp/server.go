package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/abdidvp/layerfix/internal/bootstrap"
)

// Version is reported to MCP clients.
var Version = "dev"

// NewServer creates an MCP server with the layerfix tools and resources
// registered on top of app.
func NewServer(app *bootstrap.App) *server.MCPServer {
	s := server.NewMCPServer(
		"layerfix",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	registerTools(s, app)
	registerResources(s, app)

	return s
}
