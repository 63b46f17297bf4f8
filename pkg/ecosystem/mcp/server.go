package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with remedy tools registered. The
// tools are read-only: they inspect catalogs and snapshot documents but
// never drive a live session.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"remedy",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("remedy/validate_catalog",
			mcp.WithDescription("Check a step catalog YAML file for unknown requirements, cycles and bad rule expressions"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the catalog YAML file")),
		),
		HandleValidateCatalog,
	)

	s.AddTool(
		mcp.NewTool("remedy/schema",
			mcp.WithDescription("Export the JSON Schema of workflow snapshot documents"),
		),
		HandleSchema,
	)

	s.AddTool(
		mcp.NewTool("remedy/import_check",
			mcp.WithDescription("Check whether a snapshot document would import, and list its problems if not"),
			mcp.WithString("document", mcp.Description("Snapshot JSON text")),
			mcp.WithString("path", mcp.Description("Path to a snapshot JSON file (used when document is empty)")),
		),
		HandleImportCheck,
	)

	s.AddTool(
		mcp.NewTool("remedy/analytics",
			mcp.WithDescription("Compute progress and step counts for a snapshot document"),
			mcp.WithString("document", mcp.Description("Snapshot JSON text")),
			mcp.WithString("path", mcp.Description("Path to a snapshot JSON file (used when document is empty)")),
		),
		HandleAnalytics,
	)

	s.AddTool(
		mcp.NewTool("remedy/next_step",
			mcp.WithDescription("Report the step in focus and the next pending step of a snapshot document"),
			mcp.WithString("document", mcp.Description("Snapshot JSON text")),
			mcp.WithString("path", mcp.Description("Path to a snapshot JSON file (used when document is empty)")),
		),
		HandleNextStep,
	)

	s.AddTool(
		mcp.NewTool("remedy/diagram",
			mcp.WithDescription("Draw the step requirements of a snapshot document"),
			mcp.WithString("document", mcp.Description("Snapshot JSON text")),
			mcp.WithString("path", mcp.Description("Path to a snapshot JSON file (used when document is empty)")),
			mcp.WithString("format", mcp.Description("Diagram format: ascii (default) or mermaid")),
		),
		HandleDiagram,
	)

	s.AddTool(
		mcp.NewTool("remedy/compile_guide",
			mcp.WithDescription("Turn a Markdown troubleshooting guide into a step catalog YAML; level-2 headings become steps"),
			mcp.WithString("markdown", mcp.Description("Guide Markdown text")),
			mcp.WithString("path", mcp.Description("Path to a Markdown guide (used when markdown is empty)")),
		),
		HandleCompileGuide,
	)

	return s
}
