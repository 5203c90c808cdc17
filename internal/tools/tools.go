// tools.go — Agent-facing tool surface.
// Registers every tool on an MCP server: pass-through browser operations
// that map one-to-one onto bridge commands, and composed testing tools
// (assertions, visual comparison, session control). Every result is a
// single text content block carrying a JSON object, and no handler ever
// returns a protocol-level error: pass-through and visual tool failures
// become {"error": ...} payloads with the isError flag set, while assertion
// tools report failures as recorded passed/failed payloads.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agent-chrome-test/agent-chrome-test/internal/baseline"
	"github.com/agent-chrome-test/agent-chrome-test/internal/session"
)

// maxActualLen bounds actual values echoed back in assertion results.
const maxActualLen = 200

// commandTimeout is the per-command dispatch timeout for tool calls.
const commandTimeout = 30 * time.Second

// commander dispatches one command to the browser peer. Satisfied by
// *bridge.Bridge; tests substitute a fake.
type commander interface {
	SendCommand(ctx context.Context, name string, params map[string]any, tabID *int, timeout time.Duration) (json.RawMessage, error)
}

// Deps are the long-lived process resources the tool surface composes.
type Deps struct {
	Bridge  commander
	Session *session.Session
	Store   *baseline.Store
}

// Register adds the full tool catalogue to the MCP server.
func Register(server *mcp.Server, d *Deps) {
	registerBrowserTools(server, d)
	registerAssertTools(server, d)
	registerVisualTools(server, d)
	registerSessionTools(server, d)
}

// jsonResult wraps v as a single JSON text block.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// rawResult wraps already-encoded JSON as a single text block. Empty data
// becomes an empty object so agents always get a parseable payload.
func rawResult(data json.RawMessage) *mcp.CallToolResult {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// errorResult converts any failure into an isError text payload. Handlers
// never propagate errors past the agent boundary.
func errorResult(err error) *mcp.CallToolResult {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		IsError: true,
	}
}

// truncate bounds s for echoing back to the agent.
func truncate(s string) string {
	if len(s) <= maxActualLen {
		return s
	}
	return s[:maxActualLen] + "..."
}
