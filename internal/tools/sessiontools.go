// sessiontools.go — Session control tools: thin forwarders to the
// assertion accumulator.
package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type sessionStartArgs struct {
	Name string `json:"name"`
}

type sessionEndArgs struct{}

func registerSessionTools(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "session_start",
		Description: "Start a named test session; assertions accumulate until session_end",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionStartArgs) (*mcp.CallToolResult, any, error) {
		d.Session.Start(args.Name)
		return jsonResult(map[string]any{"started": true, "name": args.Name}), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "session_end",
		Description: "End the test session and return its assertion summary",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionEndArgs) (*mcp.CallToolResult, any, error) {
		return jsonResult(d.Session.End()), nil, nil
	})
}
