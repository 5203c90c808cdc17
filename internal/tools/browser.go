// browser.go — Pass-through browser tools.
// Each tool maps one-to-one onto a bridge command; the response data is
// returned to the agent unmodified.
package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agent-chrome-test/agent-chrome-test/internal/bridge"
)

type navigateArgs struct {
	URL   string `json:"url"`
	TabID *int   `json:"tabId,omitempty"`
}

type tabArgs struct {
	TabID *int `json:"tabId,omitempty"`
}

type evaluateArgs struct {
	Code  string `json:"code"`
	TabID *int   `json:"tabId,omitempty"`
}

type selectorArgs struct {
	Selector string `json:"selector"`
	TabID    *int   `json:"tabId,omitempty"`
}

type optionalSelectorArgs struct {
	Selector string `json:"selector,omitempty"`
	TabID    *int   `json:"tabId,omitempty"`
}

type typeArgs struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Clear    bool   `json:"clear,omitempty"`
	TabID    *int   `json:"tabId,omitempty"`
}

type selectOptionArgs struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
	TabID    *int   `json:"tabId,omitempty"`
}

type scrollArgs struct {
	Selector string `json:"selector,omitempty"`
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
	TabID    *int   `json:"tabId,omitempty"`
}

type keyArgs struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers,omitempty"`
	TabID     *int     `json:"tabId,omitempty"`
}

type waitArgs struct {
	Selector string `json:"selector,omitempty"`
	Ms       int    `json:"ms,omitempty"`
	TabID    *int   `json:"tabId,omitempty"`
}

type captureStartArgs struct {
	URLFilter string `json:"urlFilter,omitempty"`
	TabID     *int   `json:"tabId,omitempty"`
}

// forward dispatches one command and shapes the response for the agent.
func forward(ctx context.Context, d *Deps, command string, params map[string]any, tabID *int) *mcp.CallToolResult {
	data, err := d.Bridge.SendCommand(ctx, command, params, tabID, commandTimeout)
	if err != nil {
		return errorResult(err)
	}
	return rawResult(data)
}

func registerBrowserTools(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_navigate",
		Description: "Navigate the browser tab to a URL (must be within the allowed origins)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args navigateArgs) (*mcp.CallToolResult, any, error) {
		return forward(ctx, d, bridge.CmdNavigate, map[string]any{"url": args.URL}, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_screenshot",
		Description: "Capture a PNG screenshot of the visible tab",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args tabArgs) (*mcp.CallToolResult, any, error) {
		return forward(ctx, d, bridge.CmdScreenshot, nil, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_evaluate",
		Description: "Evaluate a JavaScript expression in the page and return its result",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args evaluateArgs) (*mcp.CallToolResult, any, error) {
		return forward(ctx, d, bridge.CmdEvaluate, map[string]any{"code": args.Code}, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_url",
		Description: "Return the current page URL",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args tabArgs) (*mcp.CallToolResult, any, error) {
		return forward(ctx, d, bridge.CmdURL, nil, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_title",
		Description: "Return the current page title",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args tabArgs) (*mcp.CallToolResult, any, error) {
		return forward(ctx, d, bridge.CmdTitle, nil, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_click",
		Description: "Click the first element matching a CSS selector",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args selectorArgs) (*mcp.CallToolResult, any, error) {
		return forward(ctx, d, bridge.CmdClick, map[string]any{"selector": args.Selector}, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_type",
		Description: "Type text into the element matching a CSS selector",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args typeArgs) (*mcp.CallToolResult, any, error) {
		params := map[string]any{"selector": args.Selector, "text": args.Text}
		if args.Clear {
			params["clear"] = true
		}
		return forward(ctx, d, bridge.CmdType, params, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_select",
		Description: "Select an option by value in a <select> element",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args selectOptionArgs) (*mcp.CallToolResult, any, error) {
		return forward(ctx, d, bridge.CmdSelect, map[string]any{"selector": args.Selector, "value": args.Value}, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_hover",
		Description: "Hover over the element matching a CSS selector",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args selectorArgs) (*mcp.CallToolResult, any, error) {
		return forward(ctx, d, bridge.CmdHover, map[string]any{"selector": args.Selector}, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_scroll",
		Description: "Scroll an element into view, or scroll the window by pixel offsets",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args scrollArgs) (*mcp.CallToolResult, any, error) {
		params := map[string]any{}
		if args.Selector != "" {
			params["selector"] = args.Selector
		} else {
			params["x"] = args.X
			params["y"] = args.Y
		}
		return forward(ctx, d, bridge.CmdScroll, params, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_key",
		Description: "Send a keyboard key (with optional modifiers) to the focused element",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args keyArgs) (*mcp.CallToolResult, any, error) {
		params := map[string]any{"key": args.Key}
		if len(args.Modifiers) > 0 {
			params["modifiers"] = args.Modifiers
		}
		return forward(ctx, d, bridge.CmdKey, params, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_wait",
		Description: "Wait for a selector to appear, or sleep for a fixed duration",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args waitArgs) (*mcp.CallToolResult, any, error) {
		params := map[string]any{}
		if args.Selector != "" {
			params["selector"] = args.Selector
		}
		if args.Ms > 0 {
			params["ms"] = args.Ms
		}
		return forward(ctx, d, bridge.CmdWait, params, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_query",
		Description: "Query the first element matching a CSS selector and report its state",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args selectorArgs) (*mcp.CallToolResult, any, error) {
		return forward(ctx, d, bridge.CmdQuery, map[string]any{"selector": args.Selector}, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_query_all",
		Description: "Count and summarize all elements matching a CSS selector",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args selectorArgs) (*mcp.CallToolResult, any, error) {
		return forward(ctx, d, bridge.CmdQueryAll, map[string]any{"selector": args.Selector}, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_text",
		Description: "Return the text content of the element matching a CSS selector",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args selectorArgs) (*mcp.CallToolResult, any, error) {
		return forward(ctx, d, bridge.CmdText, map[string]any{"selector": args.Selector}, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser_html",
		Description: "Return the HTML of the element matching a CSS selector, or of the page",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args optionalSelectorArgs) (*mcp.CallToolResult, any, error) {
		params := map[string]any{}
		if args.Selector != "" {
			params["selector"] = args.Selector
		}
		return forward(ctx, d, bridge.CmdHTML, params, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "network_capture_start",
		Description: "Start capturing network request metadata (never bodies)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args captureStartArgs) (*mcp.CallToolResult, any, error) {
		params := map[string]any{}
		if args.URLFilter != "" {
			params["urlFilter"] = args.URLFilter
		}
		return forward(ctx, d, bridge.CmdNetworkCaptureStart, params, args.TabID), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "network_capture_stop",
		Description: "Stop the network capture and return the captured request list",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args tabArgs) (*mcp.CallToolResult, any, error) {
		return forward(ctx, d, bridge.CmdNetworkCaptureStop, nil, args.TabID), nil, nil
	})
}
