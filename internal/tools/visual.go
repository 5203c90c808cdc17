// visual.go — Visual regression tools.
// visual_compare screenshots the tab and compares it against a stored
// baseline; the first run saves the baseline instead. visual_update
// overwrites the baseline unconditionally.
package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agent-chrome-test/agent-chrome-test/internal/bridge"
	"github.com/agent-chrome-test/agent-chrome-test/internal/visual"
)

// Threshold is a pointer so an omitted value selects the documented 0.1
// default while an explicit 0 stays an exact per-pixel match.
type visualCompareArgs struct {
	Name      string   `json:"name"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type visualUpdateArgs struct {
	Name string `json:"name"`
}

// visualCompareResult reports one comparison.
type visualCompareResult struct {
	Name string `json:"name"`
	visual.Result
	DiffPath string `json:"diffPath,omitempty"`
}

// firstRunResult is returned when no baseline existed yet.
type firstRunResult struct {
	Name          string `json:"name"`
	FirstRun      bool   `json:"firstRun"`
	BaselineSaved bool   `json:"baselineSaved"`
	BaselinePath  string `json:"baselinePath"`
}

// screenshotPNG captures the tab and decodes the base64 payload.
func screenshotPNG(ctx context.Context, d *Deps) ([]byte, error) {
	data, err := d.Bridge.SendCommand(ctx, bridge.CmdScreenshot, nil, nil, commandTimeout)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("malformed screenshot response: %w", err)
	}
	png, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, fmt.Errorf("screenshot payload is not base64: %w", err)
	}
	return png, nil
}

func registerVisualTools(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "visual_compare",
		Description: "Screenshot the tab and compare against the named baseline; saves the baseline on first run",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args visualCompareArgs) (*mcp.CallToolResult, any, error) {
		return visualCompare(ctx, d, args), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "visual_update",
		Description: "Screenshot the tab and overwrite the named baseline",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args visualUpdateArgs) (*mcp.CallToolResult, any, error) {
		return visualUpdate(ctx, d, args), nil, nil
	})
}

func visualCompare(ctx context.Context, d *Deps, args visualCompareArgs) *mcp.CallToolResult {
	actual, err := screenshotPNG(ctx, d)
	if err != nil {
		return errorResult(err)
	}

	if !d.Store.Exists(args.Name) {
		// First run establishes the baseline; no assertion is recorded.
		path, err := d.Store.Save(args.Name, actual)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(firstRunResult{
			Name: args.Name, FirstRun: true, BaselineSaved: true, BaselinePath: path,
		})
	}

	expected, err := d.Store.Load(args.Name)
	if err != nil {
		return errorResult(err)
	}

	threshold := visual.DefaultThreshold
	if args.Threshold != nil {
		threshold = *args.Threshold
	}
	result, err := visual.Compare(actual, expected, threshold)
	if err != nil {
		return errorResult(err)
	}

	out := visualCompareResult{Name: args.Name, Result: result}
	if !result.Match {
		// On dimension mismatch there is no diff image; persist the
		// offending screenshot instead so the mismatch is inspectable.
		diffPNG := actual
		if result.DiffImageBase64 != "" {
			if decoded, err := visual.DecodeDiff(result.DiffImageBase64); err == nil {
				diffPNG = decoded
			}
		}
		if path, err := d.Store.SaveDiff(args.Name, diffPNG); err == nil {
			out.DiffPath = path
		}
	}

	d.Session.AddAssertion(result.Match, fmt.Sprintf("visual match for %q", args.Name))
	return jsonResult(out)
}

func visualUpdate(ctx context.Context, d *Deps, args visualUpdateArgs) *mcp.CallToolResult {
	actual, err := screenshotPNG(ctx, d)
	if err != nil {
		return errorResult(err)
	}
	path, err := d.Store.Save(args.Name, actual)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{
		"name": args.Name, "updated": true, "baselinePath": path,
	})
}
