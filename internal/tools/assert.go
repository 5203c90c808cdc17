// assert.go — Assertion tools.
// Each assertion runs one read command, compares the returned field against
// the expectation, records the outcome on the active session, and returns a
// structured result. Assertion tools never fail the MCP call itself: a
// failed expectation is a passed=false payload.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agent-chrome-test/agent-chrome-test/internal/bridge"
)

type assertElementArgs struct {
	Selector string `json:"selector"`
	State    string `json:"state"` // exists | not_exists | visible | hidden
}

type assertTextArgs struct {
	Selector string `json:"selector"`
	Op       string `json:"op"` // contains | equals | matches
	Expected string `json:"expected"`
}

type assertURLArgs struct {
	Op       string `json:"op"` // contains | equals | matches
	Expected string `json:"expected"`
}

type assertCountArgs struct {
	Selector string `json:"selector"`
	Op       string `json:"op"` // equals | greaterThan | lessThan | atLeast | atMost
	Expected int    `json:"expected"`
}

type assertNetworkArgs struct {
	URLContains string `json:"urlContains"`
	Method      string `json:"method,omitempty"`
	Status      int    `json:"status,omitempty"`
}

// assertResult is the common result envelope for assertion tools.
type assertResult struct {
	Passed   bool   `json:"passed"`
	Op       string `json:"op,omitempty"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`
	Selector string `json:"selector,omitempty"`
	Error    string `json:"error,omitempty"`
}

// record adds the outcome to the session and shapes the tool result.
func record(d *Deps, message string, res assertResult) *mcp.CallToolResult {
	d.Session.AddAssertion(res.Passed, message)
	return jsonResult(res)
}

// compareString applies a text/url operator.
func compareString(op, expected, actual string) (bool, error) {
	switch op {
	case "contains":
		return strings.Contains(actual, expected), nil
	case "equals":
		return actual == expected, nil
	case "matches":
		re, err := regexp.Compile(expected)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", expected, err)
		}
		return re.MatchString(actual), nil
	default:
		return false, fmt.Errorf("unknown op %q (want contains, equals, or matches)", op)
	}
}

// compareCount applies a count operator.
func compareCount(op string, expected, actual int) (bool, error) {
	switch op {
	case "equals":
		return actual == expected, nil
	case "greaterThan":
		return actual > expected, nil
	case "lessThan":
		return actual < expected, nil
	case "atLeast":
		return actual >= expected, nil
	case "atMost":
		return actual <= expected, nil
	default:
		return false, fmt.Errorf("unknown op %q (want equals, greaterThan, lessThan, atLeast, or atMost)", op)
	}
}

func registerAssertTools(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "assert_element",
		Description: "Assert an element's presence or visibility and record the outcome on the session",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args assertElementArgs) (*mcp.CallToolResult, any, error) {
		return assertElement(ctx, d, args), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "assert_text",
		Description: "Assert on an element's text content and record the outcome on the session",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args assertTextArgs) (*mcp.CallToolResult, any, error) {
		return assertText(ctx, d, args), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "assert_url",
		Description: "Assert on the current page URL and record the outcome on the session",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args assertURLArgs) (*mcp.CallToolResult, any, error) {
		return assertURL(ctx, d, args), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "assert_count",
		Description: "Assert on the number of elements matching a selector and record the outcome",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args assertCountArgs) (*mcp.CallToolResult, any, error) {
		return assertCount(ctx, d, args), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "assert_network",
		Description: "Stop the network capture and assert that a matching request was made",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args assertNetworkArgs) (*mcp.CallToolResult, any, error) {
		return assertNetwork(ctx, d, args), nil, nil
	})
}

func assertElement(ctx context.Context, d *Deps, args assertElementArgs) *mcp.CallToolResult {
	message := fmt.Sprintf("element %s %s", args.Selector, args.State)

	data, err := d.Bridge.SendCommand(ctx, bridge.CmdQuery, map[string]any{"selector": args.Selector}, nil, commandTimeout)
	if err != nil {
		// A failed read proves absence, which satisfies the negative states.
		passed := args.State == "not_exists" || args.State == "hidden"
		return record(d, message, assertResult{
			Passed:   passed,
			Op:       args.State,
			Selector: args.Selector,
			Error:    err.Error(),
		})
	}

	var q struct {
		Found   bool `json:"found"`
		Visible bool `json:"visible"`
	}
	_ = json.Unmarshal(data, &q)

	var passed bool
	switch args.State {
	case "exists":
		passed = q.Found
	case "not_exists":
		passed = !q.Found
	case "visible":
		passed = q.Found && q.Visible
	case "hidden":
		passed = !q.Found || !q.Visible
	default:
		return record(d, message, assertResult{
			Passed:   false,
			Op:       args.State,
			Selector: args.Selector,
			Error:    fmt.Sprintf("unknown state %q (want exists, not_exists, visible, or hidden)", args.State),
		})
	}

	return record(d, message, assertResult{
		Passed:   passed,
		Op:       args.State,
		Selector: args.Selector,
		Actual:   map[string]bool{"found": q.Found, "visible": q.Visible},
	})
}

func assertText(ctx context.Context, d *Deps, args assertTextArgs) *mcp.CallToolResult {
	message := fmt.Sprintf("text of %s %s %q", args.Selector, args.Op, args.Expected)

	data, err := d.Bridge.SendCommand(ctx, bridge.CmdText, map[string]any{"selector": args.Selector}, nil, commandTimeout)
	if err != nil {
		return record(d, message, assertResult{
			Passed: false, Op: args.Op, Expected: args.Expected,
			Selector: args.Selector, Error: err.Error(),
		})
	}

	var payload struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(data, &payload)

	passed, cmpErr := compareString(args.Op, args.Expected, payload.Text)
	res := assertResult{
		Passed: passed, Op: args.Op, Expected: args.Expected,
		Actual: truncate(payload.Text), Selector: args.Selector,
	}
	if cmpErr != nil {
		res.Passed = false
		res.Error = cmpErr.Error()
	}
	return record(d, message, res)
}

func assertURL(ctx context.Context, d *Deps, args assertURLArgs) *mcp.CallToolResult {
	message := fmt.Sprintf("url %s %q", args.Op, args.Expected)

	data, err := d.Bridge.SendCommand(ctx, bridge.CmdURL, nil, nil, commandTimeout)
	if err != nil {
		return record(d, message, assertResult{
			Passed: false, Op: args.Op, Expected: args.Expected, Error: err.Error(),
		})
	}

	var payload struct {
		URL string `json:"url"`
	}
	_ = json.Unmarshal(data, &payload)

	passed, cmpErr := compareString(args.Op, args.Expected, payload.URL)
	res := assertResult{
		Passed: passed, Op: args.Op, Expected: args.Expected,
		Actual: truncate(payload.URL),
	}
	if cmpErr != nil {
		res.Passed = false
		res.Error = cmpErr.Error()
	}
	return record(d, message, res)
}

func assertCount(ctx context.Context, d *Deps, args assertCountArgs) *mcp.CallToolResult {
	message := fmt.Sprintf("count of %s %s %d", args.Selector, args.Op, args.Expected)

	data, err := d.Bridge.SendCommand(ctx, bridge.CmdQueryAll, map[string]any{"selector": args.Selector}, nil, commandTimeout)
	if err != nil {
		return record(d, message, assertResult{
			Passed: false, Op: args.Op, Expected: args.Expected,
			Selector: args.Selector, Error: err.Error(),
		})
	}

	var payload struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(data, &payload)

	passed, cmpErr := compareCount(args.Op, args.Expected, payload.Count)
	res := assertResult{
		Passed: passed, Op: args.Op, Expected: args.Expected,
		Actual: payload.Count, Selector: args.Selector,
	}
	if cmpErr != nil {
		res.Passed = false
		res.Error = cmpErr.Error()
	}
	return record(d, message, res)
}

// capturedRequest is the per-request metadata shape returned by the peer.
// Bodies are never captured.
type capturedRequest struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Status int    `json:"status"`
}

// networkAssertResult extends the envelope with capture context.
type networkAssertResult struct {
	Passed         bool             `json:"passed"`
	MatchedRequest *capturedRequest `json:"matchedRequest,omitempty"`
	TotalCaptured  int              `json:"totalCaptured"`
	Error          string           `json:"error,omitempty"`
}

func assertNetwork(ctx context.Context, d *Deps, args assertNetworkArgs) *mcp.CallToolResult {
	message := fmt.Sprintf("network request matching %q", args.URLContains)

	// Stopping the capture is a side effect of asserting.
	data, err := d.Bridge.SendCommand(ctx, bridge.CmdNetworkCaptureStop, nil, nil, commandTimeout)
	if err != nil {
		d.Session.AddAssertion(false, message)
		return jsonResult(networkAssertResult{Passed: false, Error: err.Error()})
	}

	var payload struct {
		Requests []capturedRequest `json:"requests"`
	}
	_ = json.Unmarshal(data, &payload)

	var matched *capturedRequest
	for i := range payload.Requests {
		r := payload.Requests[i]
		if !strings.Contains(r.URL, args.URLContains) {
			continue
		}
		if args.Method != "" && !strings.EqualFold(r.Method, args.Method) {
			continue
		}
		if args.Status != 0 && r.Status != args.Status {
			continue
		}
		matched = &r
		break
	}

	d.Session.AddAssertion(matched != nil, message)
	return jsonResult(networkAssertResult{
		Passed:         matched != nil,
		MatchedRequest: matched,
		TotalCaptured:  len(payload.Requests),
	})
}
