// tools_test.go — Tests for the composed tool handlers with a fake bridge.
package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agent-chrome-test/agent-chrome-test/internal/baseline"
	"github.com/agent-chrome-test/agent-chrome-test/internal/session"
)

// fakeBridge answers commands from canned responses.
type fakeBridge struct {
	responses map[string]json.RawMessage
	errs      map[string]error
	calls     []string
}

func (f *fakeBridge) SendCommand(_ context.Context, name string, params map[string]any, _ *int, _ time.Duration) (json.RawMessage, error) {
	f.calls = append(f.calls, name)
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	if data, ok := f.responses[name]; ok {
		return data, nil
	}
	return json.RawMessage("{}"), nil
}

func newDeps(t *testing.T, fb *fakeBridge) *Deps {
	t.Helper()
	return &Deps{
		Bridge:  fb,
		Session: session.New(),
		Store:   baseline.NewStore(t.TempDir()),
	}
}

// resultPayload parses the JSON text block of a tool result.
func resultPayload(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("got %d content blocks, want 1", len(res.Content))
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content block is %T, want TextContent", res.Content[0])
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("result %q not JSON: %v", text.Text, err)
	}
	return payload
}

func solidPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func screenshotResponse(t *testing.T, pngBytes []byte) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]string{
		"data":   base64.StdEncoding.EncodeToString(pngBytes),
		"format": "png",
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestAssertElementStates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		state    string
		response string
		readErr  error
		want     bool
	}{
		{"exists found", "exists", `{"found":true,"visible":true}`, nil, true},
		{"exists missing", "exists", `{"found":false}`, nil, false},
		{"not_exists missing", "not_exists", `{"found":false}`, nil, true},
		{"not_exists found", "not_exists", `{"found":true,"visible":true}`, nil, false},
		{"visible hidden element", "visible", `{"found":true,"visible":false}`, nil, false},
		{"hidden hidden element", "hidden", `{"found":true,"visible":false}`, nil, true},
		{"read failure fails exists", "exists", "", errors.New("no peer"), false},
		{"read failure passes not_exists", "not_exists", "", errors.New("no peer"), true},
		{"read failure passes hidden", "hidden", "", errors.New("no peer"), true},
		{"unknown state fails", "shimmering", `{"found":true}`, nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fb := &fakeBridge{
				responses: map[string]json.RawMessage{"query": json.RawMessage(tc.response)},
			}
			if tc.readErr != nil {
				fb.errs = map[string]error{"query": tc.readErr}
			}
			d := newDeps(t, fb)

			res := assertElement(context.Background(), d, assertElementArgs{Selector: "#x", State: tc.state})
			payload := resultPayload(t, res)
			if payload["passed"] != tc.want {
				t.Errorf("passed = %v, want %v", payload["passed"], tc.want)
			}

			// Exactly one assertion lands on the session either way.
			summary := d.Session.End()
			if summary.Total != 1 {
				t.Errorf("session total = %d, want 1", summary.Total)
			}
		})
	}
}

func TestAssertTextOps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		op       string
		expected string
		actual   string
		want     bool
	}{
		{"contains hit", "contains", "World", "Hello World", true},
		{"contains miss", "contains", "Mars", "Hello World", false},
		{"equals hit", "equals", "Hello", "Hello", true},
		{"equals miss", "equals", "Hello", "Hello World", false},
		{"matches hit", "matches", `^H\w+`, "Hello", true},
		{"matches bad pattern", "matches", `[`, "Hello", false},
		{"unknown op", "almost", "x", "x", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			body, _ := json.Marshal(map[string]string{"text": tc.actual})
			fb := &fakeBridge{responses: map[string]json.RawMessage{"text": body}}
			d := newDeps(t, fb)

			res := assertText(context.Background(), d, assertTextArgs{Selector: "h1", Op: tc.op, Expected: tc.expected})
			payload := resultPayload(t, res)
			if payload["passed"] != tc.want {
				t.Errorf("passed = %v, want %v", payload["passed"], tc.want)
			}
		})
	}
}

func TestAssertTextTruncatesActual(t *testing.T) {
	t.Parallel()

	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'a'
	}
	body, _ := json.Marshal(map[string]string{"text": string(long)})
	fb := &fakeBridge{responses: map[string]json.RawMessage{"text": body}}
	d := newDeps(t, fb)

	res := assertText(context.Background(), d, assertTextArgs{Selector: "p", Op: "contains", Expected: "aaa"})
	payload := resultPayload(t, res)
	actual, _ := payload["actual"].(string)
	if len(actual) != maxActualLen+3 {
		t.Errorf("actual length = %d, want %d", len(actual), maxActualLen+3)
	}
}

func TestAssertURL(t *testing.T) {
	t.Parallel()

	body, _ := json.Marshal(map[string]string{"url": "https://example.com/checkout"})
	fb := &fakeBridge{responses: map[string]json.RawMessage{"url": body}}
	d := newDeps(t, fb)

	res := assertURL(context.Background(), d, assertURLArgs{Op: "contains", Expected: "/checkout"})
	payload := resultPayload(t, res)
	if payload["passed"] != true {
		t.Errorf("payload = %v", payload)
	}
}

func TestAssertCountOps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		op       string
		expected int
		actual   int
		want     bool
	}{
		{"equals", 3, 3, true},
		{"equals", 3, 4, false},
		{"greaterThan", 2, 3, true},
		{"lessThan", 5, 3, true},
		{"atLeast", 3, 3, true},
		{"atMost", 3, 4, false},
	}

	for _, tc := range tests {
		t.Run(tc.op, func(t *testing.T) {
			t.Parallel()
			body, _ := json.Marshal(map[string]int{"count": tc.actual})
			fb := &fakeBridge{responses: map[string]json.RawMessage{"query_all": body}}
			d := newDeps(t, fb)

			res := assertCount(context.Background(), d, assertCountArgs{Selector: ".row", Op: tc.op, Expected: tc.expected})
			payload := resultPayload(t, res)
			if payload["passed"] != tc.want {
				t.Errorf("%s(%d, actual %d): passed = %v, want %v", tc.op, tc.expected, tc.actual, payload["passed"], tc.want)
			}
		})
	}
}

func TestAssertNetwork(t *testing.T) {
	t.Parallel()

	requests := map[string]any{
		"requests": []map[string]any{
			{"url": "https://api.example.com/users", "method": "GET", "status": 200},
			{"url": "https://api.example.com/orders", "method": "POST", "status": 201},
		},
	}
	body, _ := json.Marshal(requests)

	t.Run("match on url and method", func(t *testing.T) {
		t.Parallel()
		fb := &fakeBridge{responses: map[string]json.RawMessage{"network_capture_stop": body}}
		d := newDeps(t, fb)

		res := assertNetwork(context.Background(), d, assertNetworkArgs{URLContains: "/orders", Method: "post"})
		payload := resultPayload(t, res)
		if payload["passed"] != true {
			t.Fatalf("payload = %v", payload)
		}
		matched, _ := payload["matchedRequest"].(map[string]any)
		if matched["url"] != "https://api.example.com/orders" {
			t.Errorf("matched = %v", matched)
		}
		if payload["totalCaptured"] != float64(2) {
			t.Errorf("totalCaptured = %v", payload["totalCaptured"])
		}
		// Asserting stops the capture as a side effect.
		if len(fb.calls) != 1 || fb.calls[0] != "network_capture_stop" {
			t.Errorf("calls = %v", fb.calls)
		}
	})

	t.Run("status mismatch", func(t *testing.T) {
		t.Parallel()
		fb := &fakeBridge{responses: map[string]json.RawMessage{"network_capture_stop": body}}
		d := newDeps(t, fb)

		res := assertNetwork(context.Background(), d, assertNetworkArgs{URLContains: "/orders", Status: 500})
		payload := resultPayload(t, res)
		if payload["passed"] != false {
			t.Errorf("payload = %v", payload)
		}
	})
}

func TestVisualCompareFirstRun(t *testing.T) {
	t.Parallel()

	shot := solidPNG(t, 4, 4, color.RGBA{255, 255, 255, 255})
	fb := &fakeBridge{responses: map[string]json.RawMessage{"screenshot": screenshotResponse(t, shot)}}
	d := newDeps(t, fb)

	res := visualCompare(context.Background(), d, visualCompareArgs{Name: "home"})
	payload := resultPayload(t, res)
	if payload["firstRun"] != true || payload["baselineSaved"] != true {
		t.Fatalf("payload = %v", payload)
	}
	if !d.Store.Exists("home") {
		t.Error("baseline not created")
	}
	// First run records no assertion.
	if summary := d.Session.End(); summary.Total != 0 {
		t.Errorf("session total = %d, want 0", summary.Total)
	}
}

func TestVisualCompareMatch(t *testing.T) {
	t.Parallel()

	shot := solidPNG(t, 4, 4, color.RGBA{255, 255, 255, 255})
	fb := &fakeBridge{responses: map[string]json.RawMessage{"screenshot": screenshotResponse(t, shot)}}
	d := newDeps(t, fb)
	if _, err := d.Store.Save("home", shot); err != nil {
		t.Fatal(err)
	}

	res := visualCompare(context.Background(), d, visualCompareArgs{Name: "home"})
	payload := resultPayload(t, res)
	if payload["match"] != true || payload["diffPixels"] != float64(0) {
		t.Fatalf("payload = %v", payload)
	}

	summary := d.Session.End()
	if summary.Total != 1 || !summary.Passed {
		t.Errorf("summary = %+v", summary)
	}
}

func TestVisualCompareDefaultThreshold(t *testing.T) {
	t.Parallel()

	base := solidPNG(t, 4, 4, color.RGBA{100, 100, 100, 255})
	nudged := solidPNG(t, 4, 4, color.RGBA{110, 100, 100, 255})
	fb := &fakeBridge{responses: map[string]json.RawMessage{"screenshot": screenshotResponse(t, nudged)}}
	d := newDeps(t, fb)
	if _, err := d.Store.Save("home", base); err != nil {
		t.Fatal(err)
	}

	// Omitted threshold selects the 0.1 default, which absorbs a delta
	// of 10 per channel.
	res := visualCompare(context.Background(), d, visualCompareArgs{Name: "home"})
	payload := resultPayload(t, res)
	if payload["match"] != true {
		t.Fatalf("omitted threshold payload = %v, want default-tolerance match", payload)
	}

	// An explicit zero is an exact per-pixel comparison.
	zero := 0.0
	res = visualCompare(context.Background(), d, visualCompareArgs{Name: "home", Threshold: &zero})
	payload = resultPayload(t, res)
	if payload["match"] != false {
		t.Fatalf("explicit zero threshold payload = %v, want mismatch", payload)
	}
}

func TestVisualCompareDimensionMismatchWritesDiff(t *testing.T) {
	t.Parallel()

	white := color.RGBA{255, 255, 255, 255}
	shot := solidPNG(t, 8, 4, white)
	fb := &fakeBridge{responses: map[string]json.RawMessage{"screenshot": screenshotResponse(t, shot)}}
	d := newDeps(t, fb)
	if _, err := d.Store.Save("home", solidPNG(t, 4, 4, white)); err != nil {
		t.Fatal(err)
	}

	res := visualCompare(context.Background(), d, visualCompareArgs{Name: "home"})
	payload := resultPayload(t, res)
	if payload["match"] != false || payload["diffPixels"] != float64(-1) {
		t.Fatalf("payload = %v", payload)
	}
	if payload["diffPercentage"] != float64(100) {
		t.Errorf("diffPercentage = %v", payload["diffPercentage"])
	}
	diffPath, _ := payload["diffPath"].(string)
	if diffPath == "" {
		t.Fatal("no diff file written")
	}

	summary := d.Session.End()
	if summary.Total != 1 || summary.Passed {
		t.Errorf("summary = %+v", summary)
	}
}

func TestVisualUpdateOverwrites(t *testing.T) {
	t.Parallel()

	white := solidPNG(t, 4, 4, color.RGBA{255, 255, 255, 255})
	black := solidPNG(t, 4, 4, color.RGBA{0, 0, 0, 255})
	fb := &fakeBridge{responses: map[string]json.RawMessage{"screenshot": screenshotResponse(t, black)}}
	d := newDeps(t, fb)
	if _, err := d.Store.Save("home", white); err != nil {
		t.Fatal(err)
	}

	res := visualUpdate(context.Background(), d, visualUpdateArgs{Name: "home"})
	payload := resultPayload(t, res)
	if payload["updated"] != true {
		t.Fatalf("payload = %v", payload)
	}

	stored, err := d.Store.Load("home")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(stored, black) {
		t.Error("baseline not overwritten")
	}
	// Updating records no assertion.
	if summary := d.Session.End(); summary.Total != 0 {
		t.Errorf("session total = %d, want 0", summary.Total)
	}
}

func TestVisualCompareBridgeError(t *testing.T) {
	t.Parallel()

	fb := &fakeBridge{errs: map[string]error{"screenshot": errors.New("no peer")}}
	d := newDeps(t, fb)

	res := visualCompare(context.Background(), d, visualCompareArgs{Name: "home"})
	if !res.IsError {
		t.Error("bridge failure not marked as error result")
	}
	payload := resultPayload(t, res)
	if payload["error"] == "" {
		t.Errorf("payload = %v", payload)
	}
}
