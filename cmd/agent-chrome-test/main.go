// main.go — Process entry: wires the bridge, state directory, and tool
// surface, then runs in one of two modes. A terminal stdin means a human
// started us: print the connection banner and wait for a signal. Piped
// stdin means an MCP host launched us: serve the tool surface over stdio
// and keep stdout clean for the protocol.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agent-chrome-test/agent-chrome-test/internal/audit"
	"github.com/agent-chrome-test/agent-chrome-test/internal/baseline"
	"github.com/agent-chrome-test/agent-chrome-test/internal/bridge"
	"github.com/agent-chrome-test/agent-chrome-test/internal/security"
	"github.com/agent-chrome-test/agent-chrome-test/internal/session"
	"github.com/agent-chrome-test/agent-chrome-test/internal/state"
	"github.com/agent-chrome-test/agent-chrome-test/internal/tools"
)

const version = "1.2.0"

func main() {
	cfg := parseAndValidateFlags()

	paths, err := state.Resolve(cfg.stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[agent-chrome-test] %v\n", err)
		os.Exit(1)
	}

	auditLog, err := audit.NewLogger(paths.AuditLogFile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[agent-chrome-test] %v\n", err)
		os.Exit(1)
	}

	allowlist := security.NewAllowlist(cfg.origins)

	b, err := bridge.New(bridge.Config{Port: cfg.port}, allowlist, auditLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[agent-chrome-test] %v\n", err)
		os.Exit(1)
	}
	if err := b.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "[agent-chrome-test] %v\n", err)
		os.Exit(1)
	}

	if isatty.IsTerminal(os.Stdin.Fd()) {
		runInteractive(b, auditLog)
		return
	}
	runPiped(b, paths)
}

// runInteractive prints the connection banner and blocks until a
// termination signal arrives.
func runInteractive(b *bridge.Bridge, auditLog *audit.Logger) {
	b.OnConnect(func() {
		fmt.Println("[agent-chrome-test] Extension connected")
	})
	b.OnDisconnect(func() {
		fmt.Println("[agent-chrome-test] Extension disconnected")
	})

	fmt.Println()
	fmt.Printf("  agent-chrome-test v%s\n", version)
	fmt.Println("  Browser bridge for AI-driven testing")
	fmt.Println()
	fmt.Printf("  Socket:  %s\n", b.URL())
	fmt.Printf("  Token:   %s\n", b.Token())
	fmt.Printf("  Audit:   %s\n", auditLog.Path())
	fmt.Println()
	fmt.Println("  Paste the token into the extension options page.")
	fmt.Println("  Ready. Press Ctrl+C to stop.")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	b.Stop()
}

// runPiped serves the MCP tool surface over stdio. All status output goes
// to stderr; stdout carries only protocol frames.
func runPiped(b *bridge.Bridge, paths *state.Paths) {
	b.OnConnect(func() {
		fmt.Fprintln(os.Stderr, "[agent-chrome-test] Extension connected")
	})
	b.OnDisconnect(func() {
		fmt.Fprintln(os.Stderr, "[agent-chrome-test] Extension disconnected")
	})

	deps := &tools.Deps{
		Bridge:  b,
		Session: session.New(),
		Store:   baseline.NewStore(paths.BaselinesDir()),
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "agent-chrome-test",
		Version: version,
	}, nil)
	tools.Register(server, deps)

	fmt.Fprintf(os.Stderr, "[agent-chrome-test] Bridge on %s, token %s\n", b.URL(), b.Token())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "[agent-chrome-test] MCP server error: %v\n", err)
	}

	b.Stop()
}
