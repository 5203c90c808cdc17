// config.go — CLI flag definitions, environment parsing, and validation.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/agent-chrome-test/agent-chrome-test/internal/bridge"
)

// Environment variables. Flags override them.
const (
	portEnv    = "ACT_PORT"
	originsEnv = "ACT_ALLOWED_ORIGINS"
)

// serverConfig holds the validated startup configuration.
type serverConfig struct {
	port     int
	origins  []string
	stateDir string
}

// parseAndValidateFlags merges flags over environment defaults and handles
// early-exit modes.
func parseAndValidateFlags() *serverConfig {
	port := flag.Int("port", envPort(), "Port to listen on (env ACT_PORT)")
	origins := flag.String("origins", os.Getenv(originsEnv), "Comma-separated allowed navigation origins (env ACT_ALLOWED_ORIGINS)")
	stateDir := flag.String("state-dir", "", "Directory for runtime state (default: <cwd>/.agent-chrome-test)")
	showVersion := flag.Bool("version", false, "Show version")
	showHelp := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *showVersion {
		fmt.Printf("agent-chrome-test v%s\n", version)
		os.Exit(0)
	}
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	validatePort(*port)

	return &serverConfig{
		port:     *port,
		origins:  splitOrigins(*origins),
		stateDir: *stateDir,
	}
}

// envPort reads ACT_PORT, falling back to the default on absence. A
// malformed value is a startup error, not a silent default.
func envPort() int {
	raw := strings.TrimSpace(os.Getenv(portEnv))
	if raw == "" {
		return bridge.DefaultPort
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 {
		fmt.Fprintf(os.Stderr, "[agent-chrome-test] Invalid %s: %q\n", portEnv, raw)
		os.Exit(1)
	}
	return port
}

// validatePort ensures the port is within the valid TCP range.
func validatePort(port int) {
	if port < 1 || port > 65535 {
		fmt.Fprintf(os.Stderr, "[agent-chrome-test] Invalid port: %d (must be 1-65535)\n", port)
		os.Exit(1)
	}
}

// splitOrigins parses the comma-separated origin list.
func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			origins = append(origins, part)
		}
	}
	return origins
}

func printHelp() {
	fmt.Printf(`agent-chrome-test v%s — drive a real browser session from an AI agent

Usage:
  agent-chrome-test [flags]

Run from a terminal to start the bridge and print the extension token.
Run with piped stdin (an MCP host) to expose the tool surface over stdio.

Flags:
  --port       Port to listen on (default %d, env ACT_PORT)
  --origins    Comma-separated allowed navigation origins (env ACT_ALLOWED_ORIGINS)
  --state-dir  Directory for runtime state (default: <cwd>/.agent-chrome-test)
  --version    Show version
  --help       Show this help
`, version, bridge.DefaultPort)
}
