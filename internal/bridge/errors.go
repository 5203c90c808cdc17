// errors.go — Error kinds surfaced by command dispatch.
// Callers classify with errors.Is; the tool surface converts each kind into
// a failure payload for the agent.
package bridge

import "errors"

var (
	// ErrNotConnected — no authenticated peer is attached.
	ErrNotConnected = errors.New("no browser extension connected")

	// ErrTimeout — the peer did not respond within the caller's timeout.
	ErrTimeout = errors.New("command timed out")

	// ErrPeerDisconnected — the peer dropped while the request was in flight.
	ErrPeerDisconnected = errors.New("extension disconnected")

	// ErrShuttingDown — the bridge is stopping.
	ErrShuttingDown = errors.New("bridge shutting down")

	// ErrNotAllowed — a navigate target is outside the origin allowlist.
	ErrNotAllowed = errors.New("navigation target not in allowed origins")

	// ErrPeer wraps a failure reported by the peer in its response frame.
	ErrPeer = errors.New("extension reported error")
)
