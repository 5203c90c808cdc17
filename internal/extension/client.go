// client.go — Bridge peer implementing the extension contract.
// The client dials the loopback socket, authenticates first, executes
// incoming command frames through a caller-supplied handler, and replies
// with correlated response frames. It enforces the navigation allowlist
// received at handshake plus its own loopback seeds, and reconnects with
// bounded exponential backoff.
package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Backoff schedule: 1s doubling, capped at 30s, at most 50 attempts.
// The attempt counter resets on every successful authentication.
const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	maxAttempts    = 50
)

// ErrAuthRejected means the bridge refused our token.
var ErrAuthRejected = errors.New("bridge rejected auth token")

// ErrGaveUp means the reconnect budget is exhausted.
var ErrGaveUp = errors.New("reconnect attempts exhausted")

// Handler executes one command and returns its result payload.
type Handler func(ctx context.Context, command string, params map[string]any, tabID *int) (any, error)

// Config carries client construction parameters.
type Config struct {
	// URL is the bridge endpoint, e.g. ws://127.0.0.1:3695.
	URL string
	// Token is the bridge's auth secret.
	Token string
	// ExtensionID identifies this peer in audit records.
	ExtensionID string
	// Origins are offered to the bridge at handshake and unioned into its
	// allowlist.
	Origins []string
	// Handler executes command frames. Required.
	Handler Handler
	// PingInterval enables keepalive pings when > 0.
	PingInterval time.Duration
}

// wire frame shapes; the client's view of the protocol.
type authFrame struct {
	Type           string   `json:"type"`
	Token          string   `json:"token"`
	ExtensionID    string   `json:"extensionId,omitempty"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

type inFrame struct {
	Type           string          `json:"type"`
	Success        bool            `json:"success"`
	Error          string          `json:"error,omitempty"`
	AllowedOrigins []string        `json:"allowedOrigins,omitempty"`
	ID             string          `json:"id,omitempty"`
	Command        string          `json:"command,omitempty"`
	Params         map[string]any  `json:"params,omitempty"`
	TabID          *int            `json:"tabId,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

type responseFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type pingFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Command string `json:"command"`
}

// Client is one bridge peer.
type Client struct {
	cfg Config

	mu        sync.Mutex
	conn      *websocket.Conn
	writeMu   sync.Mutex
	allowed   []string
	connected bool
	closed    bool
	pingSeq   int
}

// New constructs a client; no connection is attempted until Run or Dial.
func New(cfg Config) (*Client, error) {
	if cfg.Handler == nil {
		return nil, errors.New("extension client requires a handler")
	}
	return &Client{cfg: cfg}, nil
}

// Connected reports whether an authenticated connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// AllowedOrigins returns the navigation allowlist in effect: the set
// received at handshake.
func (c *Client) AllowedOrigins() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.allowed))
	copy(out, c.allowed)
	return out
}

// Close tears down the connection and stops any reconnect loop.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Run connects and serves commands until ctx is done or the reconnect
// budget is exhausted. On auth rejection the connection is dropped and
// retried per backoff, as the peer contract requires.
func (c *Client) Run(ctx context.Context) error {
	backoff := initialBackoff
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil
		}

		err := c.connectAndServe(ctx)
		if err == nil {
			// Clean shutdown requested.
			return nil
		}
		// A session that authenticated successfully resets the budget.
		if errors.Is(err, errSessionEnded) {
			backoff = initialBackoff
			attempts = 0
		}

		attempts++
		if attempts >= maxAttempts {
			return fmt.Errorf("%w after %d attempts", ErrGaveUp, attempts)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

// nextBackoff doubles the delay up to the cap.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// errSessionEnded marks a connection that was authenticated and later lost;
// it distinguishes "retry from a clean slate" from repeated failures.
var errSessionEnded = errors.New("authenticated session ended")

// Dial performs a single connect + auth without the reconnect loop and
// starts serving commands in the background. Useful for tests and for
// callers managing their own retry policy.
func (c *Client) Dial(ctx context.Context) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	go c.serve(ctx, conn)
	return nil
}

// connect dials and authenticates one connection.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot dial bridge: %w", err)
	}

	auth := authFrame{
		Type:           "auth",
		Token:          c.cfg.Token,
		ExtensionID:    c.cfg.ExtensionID,
		AllowedOrigins: c.cfg.Origins,
	}
	if err := conn.WriteJSON(auth); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("cannot send auth frame: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var result inFrame
	if err := conn.ReadJSON(&result); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("no auth_result: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if result.Type != "auth_result" || !result.Success {
		// Contract: on failure send nothing further and reconnect.
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrAuthRejected, result.Error)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.allowed = append([]string(nil), result.AllowedOrigins...)
	c.mu.Unlock()

	return conn, nil
}

// connectAndServe runs one full session. Returns nil only when ctx or
// Close asked for shutdown.
func (c *Client) connectAndServe(ctx context.Context) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}

	c.serve(ctx, conn)

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || ctx.Err() != nil {
		return nil
	}
	return errSessionEnded
}

// serve reads command frames until the connection drops.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.connected = false
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()

	stopPing := make(chan struct{})
	defer close(stopPing)
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(conn, stopPing)
	}

	for {
		var frame inFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Type != "command" || frame.Command == "" {
			continue
		}
		if frame.Command == "ping" {
			// A keepalive ping carries no work for the handler. The
			// bridge's pong replies are response frames, skipped above.
			continue
		}
		go c.execute(ctx, conn, frame)
	}
}

// execute runs one command through the handler and writes the correlated
// response.
func (c *Client) execute(ctx context.Context, conn *websocket.Conn, frame inFrame) {
	if frame.Command == "navigate" {
		rawURL, _ := frame.Params["url"].(string)
		if !c.navigationAllowed(rawURL) {
			c.writeResponse(conn, responseFrame{
				Type: "response", ID: frame.ID, Success: false,
				Error: fmt.Sprintf("navigation to %q not allowed", rawURL),
			})
			return
		}
	}

	data, err := c.cfg.Handler(ctx, frame.Command, frame.Params, frame.TabID)
	if err != nil {
		c.writeResponse(conn, responseFrame{
			Type: "response", ID: frame.ID, Success: false, Error: err.Error(),
		})
		return
	}
	c.writeResponse(conn, responseFrame{
		Type: "response", ID: frame.ID, Success: true, Data: data,
	})
}

// navigationAllowed mirrors the bridge-side check: handshake origins plus
// loopback seeds.
func (c *Client) navigationAllowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme == "file" {
		return true
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	c.mu.Lock()
	allowed := c.allowed
	c.mu.Unlock()
	for _, entry := range allowed {
		spec := entry
		if !strings.Contains(spec, "://") {
			spec = "https://" + spec
		}
		eu, err := url.Parse(spec)
		if err != nil || eu.Hostname() == "" {
			continue
		}
		if host == eu.Hostname() || strings.HasSuffix(host, "."+eu.Hostname()) {
			return true
		}
	}
	return false
}

// pingLoop sends keepalive pings until stopped.
func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.pingSeq++
			id := fmt.Sprintf("ping-%d", c.pingSeq)
			c.mu.Unlock()
			c.writeResponse(conn, pingFrame{Type: "command", ID: id, Command: "ping"})
		}
	}
}

// writeResponse serializes one outbound frame.
func (c *Client) writeResponse(conn *websocket.Conn, frame any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(frame); err != nil {
		_ = conn.Close()
	}
}
