// bridge.go — Single-client command bridge between the tool surface and the
// browser extension.
// The bridge owns the loopback WebSocket listener, the handshake state, the
// pending-request table, and the generated auth token. At most one peer is
// current at a time; a second connection is refused with close code 4001.
// All state mutations (peer pointer, authenticated flag, pending table)
// happen under one mutex.
package bridge

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agent-chrome-test/agent-chrome-test/internal/audit"
	"github.com/agent-chrome-test/agent-chrome-test/internal/security"
)

// DefaultTimeout is the per-command timeout when the caller supplies none.
const DefaultTimeout = 30 * time.Second

// DefaultPort is the listener port when none is configured.
const DefaultPort = 3695

// outcome is the terminal result delivered to one pending request.
type outcome struct {
	data json.RawMessage
	err  error
}

// pendingRequest is one dispatched command awaiting its terminal event.
// Exactly one outcome is ever delivered: a matching response, the timeout,
// peer disconnect, or shutdown.
type pendingRequest struct {
	command string
	ch      chan outcome
	timer   *time.Timer
}

// Stats counts bridge activity since startup.
type Stats struct {
	CommandsDispatched int `json:"commands_dispatched"`
	ResponsesMatched   int `json:"responses_matched"`
	Timeouts           int `json:"timeouts"`
	AuthFailures       int `json:"auth_failures"`
	ResponsesDropped   int `json:"responses_dropped"`
}

// Config carries bridge construction parameters.
type Config struct {
	// Host must be a loopback address. Defaults to 127.0.0.1.
	Host string
	// Port defaults to DefaultPort.
	Port int
}

// Bridge is the socket server, handshake state machine, and dispatch API.
type Bridge struct {
	host      string
	port      int
	token     string
	allowlist *security.Allowlist
	audit     *audit.Logger
	upgrader  websocket.Upgrader

	mu            sync.Mutex
	server        *http.Server
	listener      net.Listener
	peer          *websocket.Conn
	authenticated bool
	pending       map[string]*pendingRequest
	stopped       bool
	stats         Stats

	// writeMu serializes frame writes to the peer connection.
	writeMu sync.Mutex

	onConnect    func()
	onDisconnect func()
}

// New constructs a bridge. The auth token is generated here: 32 random
// bytes, hex-encoded.
func New(cfg Config, allowlist *security.Allowlist, auditLog *audit.Logger) (*Bridge, error) {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	if !isLoopbackHost(host) {
		return nil, fmt.Errorf("bridge must bind to a loopback address, got %q", host)
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("cannot generate auth token: %w", err)
	}

	return &Bridge{
		host:      host,
		port:      port,
		token:     hex.EncodeToString(tokenBytes),
		allowlist: allowlist,
		audit:     auditLog,
		pending:   make(map[string]*pendingRequest),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 65536,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Extension pages and direct (originless) clients only.
				return origin == "" || strings.HasPrefix(origin, "chrome-extension://")
			},
		},
	}, nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Token returns the generated auth secret.
func (b *Bridge) Token() string {
	return b.token
}

// Connected reports whether an authenticated peer is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authenticated
}

// Addr returns the bound listener address, or "" before Start.
func (b *Bridge) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// URL returns the WebSocket endpoint the peer should dial.
func (b *Bridge) URL() string {
	return fmt.Sprintf("ws://%s:%d", b.host, b.port)
}

// Stats returns a snapshot of activity counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// OnConnect registers a hook fired on successful peer authentication.
func (b *Bridge) OnConnect(cb func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnect = cb
}

// OnDisconnect registers a hook fired when the authenticated peer is lost.
func (b *Bridge) OnDisconnect(cb func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDisconnect = cb
}

// Start binds the loopback listener and begins accepting connections.
// Fails if the port is in use.
func (b *Bridge) Start() error {
	addr := net.JoinHostPort(b.host, fmt.Sprintf("%d", b.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cannot bind %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handleConnection)
	srv := &http.Server{
		Handler:     mux,
		ReadTimeout: 0, // long-lived socket; read deadlines are per-frame
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		_ = ln.Close()
		return ErrShuttingDown
	}
	b.listener = ln
	b.server = srv
	b.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "[agent-chrome-test] socket server error: %v\n", err)
		}
	}()

	return nil
}

// Stop rejects every pending request, closes the peer, and closes the
// listener. Idempotent.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true

	b.rejectAllPendingLocked(ErrShuttingDown)

	peer := b.peer
	b.peer = nil
	b.authenticated = false
	srv := b.server
	b.server = nil
	b.listener = nil
	b.mu.Unlock()

	if peer != nil {
		_ = peer.Close()
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// rejectAllPendingLocked delivers err to every pending request and empties
// the table. Caller holds b.mu.
func (b *Bridge) rejectAllPendingLocked(err error) {
	for id, req := range b.pending {
		req.timer.Stop()
		req.ch <- outcome{err: fmt.Errorf("%w: command %q", err, req.command)}
		delete(b.pending, id)
	}
}

// SendCommand dispatches one command to the authenticated peer and waits
// for its terminal event. timeout <= 0 selects DefaultTimeout.
func (b *Bridge) SendCommand(ctx context.Context, name string, params map[string]any, tabID *int, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if params == nil {
		params = map[string]any{}
	}

	// Navigation is gated locally before anything touches the socket.
	if name == CmdNavigate {
		rawURL, _ := params["url"].(string)
		if !b.allowlist.IsAllowed(rawURL) {
			return nil, fmt.Errorf("%w: %q", ErrNotAllowed, rawURL)
		}
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if !b.authenticated || b.peer == nil {
		b.mu.Unlock()
		return nil, ErrNotConnected
	}
	peer := b.peer

	id := uuid.NewString()
	req := &pendingRequest{
		command: name,
		ch:      make(chan outcome, 1),
	}
	req.timer = time.AfterFunc(timeout, func() {
		b.expire(id, name, timeout)
	})
	b.pending[id] = req
	b.stats.CommandsDispatched++
	b.mu.Unlock()

	b.audit.Log(name, params)

	frame := commandFrame{
		Type:    frameCommand,
		ID:      id,
		Command: name,
		Params:  params,
		TabID:   tabID,
	}
	if err := b.writeFrame(peer, frame); err != nil {
		b.take(id)
		return nil, fmt.Errorf("%w: write failed: %v", ErrPeerDisconnected, err)
	}

	select {
	case out := <-req.ch:
		return out.data, out.err
	case <-ctx.Done():
		b.take(id)
		return nil, ctx.Err()
	}
}

// take removes and returns the pending entry for id, stopping its timer.
// Returns nil if another terminal event already claimed it.
func (b *Bridge) take(id string) *pendingRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.pending[id]
	if !ok {
		return nil
	}
	req.timer.Stop()
	delete(b.pending, id)
	return req
}

// expire delivers the timeout outcome unless the request already resolved.
func (b *Bridge) expire(id, name string, timeout time.Duration) {
	b.mu.Lock()
	req, ok := b.pending[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.pending, id)
	b.stats.Timeouts++
	b.mu.Unlock()

	req.ch <- outcome{err: fmt.Errorf("%w: command %q timed out after %dms", ErrTimeout, name, timeout.Milliseconds())}
}

// writeFrame serializes one frame to the peer connection.
func (b *Bridge) writeFrame(conn *websocket.Conn, frame any) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(frame)
}

// handleConnection upgrades an incoming connection and runs its read loop.
// A connection arriving while a peer is current is closed with 4001.
func (b *Bridge) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	if b.peer != nil {
		b.mu.Unlock()
		msg := websocket.FormatCloseMessage(CloseCodeClientExists, CloseReasonClientExists)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	b.peer = conn
	b.authenticated = false
	b.mu.Unlock()

	go b.readLoop(conn)
}

// readLoop parses frames from the peer until the transport closes.
// Malformed frames and unexpected shapes are ignored; only transport close
// tears the peer down.
func (b *Bridge) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.teardown(conn)
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		b.mu.Lock()
		current := b.peer == conn
		authed := b.authenticated
		b.mu.Unlock()
		if !current {
			return
		}

		if !authed {
			// CONNECTED: only auth frames are meaningful.
			if frame.Type == frameAuth {
				b.handleAuth(conn, frame)
			}
			continue
		}

		// AUTHENTICATED: accept keepalive pings and responses.
		switch frame.Type {
		case frameCommand:
			if frame.Command == CmdPing {
				b.handlePing(conn, frame.ID)
			}
		case frameResponse:
			b.handleResponse(frame)
		}
	}
}

// handleAuth runs the constant-time token check and answers with an
// auth_result frame. A failed check keeps the connection open in
// CONNECTED, where a later auth frame is checked again.
func (b *Bridge) handleAuth(conn *websocket.Conn, frame inboundFrame) {
	if !tokenMatches(frame.Token, b.token) {
		b.mu.Lock()
		b.stats.AuthFailures++
		b.mu.Unlock()

		b.audit.Log("auth_failed", map[string]any{"extensionId": frame.ExtensionID})
		_ = b.writeFrame(conn, authResultFrame{
			Type:    frameAuthResult,
			Success: false,
			Error:   "Invalid auth token",
		})
		return
	}

	b.allowlist.Extend(frame.AllowedOrigins)

	b.mu.Lock()
	b.authenticated = true
	cb := b.onConnect
	b.mu.Unlock()

	origins := b.allowlist.Entries()
	_ = b.writeFrame(conn, authResultFrame{
		Type:           frameAuthResult,
		Success:        true,
		AllowedOrigins: &origins,
	})

	if cb != nil {
		cb()
	}
}

// tokenMatches compares tokens in constant time. The only early return is
// the length mismatch.
func tokenMatches(got, want string) bool {
	if len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// handlePing answers a peer keepalive.
func (b *Bridge) handlePing(conn *websocket.Conn, id string) {
	_ = b.writeFrame(conn, responseFrame{
		Type:    frameResponse,
		ID:      id,
		Success: true,
		Data: map[string]any{
			"pong":      true,
			"timestamp": time.Now().UnixMilli(),
		},
	})
}

// handleResponse resolves the matching pending request. A response whose id
// has no entry is dropped: the dispatch already resolved via timeout or
// disconnect.
func (b *Bridge) handleResponse(frame inboundFrame) {
	b.mu.Lock()
	req, ok := b.pending[frame.ID]
	if !ok {
		b.stats.ResponsesDropped++
		b.mu.Unlock()
		return
	}
	req.timer.Stop()
	delete(b.pending, frame.ID)
	b.stats.ResponsesMatched++
	b.mu.Unlock()

	if frame.Success {
		req.ch <- outcome{data: frame.Data}
		return
	}
	msg := frame.Error
	if msg == "" {
		msg = "unspecified failure"
	}
	req.ch <- outcome{err: fmt.Errorf("%w: %s", ErrPeer, msg)}
}

// teardown clears the peer slot after a transport close and cancels all
// in-flight work.
func (b *Bridge) teardown(conn *websocket.Conn) {
	b.mu.Lock()
	if b.peer != conn {
		b.mu.Unlock()
		return
	}
	wasAuthenticated := b.authenticated
	b.peer = nil
	b.authenticated = false
	b.rejectAllPendingLocked(ErrPeerDisconnected)
	cb := b.onDisconnect
	b.mu.Unlock()

	_ = conn.Close()

	if wasAuthenticated && cb != nil {
		cb()
	}
}
