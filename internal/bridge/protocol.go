// protocol.go — Wire frame types for the extension socket.
// Each frame is one JSON object over the WebSocket. Four shapes exist:
// auth (peer → bridge), auth_result (bridge → peer), command
// (bridge → peer, plus peer-initiated ping keepalives), and response
// (receiver of a command → sender, correlated by id).
package bridge

import "encoding/json"

// Frame type discriminators.
const (
	frameAuth       = "auth"
	frameAuthResult = "auth_result"
	frameCommand    = "command"
	frameResponse   = "response"
)

// CloseCodeClientExists is sent when a second connection is refused while a
// peer is current.
const CloseCodeClientExists = 4001

// CloseReasonClientExists is the close reason paired with
// CloseCodeClientExists.
const CloseReasonClientExists = "another client is already connected"

// inboundFrame is the union of every frame shape the bridge accepts from
// the peer. The Type field selects which of the remaining fields are
// meaningful; unknown or malformed frames are ignored.
type inboundFrame struct {
	Type string `json:"type"`

	// auth
	Token          string   `json:"token,omitempty"`
	ExtensionID    string   `json:"extensionId,omitempty"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	// command (keepalive) and response
	ID string `json:"id,omitempty"`

	// command
	Command string         `json:"command,omitempty"`
	Params  map[string]any `json:"params,omitempty"`

	// response
	Success bool            `json:"success,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// authResultFrame answers an auth frame. AllowedOrigins is a pointer so a
// successful handshake always carries the field — an empty configured set
// must serialize as [] — while a failure reply omits it entirely.
type authResultFrame struct {
	Type           string    `json:"type"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	AllowedOrigins *[]string `json:"allowedOrigins,omitempty"`
}

// commandFrame carries one command to the peer.
type commandFrame struct {
	Type    string         `json:"type"`
	ID      string         `json:"id"`
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
	TabID   *int           `json:"tabId,omitempty"`
}

// responseFrame answers a peer-initiated command (keepalive pings).
type responseFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Commands the bridge forwards to the peer. Only navigate is interpreted
// locally (allowlist gate); the rest pass through untouched.
const (
	CmdPing                = "ping"
	CmdNavigate            = "navigate"
	CmdScreenshot          = "screenshot"
	CmdEvaluate            = "evaluate"
	CmdURL                 = "url"
	CmdTitle               = "title"
	CmdNetworkCaptureStart = "network_capture_start"
	CmdNetworkCaptureStop  = "network_capture_stop"
	CmdClick               = "click"
	CmdType                = "type"
	CmdSelect              = "select"
	CmdHover               = "hover"
	CmdScroll              = "scroll"
	CmdKey                 = "key"
	CmdWait                = "wait"
	CmdQuery               = "query"
	CmdQueryAll            = "query_all"
	CmdText                = "text"
	CmdHTML                = "html"
)
