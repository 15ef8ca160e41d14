package gateway

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventMessage is a server-initiated event pushed to approver clients.
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Seq       int64       `json:"seq,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// DecisionMessage is an approver client's answer to an approval request.
type DecisionMessage struct {
	Method     string `json:"method"`
	ApprovalID string `json:"approval_id"`
	Approved   bool   `json:"approved"`
	Comments   string `json:"comments,omitempty"`
	Remember   bool   `json:"remember,omitempty"`
	ValidityMS int64  `json:"validity_ms,omitempty"`
}

// AuthChallenge is the server's authentication challenge message.
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// AuthResponse is a client's signed answer to the challenge.
type AuthResponse struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

// AuthResult reports the outcome of an authentication attempt.
type AuthResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// ClientInfo describes a connected approver for introspection.
type ClientInfo struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
	IPAddress     string    `json:"ipAddress"`
}

// Client is one connected approver session. A non-empty Challenge
// means the handshake is still in flight; Authenticated flips once the
// registry records a verified signature.
type Client struct {
	ID            string
	Conn          *websocket.Conn
	Authenticated bool
	Challenge     string
	ConnectedAt   time.Time
	LastActivity  time.Time
	IPAddress     string
	AuthAttempts  int
}
