package whatsapp

import (
	"context"
	"errors"
	"time"
)

// State of the single outbound session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	// StateClosed only appears in updates; the manager immediately moves on
	// to connecting or logged_out.
	StateClosed    State = "closed"
	StateLoggedOut State = "logged_out"
)

// Reason explains why a session closed.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonConnectionLost Reason = "connection_lost"
	ReasonLoggedOut      Reason = "logged_out"
	ReasonStreamReplaced Reason = "stream_replaced"
	ReasonConnectFailure Reason = "connect_failure"
	ReasonTemporaryBan   Reason = "temporary_ban"
	ReasonPairingTimeout Reason = "pairing_timeout"
	ReasonDialFailed     Reason = "dial_failed"
	ReasonShutdown       Reason = "shutdown"
)

// Recoverable reports whether a close with this reason should be followed by a reconnect.
func (r Reason) Recoverable() bool {
	return r != ReasonLoggedOut && r != ReasonShutdown
}

// Update is a lifecycle notification from a session handle. Any field may be empty.
type Update struct {
	State       State
	Reason      Reason
	PairingCode string
	Detail      string
}

// Observer receives lifecycle and credential notifications from one handle.
// OnCredentials is handed the handle whose credentials changed.
type Observer struct {
	OnUpdate      func(Update)
	OnCredentials func(Session)
}

// Session is the live handle to the messaging backend.
type Session interface {
	IsConnected() bool
	IsLoggedIn() bool
	// ID is the account JID once paired, empty before.
	ID() string
	// IsOnWhatsApp reports whether jid belongs to a registered account and
	// returns the JID the backend resolved it to.
	IsOnWhatsApp(ctx context.Context, jid string) (bool, string, error)
	SendText(ctx context.Context, jid string, text string) (string, error)
	SaveCredentials(ctx context.Context) error
	Disconnect()
}

// Dialer loads credentials, negotiates the protocol version, builds a new
// handle wired to obs and starts connecting it.
type Dialer interface {
	Dial(ctx context.Context, obs Observer) (Session, error)
}

// Status is a point-in-time copy of the slot.
type Status struct {
	State       State     `json:"state"`
	Reason      Reason    `json:"reason,omitempty"`
	PairingCode string    `json:"-"`
	JID         string    `json:"jid,omitempty"`
	Generation  uint64    `json:"generation"`
	Since       time.Time `json:"since"`
}

var (
	ErrNotConnected = errors.New("WhatsApp session is not connected")
	ErrStaleSession = errors.New("WhatsApp session was replaced during the request")
	ErrClosed       = errors.New("connection manager is closed")
)
