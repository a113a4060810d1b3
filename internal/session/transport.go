// Package session maintains the WhatsApp connection lifecycle: pairing,
// reconnection, and routing of inbound chat messages to a handler.
package session

import (
	"context"
	"time"

	"github.com/fintrack/wa-gateway/internal/model"
)

// EventKind identifies what a transport event carries.
type EventKind int

const (
	// EventState signals a connection state change.
	EventState EventKind = iota
	// EventQR carries a fresh QR pairing code.
	EventQR
	// EventMessage carries an inbound chat message.
	EventMessage
)

// Event is a transport lifecycle or message event.
type Event struct {
	Kind      EventKind
	State     model.ConnectionState
	LoggedOut bool
	QRCode    string
	Message   *InboundMessage
}

// InboundMessage is a text message received over the transport.
type InboundMessage struct {
	ChannelID string // sender JID, e.g. 6281234567890@s.whatsapp.net
	Text      string
	PushName  string
	Timestamp time.Time
}

// Transport abstracts the underlying WhatsApp connection.
type Transport interface {
	// Connect establishes the connection. Lifecycle and message events
	// arrive on Events after Connect returns.
	Connect(ctx context.Context) error

	// Send delivers a text message to a JID. It fails when the
	// connection is down.
	Send(ctx context.Context, jid, text string) error

	// Events returns the transport's event stream. The channel closes
	// when the transport shuts down.
	Events() <-chan Event

	// Close tears down the connection.
	Close() error
}
