// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs pushed to connected clients.
package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/domain"
)

// MsgType identifies the kind of WS message so clients can switch on it.
// Protocol events use their domain.EventType as MsgType.
type MsgType string

const (
	MsgTypeWelcome MsgType = "welcome"
)

// ──────────────────────────────────────────────────────────────────────────────
// EventMessage is one committed protocol event.
// ──────────────────────────────────────────────────────────────────────────────

// EventMessage wraps a domain event for the wire. Market is uuid.Nil for
// events that do not concern a single market. Data is a domain.Event or,
// for relayed events, its already-encoded JSON.
type EventMessage struct {
	Type      MsgType   `json:"type"`
	Market    uuid.UUID `json:"market_id"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEventMessage builds the wire form of e.
func NewEventMessage(e domain.Event, at time.Time) EventMessage {
	return EventMessage{
		Type:      MsgType(e.EventType()),
		Market:    domain.EventMarket(e),
		Data:      e,
		Timestamp: at,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// WelcomeMessage is sent to a client right after the upgrade.
// ──────────────────────────────────────────────────────────────────────────────

// WelcomeMessage echoes the identity and filter the connection was opened with.
type WelcomeMessage struct {
	Type    MsgType        `json:"type"`
	Account domain.Account `json:"account,omitempty"`
	Market  *uuid.UUID     `json:"market_id,omitempty"`
}
