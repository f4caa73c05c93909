package transport

import "encoding/json"

// EnvelopeType tags a socket or stream message.
type EnvelopeType string

const (
	EnvelopeCall        EnvelopeType = "call"
	EnvelopeResponse    EnvelopeType = "response"
	EnvelopeEvent       EnvelopeType = "event"
	EnvelopeSubscribe   EnvelopeType = "subscribe"
	EnvelopeUnsubscribe EnvelopeType = "unsubscribe"
)

// Envelope is the unit exchanged over message-oriented wires. A call carries
// ID, Channel, Command and Args; its response echoes ID with Result or Error.
// Events carry Channel, Event and Payload. Subscribe and unsubscribe name the
// Channel and Event a peer wants forwarded.
type Envelope struct {
	Type    EnvelopeType    `json:"type"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Command string          `json:"command,omitempty"`
	Event   string          `json:"event,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Conn is a bidirectional envelope stream. WriteEnvelope must be safe for
// concurrent use; ReadEnvelope is called from a single goroutine and returns
// io.EOF once the peer has gone away cleanly.
type Conn interface {
	ReadEnvelope() (*Envelope, error)
	WriteEnvelope(env *Envelope) error
	Close() error
}
