// Package codec implements the wire encoding for envelopes: a tagged
// union over chat, ack, nack, handshake, presence, typing, and task-sync
// payloads, with variable-length integers and length-prefixed byte
// strings, plus 4-byte length-prefixed framing for stream transports.
package codec

import (
	"time"

	"github.com/google/uuid"
)

// MaxPayloadBytes is the hard cap on a single framed envelope, enforced
// both on encode and on decode.
const MaxPayloadBytes = 64 * 1024

// Kind tags an Envelope's active variant. Values are stable on the wire.
type Kind uint8

const (
	KindChat Kind = iota
	KindAck
	KindNack
	KindHandshake
	KindPresenceUpdate
	KindTypingIndicator
	KindTaskSync
)

// ChatMessage is the metadata/content pair carried by a Chat envelope.
type ChatMessage struct {
	MessageID      uuid.UUID
	Timestamp      uint64 // millis since epoch
	SenderID       string
	ConversationID uuid.UUID
	Text           string
}

// NowMillis returns the current time as milliseconds since the Unix epoch.
func NowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// NackReasonKind enumerates the reasons a Nack may carry.
type NackReasonKind uint8

const (
	NackDeserializationFailed NackReasonKind = iota
	NackSenderIDMismatch
	NackOther
)

// Nack carries a reason a received envelope was rejected.
type Nack struct {
	MessageID uuid.UUID
	Reason    NackReasonKind
	Detail    string // only meaningful when Reason == NackOther
}

// DeliveryAck is a receipt for a successfully received chat message.
type DeliveryAck struct {
	MessageID uuid.UUID
	Timestamp uint64
}

// Envelope is the closed sum type carried over the encrypted link.
// Exactly one of the typed accessors is meaningful, selected by Kind.
type Envelope struct {
	Kind Kind

	Chat            ChatMessage
	Ack             DeliveryAck
	Nack            Nack
	Handshake       []byte
	PresenceUpdate  []byte
	TypingIndicator []byte
	TaskSync        []byte
}

// NewChat builds a Chat envelope.
func NewChat(msg ChatMessage) Envelope { return Envelope{Kind: KindChat, Chat: msg} }

// NewAck builds an Ack envelope.
func NewAck(ack DeliveryAck) Envelope { return Envelope{Kind: KindAck, Ack: ack} }

// NewNack builds a Nack envelope.
func NewNack(n Nack) Envelope { return Envelope{Kind: KindNack, Nack: n} }
