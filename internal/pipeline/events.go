package pipeline

import "github.com/google/uuid"

// EventKind tags an Event's active variant.
type EventKind int

const (
	EventStatusChanged EventKind = iota
	EventMessageReceived
	EventMessageReceivedWithClockSkew
	EventPresenceChanged
	EventTypingChanged
	EventHistoryWarning
)

// Event is pushed onto the pipeline's event channel for UI consumption.
type Event struct {
	Kind EventKind

	MessageID uuid.UUID
	Status    Status
	Message   StoredMessage

	PeerID  string
	Room    string
	IsTyping bool
	Presence string

	Warning string
}
