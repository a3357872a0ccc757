package bridge

// wireMessage is the single flat JSON struct every newline-delimited
// bridge message is encoded as, discriminated by Type -- the same shape
// the teacher's ControlMsg (client/transport.go) uses for its WebSocket
// control channel, adapted to the agent<->bridge handshake/room
// vocabulary instead of chat/channel/voice control.
type wireMessage struct {
	Type string `json:"type"`

	// Hello (agent -> bridge)
	ProtocolVersion int      `json:"protocol_version,omitempty"`
	AgentID         string   `json:"agent_id,omitempty"`
	DisplayName     string   `json:"display_name,omitempty"`
	Capabilities    []string `json:"capabilities,omitempty"`

	// SendMessage (agent -> bridge)
	Content string `json:"content,omitempty"`

	// Welcome (bridge -> agent)
	RoomID  string              `json:"room_id,omitempty"`
	RoomName string             `json:"room_name,omitempty"`
	Members []BridgeMemberInfo  `json:"members,omitempty"`
	History []BridgeHistoryEntry `json:"history,omitempty"`

	// RoomMessage (bridge -> agent)
	SenderID   string `json:"sender_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"` // ISO 8601

	// MembershipUpdate (bridge -> agent)
	Action   string `json:"action,omitempty"` // joined/left/promoted/demoted
	PeerID   string `json:"peer_id,omitempty"`
	IsAgent  bool   `json:"is_agent,omitempty"`

	// Error (bridge -> agent)
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// BridgeMemberInfo describes one room member as reported to an agent.
type BridgeMemberInfo struct {
	PeerID      string `json:"peer_id"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
	IsAgent     bool   `json:"is_agent"`
}

// BridgeHistoryEntry is one recent message replayed in Welcome.
type BridgeHistoryEntry struct {
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

const (
	msgTypeHello        = "hello"
	msgTypeSendMessage  = "send_message"
	msgTypeGoodbye      = "goodbye"
	msgTypePong         = "pong"
	msgTypeWelcome      = "welcome"
	msgTypeRoomMessage  = "room_message"
	msgTypeMembership   = "membership_update"
	msgTypeError        = "error"
	msgTypePing         = "ping"
)

// MembershipAction enumerates MembershipUpdate's action field.
type MembershipAction string

const (
	ActionJoined   MembershipAction = "joined"
	ActionLeft     MembershipAction = "left"
	ActionPromoted MembershipAction = "promoted"
	ActionDemoted  MembershipAction = "demoted"
)

const protocolVersion = 1

// MaxAgentIDLength is the truncation bound applied during sanitization.
const MaxAgentIDLength = 64

// MaxContentBytes bounds an agent's outbound message content.
const MaxContentBytes = 64 * 1024

// MaxRoomMembers mirrors the room-capacity check performed at handshake.
const MaxRoomMembers = 256
