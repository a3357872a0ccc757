// Package roommgr holds the client-side local view of rooms (admin-side
// and member-side): creation, join request handling, approval/denial,
// and membership queries. Mirrors the teacher's channel CRUD bookkeeping
// (server/room.go), generalized from server-side channels to
// client-side rooms with an admin/member model instead of owner/client.
package roommgr

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"termchat/internal/relaywire"
)

const (
	// MaxMembersPerRoom caps room membership.
	MaxMembersPerRoom = 256
	// MaxLocalRooms caps how many rooms a single client may track.
	MaxLocalRooms = 64
	// MaxRoomNameLength caps a room name after sanitization.
	MaxRoomNameLength = 64
)

// MemberInfo mirrors the wire MemberInfo shape for local bookkeeping.
type MemberInfo struct {
	PeerID      string
	DisplayName string
	IsAdmin     bool
	IsAgent     bool
}

// Room is the client's local view of one room.
type Room struct {
	RoomID         uuid.UUID
	Name           string
	Members        []MemberInfo
	IsAdmin        bool
	CreatedAt      uint64
	ConversationID uuid.UUID

	pendingJoins []joinRequest
}

type joinRequest struct {
	PeerID      string
	DisplayName string
}

// NotAdminError is returned for admin-only operations on a room the
// local client is not the admin of.
type NotAdminError struct{ RoomID uuid.UUID }

func (e *NotAdminError) Error() string { return fmt.Sprintf("roommgr: not admin of room %s", e.RoomID) }

// EventKind tags a RoomEvent's variant.
type EventKind int

const (
	EventRoomCreated EventKind = iota
	EventJoinRequestReceived
	EventMemberJoined
	EventMemberDenied
)

// Event is emitted for UI consumption.
type Event struct {
	Kind        EventKind
	Room        Room
	PeerID      string
	DisplayName string
	Member      MemberInfo
	Members     []MemberInfo
}

// Manager holds every room the local client knows about.
type Manager struct {
	nowMillis func() uint64

	mu   sync.RWMutex
	byID map[uuid.UUID]*Room

	pendingRegistrations []uuid.UUID
}

func NewManager(nowMillis func() uint64) *Manager {
	return &Manager{nowMillis: nowMillis, byID: make(map[uuid.UUID]*Room)}
}

// sanitizeName strips control characters, trims whitespace, and
// enforces the length cap.
func sanitizeName(name string) (string, error) {
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	clean := strings.TrimSpace(b.String())
	if clean == "" {
		return "", fmt.Errorf("roommgr: room name must not be empty")
	}
	if len(clean) > MaxRoomNameLength {
		return "", fmt.Errorf("roommgr: room name exceeds %d characters", MaxRoomNameLength)
	}
	return clean, nil
}

// CreateRoom validates/sanitizes name, rejects case-sensitive duplicates
// in the local map, enforces the local-room cap, and builds an
// admin-only Room.
func (m *Manager) CreateRoom(name, adminPeerID, adminDisplayName string) (Room, Event, error) {
	clean, err := sanitizeName(name)
	if err != nil {
		return Room{}, Event{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.byID) >= MaxLocalRooms {
		return Room{}, Event{}, fmt.Errorf("roommgr: local room count at capacity (%d)", MaxLocalRooms)
	}
	for _, r := range m.byID {
		if r.Name == clean {
			return Room{}, Event{}, fmt.Errorf("roommgr: duplicate room name %q", clean)
		}
	}

	roomID, err := uuid.NewV7()
	if err != nil {
		return Room{}, Event{}, fmt.Errorf("roommgr: generate room id: %w", err)
	}

	room := &Room{
		RoomID:         roomID,
		Name:           clean,
		IsAdmin:        true,
		CreatedAt:      m.nowMillis(),
		ConversationID: roomID, // derived by bit-identity
		Members:        []MemberInfo{{PeerID: adminPeerID, DisplayName: adminDisplayName, IsAdmin: true}},
	}
	m.byID[roomID] = room

	return *room, Event{Kind: EventRoomCreated, Room: *room}, nil
}

// HandleJoinRequest appends to the room's pending-request list. Admin only.
func (m *Manager) HandleJoinRequest(roomID uuid.UUID, peerID, displayName string) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.byID[roomID]
	if !ok {
		return Event{}, fmt.Errorf("roommgr: unknown room %s", roomID)
	}
	if !room.IsAdmin {
		return Event{}, &NotAdminError{RoomID: roomID}
	}
	room.pendingJoins = append(room.pendingJoins, joinRequest{PeerID: peerID, DisplayName: displayName})
	return Event{Kind: EventJoinRequestReceived, PeerID: peerID, DisplayName: displayName, Room: *room}, nil
}

// ApproveJoin adds peerID as a member (idempotent), removes it from the
// pending list, enforces the member cap, and returns the new member plus
// the full member list for inclusion in JoinApproved.
func (m *Manager) ApproveJoin(roomID uuid.UUID, peerID, displayName string) (MemberInfo, []MemberInfo, Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.byID[roomID]
	if !ok {
		return MemberInfo{}, nil, Event{}, fmt.Errorf("roommgr: unknown room %s", roomID)
	}
	if !room.IsAdmin {
		return MemberInfo{}, nil, Event{}, &NotAdminError{RoomID: roomID}
	}

	room.pendingJoins = removeJoinRequest(room.pendingJoins, peerID)

	for _, existing := range room.Members {
		if existing.PeerID == peerID {
			return existing, append([]MemberInfo(nil), room.Members...), Event{Kind: EventMemberJoined, Member: existing, Room: *room, Members: room.Members}, nil
		}
	}

	if len(room.Members) >= MaxMembersPerRoom {
		return MemberInfo{}, nil, Event{}, fmt.Errorf("roommgr: room %s at member capacity (%d)", roomID, MaxMembersPerRoom)
	}

	member := MemberInfo{PeerID: peerID, DisplayName: displayName}
	room.Members = append(room.Members, member)

	return member, append([]MemberInfo(nil), room.Members...), Event{Kind: EventMemberJoined, Member: member, Room: *room, Members: room.Members}, nil
}

// DenyJoin removes peerID from the pending list. Admin only.
func (m *Manager) DenyJoin(roomID uuid.UUID, peerID string) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.byID[roomID]
	if !ok {
		return Event{}, fmt.Errorf("roommgr: unknown room %s", roomID)
	}
	if !room.IsAdmin {
		return Event{}, &NotAdminError{RoomID: roomID}
	}
	room.pendingJoins = removeJoinRequest(room.pendingJoins, peerID)
	return Event{Kind: EventMemberDenied, PeerID: peerID, Room: *room}, nil
}

func removeJoinRequest(list []joinRequest, peerID string) []joinRequest {
	out := list[:0]
	for _, r := range list {
		if r.PeerID != peerID {
			out = append(out, r)
		}
	}
	return out
}

// PendingRequests returns roomID's pending join requests' peer IDs.
func (m *Manager) PendingRequests(roomID uuid.UUID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.byID[roomID]
	if !ok {
		return nil
	}
	out := make([]string, len(room.pendingJoins))
	for i, r := range room.pendingJoins {
		out[i] = r.PeerID
	}
	return out
}

// GetRoomMembers returns roomID's current members.
func (m *Manager) GetRoomMembers(roomID uuid.UUID) ([]MemberInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.byID[roomID]
	if !ok {
		return nil, false
	}
	return append([]MemberInfo(nil), room.Members...), true
}

// GetRoom returns the room by ID.
func (m *Manager) GetRoom(roomID uuid.UUID) (Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.byID[roomID]
	if !ok {
		return Room{}, false
	}
	return *room, true
}

// GetRoomByName returns the room matching name exactly.
func (m *Manager) GetRoomByName(name string) (Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.byID {
		if r.Name == name {
			return *r, true
		}
	}
	return Room{}, false
}

// QueueRegistration marks roomID for relay registration once the relay
// connection is available, for rooms created or rejoined while offline.
func (m *Manager) QueueRegistration(roomID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingRegistrations = append(m.pendingRegistrations, roomID)
}

// DrainPendingRegistrations empties the registration queue and returns a
// RegisterRoom message for each queued room that still exists locally
// and has an admin member; rooms that have since been deleted are
// silently skipped.
func (m *Manager) DrainPendingRegistrations() []relaywire.RoomMessage {
	m.mu.Lock()
	ids := m.pendingRegistrations
	m.pendingRegistrations = nil
	m.mu.Unlock()

	var messages []relaywire.RoomMessage
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, roomID := range ids {
		room, ok := m.byID[roomID]
		if !ok {
			continue
		}
		for _, member := range room.Members {
			if member.IsAdmin {
				messages = append(messages, relaywire.RoomMessage{
					Kind:        relaywire.RoomKindRegisterRoom,
					RoomID:      room.RoomID.String(),
					Name:        room.Name,
					AdminPeerID: member.PeerID,
				})
				break
			}
		}
	}
	return messages
}

// ListRooms returns every locally known room.
func (m *Manager) ListRooms() []Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Room, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, *r)
	}
	return out
}
