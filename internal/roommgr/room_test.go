package roommgr

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"termchat/internal/relaywire"
)

func fixedClock(ts uint64) func() uint64 { return func() uint64 { return ts } }

func TestCreateRoomRejectsDuplicateNameLocally(t *testing.T) {
	m := NewManager(fixedClock(1))
	if _, _, err := m.CreateRoom("general", "alice", "Alice"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := m.CreateRoom("general", "alice", "Alice"); err == nil {
		t.Fatal("expected duplicate room name rejection")
	}
}

func TestCreateRoomSanitizesName(t *testing.T) {
	m := NewManager(fixedClock(1))
	room, _, err := m.CreateRoom("  hello\x00world \n", "alice", "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if strings.ContainsAny(room.Name, "\x00") {
		t.Fatalf("expected control chars stripped, got %q", room.Name)
	}
}

func TestJoinRequestApprovalFlow(t *testing.T) {
	m := NewManager(fixedClock(1))
	room, _, err := m.CreateRoom("team", "alice", "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := m.HandleJoinRequest(room.RoomID, "bob", "Bob"); err != nil {
		t.Fatalf("join request: %v", err)
	}
	if pending := m.PendingRequests(room.RoomID); len(pending) != 1 || pending[0] != "bob" {
		t.Fatalf("expected bob pending, got %v", pending)
	}

	member, members, _, err := m.ApproveJoin(room.RoomID, "bob", "Bob")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if member.PeerID != "bob" {
		t.Fatalf("unexpected member: %+v", member)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if pending := m.PendingRequests(room.RoomID); len(pending) != 0 {
		t.Fatalf("expected no pending requests after approval, got %v", pending)
	}
}

func TestApproveJoinIsIdempotent(t *testing.T) {
	m := NewManager(fixedClock(1))
	room, _, _ := m.CreateRoom("team", "alice", "Alice")
	m.HandleJoinRequest(room.RoomID, "bob", "Bob")

	if _, members1, _, err := m.ApproveJoin(room.RoomID, "bob", "Bob"); err != nil || len(members1) != 2 {
		t.Fatalf("first approve: members=%v err=%v", members1, err)
	}
	if _, members2, _, err := m.ApproveJoin(room.RoomID, "bob", "Bob"); err != nil || len(members2) != 2 {
		t.Fatalf("second approve should be idempotent: members=%v err=%v", members2, err)
	}
}

func TestDenyJoinRemovesPendingRequest(t *testing.T) {
	m := NewManager(fixedClock(1))
	room, _, _ := m.CreateRoom("team", "alice", "Alice")
	m.HandleJoinRequest(room.RoomID, "bob", "Bob")

	if _, err := m.DenyJoin(room.RoomID, "bob"); err != nil {
		t.Fatalf("deny: %v", err)
	}
	if pending := m.PendingRequests(room.RoomID); len(pending) != 0 {
		t.Fatalf("expected no pending requests, got %v", pending)
	}
	if members, _ := m.GetRoomMembers(room.RoomID); len(members) != 1 {
		t.Fatalf("denied peer must not become a member, got %v", members)
	}
}

func TestNonAdminCannotApproveJoin(t *testing.T) {
	m := NewManager(fixedClock(1))
	// CreateRoom always makes the creator admin, so the local admin flag
	// is cleared by hand to model a room this client is not admin of.
	room, _, _ := m.CreateRoom("team", "alice", "Alice")
	m.byID[room.RoomID].IsAdmin = false

	_, _, _, err := m.ApproveJoin(room.RoomID, "bob", "Bob")
	var notAdmin *NotAdminError
	if !errors.As(err, &notAdmin) {
		t.Fatalf("expected NotAdminError, got %v", err)
	}
	if !strings.Contains(err.Error(), room.RoomID.String()) {
		t.Fatalf("expected room id in error, got %q", err.Error())
	}
}

func TestCreateRoomEmptyNameRejected(t *testing.T) {
	m := NewManager(fixedClock(1))
	if _, _, err := m.CreateRoom("   ", "alice", "Alice"); err == nil {
		t.Fatal("expected error for empty room name")
	}
}

func TestQueueAndDrainPendingRegistrations(t *testing.T) {
	m := NewManager(fixedClock(1))
	room, _, err := m.CreateRoom("general", "alice", "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	m.QueueRegistration(room.RoomID)

	messages := m.DrainPendingRegistrations()
	if len(messages) != 1 {
		t.Fatalf("expected 1 queued registration, got %d", len(messages))
	}
	msg := messages[0]
	if msg.Kind != relaywire.RoomKindRegisterRoom {
		t.Fatalf("expected RegisterRoom kind, got %v", msg.Kind)
	}
	if msg.RoomID != room.RoomID.String() || msg.Name != "general" || msg.AdminPeerID != "alice" {
		t.Fatalf("unexpected register message: %+v", msg)
	}

	if again := m.DrainPendingRegistrations(); len(again) != 0 {
		t.Fatalf("expected second drain to be empty, got %v", again)
	}
}

func TestDrainPendingRegistrationsSkipsDeletedRooms(t *testing.T) {
	m := NewManager(fixedClock(1))
	m.QueueRegistration(uuid.Must(uuid.NewV7()))

	if messages := m.DrainPendingRegistrations(); len(messages) != 0 {
		t.Fatalf("expected deleted/unknown room to be skipped, got %v", messages)
	}
}
