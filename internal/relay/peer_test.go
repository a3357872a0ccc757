package relay

import (
	"testing"

	"termchat/internal/relaywire"
)

func TestRoutePayloadDeliversWhenRegistered(t *testing.T) {
	r := NewPeerRegistry(10)
	bobOut, _ := r.Register("bob")

	result := r.RoutePayload("alice", "bob", []byte{0x01, 0x02, 0x03})
	if !result.Delivered {
		t.Fatalf("expected delivered, got %+v", result)
	}

	frame := <-bobOut
	msg, err := relaywire.DecodeRelay(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.From != "alice" || msg.To != "bob" {
		t.Fatalf("got from=%q to=%q, want alice/bob", msg.From, msg.To)
	}
}

func TestRoutePayloadSenderSpoofNormalized(t *testing.T) {
	r := NewPeerRegistry(10)
	bobOut, _ := r.Register("bob")

	// Routing always passes the connection's registered peer ID as
	// senderPeerID, regardless of what the wire frame's From field said.
	r.RoutePayload("alice", "bob", []byte{42})

	frame := <-bobOut
	msg, _ := relaywire.DecodeRelay(frame)
	if msg.From != "alice" {
		t.Fatalf("expected attested sender alice, got %q", msg.From)
	}
}

func TestRoutePayloadQueuesWhenOffline(t *testing.T) {
	r := NewPeerRegistry(10)
	result := r.RoutePayload("alice", "bob", []byte{1})
	if !result.Queued || result.QueuedCount != 1 {
		t.Fatalf("expected queued with count 1, got %+v", result)
	}

	_, queued := r.Register("bob")
	if len(queued) != 1 {
		t.Fatalf("expected 1 queued message on register, got %d", len(queued))
	}
}

func TestOfflineQueueEvictsOldestOnOverflow(t *testing.T) {
	r := NewPeerRegistry(2)
	r.RoutePayload("alice", "bob", []byte{1})
	r.RoutePayload("alice", "bob", []byte{2})
	r.RoutePayload("alice", "bob", []byte{3})

	_, queued := r.Register("bob")
	if len(queued) != 2 {
		t.Fatalf("expected queue capped at 2, got %d", len(queued))
	}
}

func TestDrainOfflineDeliversQueuedMessagesInOrder(t *testing.T) {
	r := NewPeerRegistry(10)
	r.RoutePayload("alice", "bob", []byte{1})
	r.RoutePayload("alice", "bob", []byte{2})

	out, queued := r.Register("bob")
	r.DrainOffline("bob", out, queued)

	first, _ := relaywire.DecodeRelay(<-out)
	second, _ := relaywire.DecodeRelay(<-out)
	if string(first.Payload) != string([]byte{1}) || string(second.Payload) != string([]byte{2}) {
		t.Fatalf("drain did not preserve FIFO order")
	}
}

func TestRegisterReplacesPriorSession(t *testing.T) {
	r := NewPeerRegistry(10)
	firstOut, _ := r.Register("alice")
	secondOut, _ := r.Register("alice")

	if firstOut == secondOut {
		t.Fatal("expected a fresh channel on re-registration")
	}
	r.Unregister("alice", firstOut) // stale unregister is a no-op
	if _, ok := r.lookup("alice"); !ok {
		t.Fatal("second registration should still be live after a stale unregister")
	}
}
