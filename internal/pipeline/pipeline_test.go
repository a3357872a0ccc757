package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"termchat/internal/codec"
	"termchat/internal/crypto"
	"termchat/internal/tasks"
	"termchat/internal/transport"
)

// flakyTransport wraps a Transport and fails every Send while blocked
// is set, letting tests force a send failure on demand.
type flakyTransport struct {
	transport.Transport
	blocked atomic.Bool
}

func (f *flakyTransport) Send(ctx context.Context, peer string, payload []byte) error {
	if f.blocked.Load() {
		return &transport.IOError{Err: context.DeadlineExceeded}
	}
	return f.Transport.Send(ctx, peer, payload)
}

func encodeTaskSyncEnvelope(t *testing.T, payload []byte) []byte {
	t.Helper()
	encoded, err := codec.Encode(codec.Envelope{Kind: codec.KindTaskSync, TaskSync: payload})
	if err != nil {
		t.Fatalf("encode task sync envelope: %v", err)
	}
	return encoded
}

func pairedSessions(t *testing.T) (*crypto.NoiseSession, *crypto.NoiseSession) {
	t.Helper()
	aliceKP, err := crypto.GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("alice keypair: %v", err)
	}
	bobKP, err := crypto.GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("bob keypair: %v", err)
	}
	aliceSession, err := crypto.EstablishSession(aliceKP, bobKP.PublicKey())
	if err != nil {
		t.Fatalf("alice session: %v", err)
	}
	bobSession, err := crypto.EstablishSession(bobKP, aliceKP.PublicKey())
	if err != nil {
		t.Fatalf("bob session: %v", err)
	}
	return aliceSession, bobSession
}

func TestSendThenReceiveChatRoundTrip(t *testing.T) {
	aliceTransport, bobTransport := transport.NewLoopbackPair("alice", "bob")
	aliceSession, bobSession := pairedSessions(t)

	alice := New(aliceTransport, aliceSession, NewMemoryStore(), "alice")
	bob := New(bobTransport, bobSession, NewMemoryStore(), "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	convID := uuid.Must(uuid.NewV7())
	msgID, err := alice.Send(ctx, "bob", convID, "hello bob")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := bob.ReceiveOne(ctx); err != nil {
		t.Fatalf("bob receive: %v", err)
	}

	select {
	case ev := <-bob.Events:
		if ev.Kind != EventMessageReceived {
			t.Fatalf("expected EventMessageReceived, got %v", ev.Kind)
		}
		if ev.Message.Text != "hello bob" {
			t.Fatalf("unexpected text: %q", ev.Message.Text)
		}
	default:
		t.Fatal("expected a message-received event")
	}

	// Bob's ack should now be in flight back to alice.
	ackID, err := alice.ReceiveOne(ctx)
	if err != nil {
		t.Fatalf("alice receive ack: %v", err)
	}
	if ackID == nil || *ackID != msgID {
		t.Fatalf("expected ack for %s, got %v", msgID, ackID)
	}

	status, ok := alice.Status(msgID)
	if !ok || status != StatusDelivered {
		t.Fatalf("expected delivered status, got %v (ok=%v)", status, ok)
	}
}

func TestSendRejectsEmptyText(t *testing.T) {
	lo, _ := transport.NewLoopbackPair("a", "b")
	session, _ := pairedSessions(t)
	p := New(lo, session, NewMemoryStore(), "a")

	if _, err := p.Send(context.Background(), "b", uuid.Must(uuid.NewV7()), ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestSendFailsWithoutEstablishedSession(t *testing.T) {
	lo, _ := transport.NewLoopbackPair("a", "b")
	p := New(lo, &crypto.NoiseSession{}, NewMemoryStore(), "a")

	if _, err := p.Send(context.Background(), "b", uuid.Must(uuid.NewV7()), "hi"); err == nil {
		t.Fatal("expected NoSessionError")
	}
}

func TestDuplicateChatDroppedWithNoSideEffects(t *testing.T) {
	aliceTransport, bobTransport := transport.NewLoopbackPair("alice", "bob")
	aliceSession, bobSession := pairedSessions(t)

	alice := New(aliceTransport, aliceSession, NewMemoryStore(), "alice")
	bob := New(bobTransport, bobSession, NewMemoryStore(), "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	convID := uuid.Must(uuid.NewV7())
	firstID, err := alice.Send(ctx, "bob", convID, "once")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := bob.ReceiveOne(ctx); err != nil {
		t.Fatalf("receive 1: %v", err)
	}
	<-bob.Events // drain the MessageReceived event

	// Replay the same chat directly into handleChat to verify the
	// duplicate path emits nothing.
	bob.handleChat(ctx, "alice", codec.ChatMessage{
		MessageID: firstID, Timestamp: codec.NowMillis(), SenderID: "alice",
		ConversationID: convID, Text: "once",
	})
	select {
	case ev := <-bob.Events:
		t.Fatalf("duplicate chat emitted an event: %v", ev.Kind)
	default:
	}

	// A fresh id is recorded on first sighting and suppressed after.
	msgID := uuid.Must(uuid.NewV7())
	if bob.isDuplicate(msgID) {
		t.Fatal("first sighting must not be a duplicate")
	}
	if !bob.isDuplicate(msgID) {
		t.Fatal("second sighting must be a duplicate")
	}
}

func TestFailedAckIsQueuedThenFlushed(t *testing.T) {
	aliceTransport, bobTransportInner := transport.NewLoopbackPair("alice", "bob")
	bobTransport := &flakyTransport{Transport: bobTransportInner}
	aliceSession, bobSession := pairedSessions(t)

	alice := New(aliceTransport, aliceSession, NewMemoryStore(), "alice")
	bob := New(bobTransport, bobSession, NewMemoryStore(), "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	convID := uuid.Must(uuid.NewV7())
	bobTransport.blocked.Store(true)
	if _, err := alice.Send(ctx, "bob", convID, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := bob.ReceiveOne(ctx); err != nil {
		t.Fatalf("bob receive: %v", err)
	}
	<-bob.Events // drain the MessageReceived event

	bob.acks.mu.Lock()
	queued := len(bob.acks.pending)
	bob.acks.mu.Unlock()
	if queued != 1 {
		t.Fatalf("expected 1 queued ack while transport is blocked, got %d", queued)
	}

	// Alice should not have received an ack yet.
	aliceCtx, aliceCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	if _, err := alice.ReceiveOne(aliceCtx); err == nil {
		aliceCancel()
		t.Fatal("expected no ack to have arrived while bob's transport was blocked")
	}
	aliceCancel()

	bobTransport.blocked.Store(false)
	bob.acks.flush(ctx)

	bob.acks.mu.Lock()
	queued = len(bob.acks.pending)
	bob.acks.mu.Unlock()
	if queued != 0 {
		t.Fatalf("expected queue to drain after flush, got %d still pending", queued)
	}

	ackID, err := alice.ReceiveOne(ctx)
	if err != nil {
		t.Fatalf("alice receive ack: %v", err)
	}
	if ackID == nil {
		t.Fatal("expected an ack after flush")
	}
}

func TestTaskSyncDelegatesToHandler(t *testing.T) {
	aliceTransport, bobTransport := transport.NewLoopbackPair("alice", "bob")
	aliceSession, bobSession := pairedSessions(t)

	var received tasks.SyncMessage
	got := false
	bob := New(bobTransport, bobSession, NewMemoryStore(), "bob", WithTaskSyncHandler(func(msg tasks.SyncMessage) {
		received = msg
		got = true
	}))
	alice := New(aliceTransport, aliceSession, NewMemoryStore(), "alice")

	roomID := uuid.Must(uuid.NewV7())
	taskID := uuid.Must(uuid.NewV7())
	syncMsg := tasks.SyncMessage{
		Kind: tasks.SyncKindFieldUpdate, TaskID: taskID, RoomID: roomID, Field: tasks.FieldStatus,
		StatusUpdate: tasks.NewLWW(tasks.StatusCompleted, 42, "alice"),
	}

	plaintext := tasks.EncodeSync(syncMsg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	envBytes := encodeTaskSyncEnvelope(t, plaintext)
	ciphertext, err := aliceSession.Encrypt(envBytes)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := aliceTransport.Send(ctx, "bob", ciphertext); err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := bob.ReceiveOne(ctx); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !got {
		t.Fatal("expected task sync handler to be invoked")
	}
	if received.TaskID != taskID || received.StatusUpdate.Value != tasks.StatusCompleted {
		t.Fatalf("unexpected sync message: %+v", received)
	}
}
