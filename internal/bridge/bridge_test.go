package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBridge(t *testing.T, taken func(string) bool) (*Bridge, chan RoomEvent) {
	t.Helper()
	events := make(chan RoomEvent, 4)
	b := &Bridge{
		cfg: Config{
			PingInterval: time.Hour, // keep the heartbeat quiet for these tests
			PongTimeout:  time.Hour,
			Room: RoomBinding{
				RoomID:   "room-1",
				RoomName: "General",
				Members:  func() []BridgeMemberInfo { return nil },
				History:  func() []BridgeHistoryEntry { return nil },
				PeerIDTaken: func(id string) bool {
					if taken == nil {
						return false
					}
					return taken(id)
				},
				Events: events,
			},
		},
		log:      discardLogger(),
		Outbound: make(chan OutboundAgentMessage, 8),
		Cleanups: make(chan CleanupContext, 8),
	}
	return b, events
}

func readLine(t *testing.T, r *bufio.Reader) wireMessage {
	t.Helper()
	line, err := r.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	var msg wireMessage
	if err := json.Unmarshal(line[:len(line)-1], &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", line, err)
	}
	return msg
}

func writeLine(t *testing.T, conn net.Conn, msg wireMessage) {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b = append(b, '\n')
	if _, err := conn.Write(b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHandshakeSucceedsAndWelcomesAgent(t *testing.T) {
	b, _ := newTestBridge(t, nil)
	serverConn, agentConn := net.Pipe()
	defer agentConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.handleConnection(ctx, serverConn)
		close(done)
	}()

	reader := bufio.NewReader(agentConn)
	writeLine(t, agentConn, wireMessage{Type: msgTypeHello, ProtocolVersion: 1, AgentID: "bot", DisplayName: "Bot"})

	welcome := readLine(t, reader)
	if welcome.Type != msgTypeWelcome || welcome.RoomID != "room-1" {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}

	writeLine(t, agentConn, wireMessage{Type: msgTypeGoodbye})
	<-done

	cleanup := <-b.Cleanups
	if cleanup.Reason != ReasonGoodbye || cleanup.PeerID != "agent:bot" {
		t.Fatalf("unexpected cleanup: %+v", cleanup)
	}
}

func TestHandshakeRejectsWrongProtocolVersion(t *testing.T) {
	b, _ := newTestBridge(t, nil)
	serverConn, agentConn := net.Pipe()
	defer agentConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.handleConnection(ctx, serverConn)
		close(done)
	}()

	reader := bufio.NewReader(agentConn)
	writeLine(t, agentConn, wireMessage{Type: msgTypeHello, ProtocolVersion: 99, AgentID: "bot"})

	errMsg := readLine(t, reader)
	if errMsg.Type != msgTypeError || errMsg.Code != "unsupported_version" {
		t.Fatalf("expected unsupported_version error, got %+v", errMsg)
	}
	<-done
}

func TestAgentIDCollisionGetsSuffixed(t *testing.T) {
	taken := func(id string) bool { return id == "agent:bot" }
	b, _ := newTestBridge(t, taken)
	serverConn, agentConn := net.Pipe()
	defer agentConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.handleConnection(ctx, serverConn)
		close(done)
	}()

	reader := bufio.NewReader(agentConn)
	writeLine(t, agentConn, wireMessage{Type: msgTypeHello, ProtocolVersion: 1, AgentID: "bot"})
	readLine(t, reader) // welcome

	writeLine(t, agentConn, wireMessage{Type: msgTypeGoodbye})
	<-done

	cleanup := <-b.Cleanups
	if cleanup.PeerID != "agent:bot-2" {
		t.Fatalf("expected collision-suffixed peer id, got %q", cleanup.PeerID)
	}
}

func TestSendMessageEmptyContentRejected(t *testing.T) {
	b, _ := newTestBridge(t, nil)
	serverConn, agentConn := net.Pipe()
	defer agentConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.handleConnection(ctx, serverConn)
		close(done)
	}()

	reader := bufio.NewReader(agentConn)
	writeLine(t, agentConn, wireMessage{Type: msgTypeHello, ProtocolVersion: 1, AgentID: "bot"})
	readLine(t, reader) // welcome

	writeLine(t, agentConn, wireMessage{Type: msgTypeSendMessage, Content: "   "})
	errMsg := readLine(t, reader)
	if errMsg.Type != msgTypeError || errMsg.Code != "empty_message" {
		t.Fatalf("expected empty_message error, got %+v", errMsg)
	}

	writeLine(t, agentConn, wireMessage{Type: msgTypeGoodbye})
	<-done
}

func TestSendMessageForwardsOnOutboundChannel(t *testing.T) {
	b, _ := newTestBridge(t, nil)
	serverConn, agentConn := net.Pipe()
	defer agentConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.handleConnection(ctx, serverConn)
		close(done)
	}()

	reader := bufio.NewReader(agentConn)
	writeLine(t, agentConn, wireMessage{Type: msgTypeHello, ProtocolVersion: 1, AgentID: "bot", DisplayName: "Bot"})
	readLine(t, reader) // welcome

	writeLine(t, agentConn, wireMessage{Type: msgTypeSendMessage, Content: "hi there"})

	select {
	case out := <-b.Outbound:
		if out.Content != "hi there" || out.SenderPeerID != "agent:bot" {
			t.Fatalf("unexpected outbound message: %+v", out)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an outbound message")
	}

	writeLine(t, agentConn, wireMessage{Type: msgTypeGoodbye})
	<-done
}

func TestRoomEventForwardedAsRoomMessage(t *testing.T) {
	b, events := newTestBridge(t, nil)
	serverConn, agentConn := net.Pipe()
	defer agentConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.handleConnection(ctx, serverConn)
		close(done)
	}()

	reader := bufio.NewReader(agentConn)
	writeLine(t, agentConn, wireMessage{Type: msgTypeHello, ProtocolVersion: 1, AgentID: "bot"})
	readLine(t, reader) // welcome

	events <- RoomEvent{Kind: RoomEventMessage, SenderID: "alice", SenderName: "Alice", Content: "hi", Timestamp: "2026-07-30T00:00:00Z"}

	msg := readLine(t, reader)
	if msg.Type != msgTypeRoomMessage || msg.Content != "hi" || msg.SenderName != "Alice" {
		t.Fatalf("unexpected room message forward: %+v", msg)
	}

	writeLine(t, agentConn, wireMessage{Type: msgTypeGoodbye})
	<-done
}
