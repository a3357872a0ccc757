// Package bridge implements the agent bridge: a Unix domain socket,
// one per active agent integration, speaking newline-delimited JSON.
// Grounded on server/internal/ws/handler.go's connection-lifecycle
// shape (accept -> handshake -> writer goroutine draining a channel ->
// read loop dispatch), transplanted from a WebSocket listener onto a
// net.Listen("unix", ...) listener, and on client/transport.go's
// pingLoop/pongTimeout heartbeat pattern.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPingInterval and DefaultPongTimeout match spec defaults.
const (
	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 30 * time.Second
)

// Reason tags why a connection's participant loop exited.
type Reason string

const (
	ReasonGoodbye          Reason = "goodbye"
	ReasonBrokenPipe       Reason = "broken_pipe"
	ReasonRoomClosed       Reason = "room_closed"
	ReasonHeartbeatTimeout Reason = "heartbeat_timeout"
	ReasonConnectionClosed Reason = "connection_closed"
	ReasonProtocolError    Reason = "protocol_error"
)

// CleanupContext is returned to the caller on every connection exit so
// it can remove the synthetic member, broadcast MemberLeft, abort the
// heartbeat, and (if this was the last bridge) remove the socket file.
type CleanupContext struct {
	Reason      Reason
	RoomID      string
	PeerID      string
	DisplayName string
}

// RoomEventKind tags a RoomEvent's variant.
type RoomEventKind int

const (
	RoomEventMessage RoomEventKind = iota
	RoomEventMembership
)

// RoomEvent is pushed from the room's broadcast channel to a connected
// agent.
type RoomEvent struct {
	Kind RoomEventKind

	SenderID   string
	SenderName string
	Content    string
	Timestamp  string

	Action      MembershipAction
	PeerID      string
	DisplayName string
	IsAgent     bool
}

// OutboundAgentMessage is emitted on the bridge's outbound channel for
// the application layer to fan out (encrypted, per member).
type OutboundAgentMessage struct {
	RoomID            string
	SenderPeerID      string
	SenderDisplayName string
	Content           string
}

// RoomBinding supplies the bridge with everything it needs from the
// room it is attached to, without depending on internal/roommgr
// directly -- the caller wires roommgr.Manager (or any other source)
// through this narrow interface.
type RoomBinding struct {
	RoomID      string
	RoomName    string
	Members     func() []BridgeMemberInfo
	History     func() []BridgeHistoryEntry
	PeerIDTaken func(peerID string) bool
	Events      <-chan RoomEvent
}

// Config configures one Bridge instance.
type Config struct {
	SocketPath   string
	PingInterval time.Duration
	PongTimeout  time.Duration
	Room         RoomBinding
	Log          *slog.Logger
}

// Bridge owns one Unix socket listener and enforces single-connection
// discipline over it.
type Bridge struct {
	cfg      Config
	listener net.Listener
	log      *slog.Logger

	active     atomic.Bool
	Outbound   chan OutboundAgentMessage
	Cleanups   chan CleanupContext
}

// Listen creates the socket's parent directory (0700), removes any
// stale socket at the path, and binds a listener.
func Listen(cfg Config) (*Bridge, error) {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = DefaultPongTimeout
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	dir := filepath.Dir(cfg.SocketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("bridge: create socket directory: %w", err)
	}
	if err := removeStaleSocket(cfg.SocketPath); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("bridge: listen on %s: %w", cfg.SocketPath, err)
	}

	return &Bridge{
		cfg:      cfg,
		listener: ln,
		log:      cfg.Log,
		Outbound: make(chan OutboundAgentMessage, 64),
		Cleanups: make(chan CleanupContext, 8),
	}, nil
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("bridge: remove stale socket: %w", err)
		}
	}
	return nil
}

// Close removes the socket file and closes the listener.
func (b *Bridge) Close() error {
	err := b.listener.Close()
	os.Remove(b.cfg.SocketPath)
	return err
}

// Serve accepts connections until ctx is cancelled. At most one agent
// may be attached at a time; any further connection received while one
// is active is told already_connected and closed immediately (the
// "reject loop").
func (b *Bridge) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.listener.Close()
	}()

	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bridge: accept: %w", err)
		}

		if !b.active.CompareAndSwap(false, true) {
			b.rejectAlreadyConnected(conn)
			continue
		}

		go func() {
			defer b.active.Store(false)
			b.handleConnection(ctx, conn)
		}()
	}
}

func (b *Bridge) rejectAlreadyConnected(conn net.Conn) {
	defer conn.Close()
	line, _ := json.Marshal(wireMessage{Type: msgTypeError, Code: "already_connected"})
	conn.Write(append(line, '\n'))
}

func (b *Bridge) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var writeMu sync.Mutex
	writeLine := func(msg wireMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		line, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		_, err = conn.Write(append(line, '\n'))
		return err
	}

	reader := bufio.NewReader(conn)

	peerID, displayName, cleanup := b.handshake(reader, writeLine)
	if cleanup != nil {
		b.Cleanups <- *cleanup
		return
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pongCh := make(chan struct{}, 1)
	heartbeatTimeout := make(chan struct{})
	go b.runHeartbeat(connCtx, writeLine, pongCh, heartbeatTimeout)

	linesCh := make(chan wireMessage)
	readErrCh := make(chan error, 1)
	go func() {
		for {
			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				var msg wireMessage
				if jsonErr := json.Unmarshal(bytes.TrimSpace(line), &msg); jsonErr == nil {
					select {
					case linesCh <- msg:
					case <-connCtx.Done():
						return
					}
				}
			}
			if err != nil {
				readErrCh <- err
				return
			}
		}
	}()

	reason := b.participantLoop(connCtx, writeLine, linesCh, readErrCh, pongCh, heartbeatTimeout, peerID, displayName)
	b.Cleanups <- CleanupContext{Reason: reason, RoomID: b.cfg.Room.RoomID, PeerID: peerID, DisplayName: displayName}
}

// handshake waits for Hello, validates it, allocates a synthetic peer
// ID, and replies with Welcome. On any failure it writes the
// appropriate Error and returns a non-nil CleanupContext.
func (b *Bridge) handshake(reader *bufio.Reader, writeLine func(wireMessage) error) (peerID, displayName string, cleanup *CleanupContext) {
	if len(b.cfg.Room.Members()) >= MaxRoomMembers {
		writeLine(wireMessage{Type: msgTypeError, Code: "room_full"})
		return "", "", &CleanupContext{Reason: ReasonProtocolError, RoomID: b.cfg.Room.RoomID}
	}

	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return "", "", &CleanupContext{Reason: ReasonBrokenPipe, RoomID: b.cfg.Room.RoomID}
	}

	var hello wireMessage
	if jsonErr := json.Unmarshal(bytes.TrimSpace(line), &hello); jsonErr != nil || hello.Type != msgTypeHello {
		writeLine(wireMessage{Type: msgTypeError, Code: "invalid_hello"})
		return "", "", &CleanupContext{Reason: ReasonProtocolError, RoomID: b.cfg.Room.RoomID}
	}
	if hello.ProtocolVersion != protocolVersion {
		writeLine(wireMessage{Type: msgTypeError, Code: "unsupported_version"})
		return "", "", &CleanupContext{Reason: ReasonProtocolError, RoomID: b.cfg.Room.RoomID}
	}

	agentID := sanitizeAgentID(hello.AgentID)
	if agentID == "" {
		writeLine(wireMessage{Type: msgTypeError, Code: "invalid_agent_id"})
		return "", "", &CleanupContext{Reason: ReasonProtocolError, RoomID: b.cfg.Room.RoomID}
	}

	peerID = allocateSyntheticPeerID(agentID, b.cfg.Room.PeerIDTaken)
	displayName = hello.DisplayName
	if displayName == "" {
		displayName = agentID
	}

	if err := writeLine(wireMessage{
		Type:     msgTypeWelcome,
		RoomID:   b.cfg.Room.RoomID,
		RoomName: b.cfg.Room.RoomName,
		Members:  b.cfg.Room.Members(),
		History:  b.cfg.Room.History(),
	}); err != nil {
		return "", "", &CleanupContext{Reason: ReasonBrokenPipe, RoomID: b.cfg.Room.RoomID}
	}

	return peerID, displayName, nil
}

func sanitizeAgentID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	clean := strings.TrimSpace(b.String())
	if len(clean) > MaxAgentIDLength {
		clean = clean[:MaxAgentIDLength]
	}
	return clean
}

func allocateSyntheticPeerID(agentID string, taken func(string) bool) string {
	candidate := "agent:" + agentID
	if taken == nil || !taken(candidate) {
		return candidate
	}
	for i := 2; ; i++ {
		next := fmt.Sprintf("%s-%d", candidate, i)
		if !taken(next) {
			return next
		}
	}
}

// participantLoop runs the select-based event loop over the socket
// reader and the room's broadcast channel until a terminal condition.
func (b *Bridge) participantLoop(
	ctx context.Context,
	writeLine func(wireMessage) error,
	linesCh <-chan wireMessage,
	readErrCh <-chan error,
	pongCh chan<- struct{},
	heartbeatTimeout <-chan struct{},
	peerID, displayName string,
) Reason {
	for {
		select {
		case <-ctx.Done():
			return ReasonConnectionClosed

		case <-heartbeatTimeout:
			return ReasonHeartbeatTimeout

		case err := <-readErrCh:
			_ = err
			return ReasonBrokenPipe

		case msg, ok := <-linesCh:
			if !ok {
				return ReasonBrokenPipe
			}
			if reason, done := b.handleInbound(msg, writeLine, pongCh, peerID, displayName); done {
				return reason
			}

		case ev, ok := <-b.cfg.Room.Events:
			if !ok {
				return ReasonRoomClosed
			}
			b.forwardRoomEvent(ev, writeLine)
		}
	}
}

func (b *Bridge) handleInbound(msg wireMessage, writeLine func(wireMessage) error, pongCh chan<- struct{}, peerID, displayName string) (Reason, bool) {
	switch msg.Type {
	case msgTypeSendMessage:
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			writeLine(wireMessage{Type: msgTypeError, Code: "empty_message"})
			return "", false
		}
		if len(content) > MaxContentBytes {
			writeLine(wireMessage{Type: msgTypeError, Code: "message_too_large"})
			return "", false
		}
		select {
		case b.Outbound <- OutboundAgentMessage{RoomID: b.cfg.Room.RoomID, SenderPeerID: peerID, SenderDisplayName: displayName, Content: content}:
		default:
			writeLine(wireMessage{Type: msgTypeError, Code: "not_ready"})
		}
		return "", false
	case msgTypeGoodbye:
		return ReasonGoodbye, true
	case msgTypePong:
		select {
		case pongCh <- struct{}{}:
		default:
		}
		return "", false
	case msgTypeHello:
		writeLine(wireMessage{Type: msgTypeError, Code: "protocol_error"})
		return "", false
	default:
		writeLine(wireMessage{Type: msgTypeError, Code: "protocol_error"})
		return "", false
	}
}

func (b *Bridge) forwardRoomEvent(ev RoomEvent, writeLine func(wireMessage) error) {
	switch ev.Kind {
	case RoomEventMessage:
		writeLine(wireMessage{
			Type: msgTypeRoomMessage, SenderID: ev.SenderID, SenderName: ev.SenderName,
			Content: ev.Content, Timestamp: ev.Timestamp,
		})
	case RoomEventMembership:
		writeLine(wireMessage{
			Type: msgTypeMembership, Action: string(ev.Action), PeerID: ev.PeerID,
			DisplayName: ev.DisplayName, IsAgent: ev.IsAgent,
		})
	}
}

// runHeartbeat alternately sends Ping and waits for a Pong signal,
// closing timeoutCh if one does not arrive within PongTimeout.
func (b *Bridge) runHeartbeat(ctx context.Context, writeLine func(wireMessage) error, pongCh <-chan struct{}, timeoutCh chan<- struct{}) {
	ticker := time.NewTicker(b.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeLine(wireMessage{Type: msgTypePing}); err != nil {
				return
			}
			select {
			case <-pongCh:
			case <-time.After(b.cfg.PongTimeout):
				close(timeoutCh)
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
