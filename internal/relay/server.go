package relay

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"termchat/internal/relaywire"
)

// Config governs the relay's runtime limits. Loaded from flags at the
// cmd/relay bootstrap layer, not a layered config file (out of scope).
type Config struct {
	MaxOfflineQueue int
	MaxRooms        int
	MaxPayloadBytes int
}

func DefaultConfig() Config {
	return Config{
		MaxOfflineQueue: DefaultMaxOfflineQueue,
		MaxRooms:        DefaultMaxRooms,
		MaxPayloadBytes: DefaultMaxPayloadBytes,
	}
}

// Server owns the peer registry and room directory and serves the relay
// WebSocket endpoint.
type Server struct {
	cfg      Config
	bindAddr string
	peers    *PeerRegistry
	rooms    *RoomDirectory
	upgrader websocket.Upgrader

	log *slog.Logger
}

func NewServer(cfg Config) *Server {
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	return &Server{
		cfg:   cfg,
		peers: NewPeerRegistry(cfg.MaxOfflineQueue),
		rooms: NewRoomDirectory(cfg.MaxRooms),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		log: slog.Default().With("component", "relay"),
	}
}

// StatusReport is the JSON body served at /status, and the CLI status
// subcommand's parsed response.
type StatusReport struct {
	BindAddr  string `json:"bind_addr"`
	PeerCount int    `json:"peer_count"`
	RoomCount int    `json:"room_count"`
}

// Register binds the relay's WebSocket and status routes on an Echo
// router. bindAddr is recorded for inclusion in StatusReport.
func (s *Server) Register(e *echo.Echo, bindAddr string) {
	s.bindAddr = bindAddr
	e.GET("/relay", s.handleWebSocket)
	e.GET("/status", s.handleStatus)
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusReport{
		BindAddr:  s.bindAddr,
		PeerCount: s.peers.Count(),
		RoomCount: s.rooms.Count(),
	})
}

func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Error("upgrade failed", "err", err)
		return err
	}
	s.serveConn(conn)
	return nil
}

func (s *Server) serveConn(conn *websocket.Conn) {
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	if err != nil {
		s.log.Debug("read first frame failed", "err", err)
		return
	}
	first, err := relaywire.DecodeRelay(data)
	if err != nil || first.Kind != relaywire.RelayKindRegister || first.PeerID == "" {
		s.log.Debug("first frame was not a valid register", "err", err)
		return
	}
	peerID := first.PeerID

	out, queued := s.peers.Register(peerID)
	s.log.Info("peer registered", "peer_id", peerID)

	ackBytes, err := relaywire.EncodeRelay(relaywire.RelayMessage{Kind: relaywire.RelayKindRegistered, PeerID: peerID})
	if err == nil {
		conn.WriteMessage(websocket.BinaryMessage, ackBytes)
	}

	done := make(chan struct{})
	go s.writerLoop(conn, out, done)

	s.peers.DrainOffline(peerID, out, queued)

	s.readerLoop(conn, peerID, out)

	close(done)
	s.peers.Unregister(peerID, out)
	s.log.Info("peer disconnected", "peer_id", peerID)
}

func (s *Server) writerLoop(conn *websocket.Conn, out chan []byte, done chan struct{}) {
	for {
		select {
		case frame, ok := <-out:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) readerLoop(conn *websocket.Conn, peerID string, out chan []byte) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := relaywire.DecodeRelay(data)
		if err != nil {
			s.log.Warn("malformed frame, dropping connection", "peer_id", peerID, "err", err)
			return
		}
		switch msg.Kind {
		case relaywire.RelayKindPayload:
			s.handlePayload(peerID, msg, out)
		case relaywire.RelayKindRoom:
			s.handleRoom(peerID, msg.RoomBytes, out)
		}
	}
}

func (s *Server) handlePayload(senderPeerID string, msg relaywire.RelayMessage, out chan []byte) {
	if len(msg.Payload) > s.cfg.MaxPayloadBytes {
		errFrame, _ := relaywire.EncodeRelay(relaywire.RelayMessage{
			Kind:        relaywire.RelayKindError,
			ErrorReason: "payload too large",
		})
		out <- errFrame
		return
	}

	// Server-side sender attestation: From is always overwritten with
	// the sender's registered peer ID, never trusted from the wire.
	result := s.peers.RoutePayload(senderPeerID, msg.To, msg.Payload)
	if result.Queued {
		qFrame, _ := relaywire.EncodeRelay(relaywire.RelayMessage{
			Kind:        relaywire.RelayKindQueued,
			To:          msg.To,
			QueuedCount: uint32(result.QueuedCount),
		})
		out <- qFrame
	}
}

func (s *Server) handleRoom(senderPeerID string, roomBytes []byte, out chan []byte) {
	msg, err := relaywire.DecodeRoom(roomBytes)
	if err != nil {
		s.log.Warn("malformed room frame", "peer_id", senderPeerID, "err", err)
		return
	}

	switch msg.Kind {
	case relaywire.RoomKindRegisterRoom:
		s.rooms.Register(DirectoryEntry{RoomID: msg.RoomID, Name: msg.Name, AdminPeerID: msg.AdminPeerID})
		s.echoRoom(out, msg)

	case relaywire.RoomKindUnregisterRoom:
		s.rooms.Unregister(msg.RoomID)

	case relaywire.RoomKindListRooms:
		reply := relaywire.RoomMessage{Kind: relaywire.RoomKindRoomList, Rooms: s.rooms.List()}
		s.echoRoom(out, reply)

	case relaywire.RoomKindJoinRequest:
		admin, ok := s.rooms.AdminOf(msg.RoomID)
		if !ok {
			return
		}
		s.routeRoomBytes(senderPeerID, admin, roomBytes)

	case relaywire.RoomKindJoinApproved, relaywire.RoomKindJoinDenied:
		s.routeRoomBytes(senderPeerID, msg.TargetPeerID, roomBytes)

	case relaywire.RoomKindMembershipUpdate, relaywire.RoomKindRoomList:
		// No-op server-side: client-originated broadcasts or
		// server-to-client responses only.
	}
}

func (s *Server) echoRoom(out chan []byte, msg relaywire.RoomMessage) {
	inner, err := relaywire.EncodeRoom(msg)
	if err != nil {
		return
	}
	frame, err := relaywire.EncodeRelay(relaywire.RelayMessage{Kind: relaywire.RelayKindRoom, RoomBytes: inner})
	if err != nil {
		return
	}
	out <- frame
}

// routeRoomBytes delivers the full RelayMessage::Room(bytes) wire form
// to target, queuing it unmodified if target is offline -- so the
// recipient sees the same wire form on reconnect.
func (s *Server) routeRoomBytes(senderPeerID, target string, roomBytes []byte) {
	frame, err := relaywire.EncodeRelay(relaywire.RelayMessage{Kind: relaywire.RelayKindRoom, RoomBytes: roomBytes})
	if err != nil {
		return
	}
	out, ok := s.peers.lookup(target)
	if !ok {
		s.peers.EnqueueOfflineFrame(target, senderPeerID, frame)
		return
	}
	select {
	case out <- frame:
	default:
		s.peers.Unregister(target, out)
		s.peers.EnqueueOfflineFrame(target, senderPeerID, frame)
	}
}

// Shutdown closes every registered peer's session, unblocking their
// writer goroutines so each connection's serveConn loop terminates. The
// underlying HTTP server's own lifecycle (echo.Echo) is managed by the
// cmd/relay bootstrap.
func (s *Server) Shutdown() {
	s.log.Info("relay shutting down")
	s.peers.CloseAll()
}
