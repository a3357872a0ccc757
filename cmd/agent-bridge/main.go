// Command agent-bridge hosts a single internal/bridge listener against
// a room owned by an internal/roommgr.Manager, for local integration
// testing and standalone agent connections without a full client
// process attached.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	"termchat/internal/bridge"
	"termchat/internal/roommgr"
)

func nowMillis() uint64 { return uint64(time.Now().UnixMilli()) }

func main() {
	socketPath := flag.String("socket", "/tmp/termchat/agent-bridge.sock", "Unix domain socket path")
	roomName := flag.String("room-name", "bridge-room", "room display name")
	adminPeerID := flag.String("admin-peer-id", "bridge-admin", "peer id of the room's admin")
	adminDisplayName := flag.String("admin-display-name", "bridge-admin", "display name of the room's admin")
	flag.Parse()

	rm := roommgr.NewManager(nowMillis)
	room, _, err := rm.CreateRoom(*roomName, *adminPeerID, *adminDisplayName)
	if err != nil {
		log.Fatalf("[agent-bridge] create room: %v", err)
	}

	cfg := bridge.Config{
		SocketPath: *socketPath,
		Room:       roomBinding(rm, room.RoomID),
	}

	b, err := bridge.Listen(cfg)
	if err != nil {
		log.Fatalf("[agent-bridge] %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[agent-bridge] shutting down...")
		cancel()
	}()

	go func() {
		for out := range b.Outbound {
			log.Printf("[agent-bridge] outbound message from %s: %s", out.SenderPeerID, out.Content)
		}
	}()

	go func() {
		for cleanup := range b.Cleanups {
			log.Printf("[agent-bridge] connection closed: reason=%s peer=%s", cleanup.Reason, cleanup.PeerID)
		}
	}()

	log.Printf("[agent-bridge] listening on %s (room %q, id %s)", *socketPath, room.Name, room.RoomID)
	if err := b.Serve(ctx); err != nil {
		log.Fatalf("[agent-bridge] %v", err)
	}
}

// roomBinding adapts an internal/roommgr.Manager's one room into the
// narrow bridge.RoomBinding interface. This binary has no other peer
// source wired in, so the membership event channel never fires --
// membership changes originate only from a full client's relay
// connection, not a standalone bridge host.
func roomBinding(rm *roommgr.Manager, roomID uuid.UUID) bridge.RoomBinding {
	room, _ := rm.GetRoom(roomID)
	return bridge.RoomBinding{
		RoomID:   roomID.String(),
		RoomName: room.Name,
		Members: func() []bridge.BridgeMemberInfo {
			members, _ := rm.GetRoomMembers(roomID)
			out := make([]bridge.BridgeMemberInfo, len(members))
			for i, m := range members {
				out[i] = bridge.BridgeMemberInfo{
					PeerID: m.PeerID, DisplayName: m.DisplayName, IsAdmin: m.IsAdmin, IsAgent: m.IsAgent,
				}
			}
			return out
		},
		History: func() []bridge.BridgeHistoryEntry { return nil },
		PeerIDTaken: func(id string) bool {
			members, _ := rm.GetRoomMembers(roomID)
			for _, m := range members {
				if m.PeerID == id {
					return true
				}
			}
			return false
		},
		Events: make(chan bridge.RoomEvent),
	}
}
