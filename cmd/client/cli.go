package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"termchat/internal/roommgr"
	"termchat/internal/store/sqlite"
)

// RunCLI handles subcommand execution, grounded on the teacher's
// server/cli.go RunCLI(args, dbPath) dispatch. Returns true if a
// subcommand was handled.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Println("termchat client 0.1.0")
		return true
	case "new-conversation":
		id := uuid.Must(uuid.NewV7())
		fmt.Println(id.String())
		return true
	case "rooms":
		return cliRooms(args[1:], dbPath)
	case "history":
		return cliHistory(args[1:], dbPath)
	default:
		return false
	}
}

func openCLIStore(dbPath string) *sqlite.Store {
	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "[client] -db is required for this subcommand")
		os.Exit(1)
	}
	st, err := sqlite.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[client] open database: %v\n", err)
		os.Exit(1)
	}
	return st
}

func cliRooms(args []string, dbPath string) bool {
	st := openCLIStore(dbPath)
	defer st.Close()

	if len(args) == 0 || args[0] == "list" {
		rooms, err := st.ListRoomRecords()
		if err != nil {
			fmt.Fprintf(os.Stderr, "[client] list rooms: %v\n", err)
			os.Exit(1)
		}
		if len(rooms) == 0 {
			fmt.Println("No rooms found.")
			return true
		}
		for _, r := range rooms {
			fmt.Printf("  %s  %-24s admin=%s members=%d\n", r.RoomID, r.Name, r.AdminPeerID, r.MemberCount)
		}
		return true
	}

	if args[0] == "create" && len(args) > 2 {
		name, adminPeerID := args[1], args[2]
		adminDisplayName := adminPeerID
		if len(args) > 3 {
			adminDisplayName = args[3]
		}
		rm := roommgr.NewManager(func() uint64 { return uint64(time.Now().UnixMilli()) })
		room, _, err := rm.CreateRoom(name, adminPeerID, adminDisplayName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[client] create room: %v\n", err)
			os.Exit(1)
		}
		if err := st.SaveRoom(sqlite.RoomRecord{
			RoomID: room.RoomID, Name: room.Name, AdminPeerID: adminPeerID,
			MemberCount: len(room.Members), CreatedAt: room.CreatedAt,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "[client] save room: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created room %q (id=%s)\n", room.Name, room.RoomID)
		return true
	}

	fmt.Fprintln(os.Stderr, "Usage: client rooms [list|create <name> <admin-peer-id> [admin-display-name]]")
	os.Exit(1)
	return true
}

func cliHistory(args []string, dbPath string) bool {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: client history <conversation-id>")
		os.Exit(1)
	}
	convID, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "[client] invalid conversation id: %v\n", err)
		os.Exit(1)
	}

	st := openCLIStore(dbPath)
	defer st.Close()

	messages, err := st.GetConversation(convID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[client] get conversation: %v\n", err)
		os.Exit(1)
	}
	if len(messages) == 0 {
		fmt.Println("No messages found.")
		return true
	}
	for _, m := range messages {
		ts := time.UnixMilli(int64(m.Timestamp)).Format(time.RFC3339)
		fmt.Printf("[%s] %s: %s (%s)\n", ts, m.SenderID, m.Text, m.Status)
	}
	return true
}
