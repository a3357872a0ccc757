package relay

import (
	"strings"
	"sync"

	"termchat/internal/relaywire"
)

// DirectoryEntry is the relay-side room registry record.
type DirectoryEntry struct {
	RoomID      string
	Name        string
	AdminPeerID string
	MemberCount uint32
}

// RoomDirectory is the relay's thread-safe room_id -> DirectoryEntry map.
type RoomDirectory struct {
	mu      sync.RWMutex
	byID    map[string]DirectoryEntry
	maxSize int
}

func NewRoomDirectory(maxSize int) *RoomDirectory {
	if maxSize <= 0 {
		maxSize = DefaultMaxRooms
	}
	return &RoomDirectory{byID: make(map[string]DirectoryEntry), maxSize: maxSize}
}

// ErrNameConflict and ErrCapacityReached are reported via the bool
// returns below rather than as error values, matching the directory's
// use as a pure in-memory map with no I/O.

// Register inserts or updates an entry. A duplicate case-insensitive
// name is rejected unless the same room_id is re-registering (which
// overwrites). Returns false if rejected.
func (d *RoomDirectory) Register(e DirectoryEntry) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byID[e.RoomID]; !ok {
		if len(d.byID) >= d.maxSize {
			return false
		}
		lower := strings.ToLower(e.Name)
		for id, other := range d.byID {
			if id != e.RoomID && strings.ToLower(other.Name) == lower {
				return false
			}
		}
	} else {
		_ = existing
	}
	d.byID[e.RoomID] = e
	return true
}

// Unregister removes an entry, returning whether it existed.
func (d *RoomDirectory) Unregister(roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[roomID]; !ok {
		return false
	}
	delete(d.byID, roomID)
	return true
}

// AdminOf returns the admin peer ID for roomID, if registered.
func (d *RoomDirectory) AdminOf(roomID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byID[roomID]
	return e.AdminPeerID, ok
}

// Count returns the number of registered rooms.
func (d *RoomDirectory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// List returns a point-in-time snapshot of the directory.
func (d *RoomDirectory) List() []relaywire.RoomInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]relaywire.RoomInfo, 0, len(d.byID))
	for _, e := range d.byID {
		out = append(out, relaywire.RoomInfo{RoomID: e.RoomID, Name: e.Name, MemberCount: e.MemberCount})
	}
	return out
}
