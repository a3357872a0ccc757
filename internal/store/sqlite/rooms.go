package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RoomRecord is a persisted, decoupled view of a roommgr.Room: sqlite
// storage has no dependency on internal/roommgr, the same way Store's
// message methods are decoupled from internal/pipeline.Pipeline.
type RoomRecord struct {
	RoomID      uuid.UUID
	Name        string
	AdminPeerID string
	MemberCount int
	CreatedAt   uint64
}

func (s *Store) migrateRooms(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	admin_peer_id TEXT NOT NULL,
	member_count INTEGER NOT NULL,
	created_at_ms INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: run room migrations: %w", err)
	}
	return nil
}

// SaveRoom upserts a room's persisted directory row.
func (s *Store) SaveRoom(r RoomRecord) error {
	const q = `
INSERT INTO rooms (room_id, name, admin_peer_id, member_count, created_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(room_id) DO UPDATE SET name = excluded.name, member_count = excluded.member_count
`
	_, err := s.db.ExecContext(context.Background(), q,
		r.RoomID.String(), r.Name, r.AdminPeerID, r.MemberCount, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: save room: %w", err)
	}
	return nil
}

// ListRoomRecords returns every persisted room, newest first.
func (s *Store) ListRoomRecords() ([]RoomRecord, error) {
	const q = `SELECT room_id, name, admin_peer_id, member_count, created_at_ms FROM rooms ORDER BY created_at_ms DESC`
	rows, err := s.db.QueryContext(context.Background(), q)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list rooms: %w", err)
	}
	defer rows.Close()

	var out []RoomRecord
	for rows.Next() {
		var (
			roomIDStr, name, adminPeerID string
			memberCount                  int
			createdAt                    uint64
		)
		if err := rows.Scan(&roomIDStr, &name, &adminPeerID, &memberCount, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan room row: %w", err)
		}
		roomID, err := uuid.Parse(roomIDStr)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse room id: %w", err)
		}
		out = append(out, RoomRecord{
			RoomID: roomID, Name: name, AdminPeerID: adminPeerID,
			MemberCount: memberCount, CreatedAt: createdAt,
		})
	}
	return out, rows.Err()
}
