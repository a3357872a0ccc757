// Package relaywire implements the relay and room wire protocols shared
// by the relay server and the relay WebSocket transport client: the
// RelayMessage sum type (Register/Registered/RelayPayload/Queued/Error/
// Room) and, nested inside Room frames, the RoomMessage sum type
// (RegisterRoom/UnregisterRoom/ListRooms/RoomList/JoinRequest/
// JoinApproved/JoinDenied/MembershipUpdate).
package relaywire

import "termchat/internal/codecutil"

// RelayKind tags a RelayMessage's active variant.
type RelayKind uint8

const (
	RelayKindRegister RelayKind = iota
	RelayKindRegistered
	RelayKindPayload
	RelayKindQueued
	RelayKindError
	RelayKindRoom
)

// RelayMessage is exchanged between relay clients and the relay server.
// The relay never inspects Payload contents -- it only reads routing
// metadata (From/To).
type RelayMessage struct {
	Kind RelayKind

	PeerID string // Register, Registered

	From    string // RelayPayload; overwritten server-side
	To      string // RelayPayload, Queued
	Payload []byte // RelayPayload

	QueuedCount uint32 // Queued

	ErrorReason string // Error

	RoomBytes []byte // Room: nested postcard-encoded RoomMessage
}

func EncodeRelay(m RelayMessage) ([]byte, error) {
	w := codecutil.NewWriter()
	w.PutByte(byte(m.Kind))
	switch m.Kind {
	case RelayKindRegister, RelayKindRegistered:
		w.PutString(m.PeerID)
	case RelayKindPayload:
		w.PutString(m.From)
		w.PutString(m.To)
		w.PutBytes(m.Payload)
	case RelayKindQueued:
		w.PutString(m.To)
		w.PutUvarint(uint64(m.QueuedCount))
	case RelayKindError:
		w.PutString(m.ErrorReason)
	case RelayKindRoom:
		w.PutBytes(m.RoomBytes)
	}
	return w.Bytes(), w.Err()
}

func DecodeRelay(data []byte) (RelayMessage, error) {
	r := codecutil.NewReader(data)
	tag, err := r.GetByte()
	if err != nil {
		return RelayMessage{}, err
	}
	m := RelayMessage{Kind: RelayKind(tag)}
	switch m.Kind {
	case RelayKindRegister, RelayKindRegistered:
		m.PeerID, err = r.GetString()
	case RelayKindPayload:
		if m.From, err = r.GetString(); err != nil {
			break
		}
		if m.To, err = r.GetString(); err != nil {
			break
		}
		m.Payload, err = r.GetBytesCopy()
	case RelayKindQueued:
		if m.To, err = r.GetString(); err != nil {
			break
		}
		var cnt uint64
		cnt, err = r.GetUvarint()
		m.QueuedCount = uint32(cnt)
	case RelayKindError:
		m.ErrorReason, err = r.GetString()
	case RelayKindRoom:
		m.RoomBytes, err = r.GetBytesCopy()
	default:
		return RelayMessage{}, codecutil.ErrUnknownTag(tag)
	}
	if err != nil {
		return RelayMessage{}, err
	}
	return m, nil
}
