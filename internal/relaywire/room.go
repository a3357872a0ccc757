package relaywire

import "termchat/internal/codecutil"

// RoomKind tags a RoomMessage's active variant.
type RoomKind uint8

const (
	RoomKindRegisterRoom RoomKind = iota
	RoomKindUnregisterRoom
	RoomKindListRooms
	RoomKindRoomList
	RoomKindJoinRequest
	RoomKindJoinApproved
	RoomKindJoinDenied
	RoomKindMembershipUpdate
)

// MemberAction tags a MembershipUpdate's kind of change.
type MemberAction uint8

const (
	MemberJoined MemberAction = iota
	MemberLeft
	MemberPromoted
	MemberDemoted
)

// MemberInfo describes one room member on the wire. IsAgent defaults to
// false when absent, for forward compatibility with payloads that
// predate agent support.
type MemberInfo struct {
	PeerID      string
	DisplayName string
	IsAdmin     bool
	IsAgent     bool
}

// RoomInfo is a directory listing entry.
type RoomInfo struct {
	RoomID      string
	Name        string
	MemberCount uint32
}

// RoomMessage is the room protocol, carried inside RelayMessage.Room
// frames.
type RoomMessage struct {
	Kind RoomKind

	// RegisterRoom
	RoomID       string
	Name         string
	AdminPeerID  string

	// ListRooms: no fields.

	// RoomList
	Rooms []RoomInfo

	// JoinRequest
	JoinPeerID     string
	JoinDisplayName string

	// JoinApproved / JoinDenied
	TargetPeerID string
	Members      []MemberInfo
	DenyReason   string

	// MembershipUpdate
	Action             MemberAction
	MemberPeerID       string
	MemberDisplayName  string
}

func EncodeRoom(m RoomMessage) ([]byte, error) {
	w := codecutil.NewWriter()
	w.PutByte(byte(m.Kind))
	switch m.Kind {
	case RoomKindRegisterRoom:
		w.PutString(m.RoomID)
		w.PutString(m.Name)
		w.PutString(m.AdminPeerID)
	case RoomKindUnregisterRoom:
		w.PutString(m.RoomID)
	case RoomKindListRooms:
		// no fields
	case RoomKindRoomList:
		w.PutUvarint(uint64(len(m.Rooms)))
		for _, ri := range m.Rooms {
			w.PutString(ri.RoomID)
			w.PutString(ri.Name)
			w.PutUvarint(uint64(ri.MemberCount))
		}
	case RoomKindJoinRequest:
		w.PutString(m.RoomID)
		w.PutString(m.JoinPeerID)
		w.PutString(m.JoinDisplayName)
	case RoomKindJoinApproved:
		w.PutString(m.RoomID)
		w.PutString(m.Name)
		w.PutUvarint(uint64(len(m.Members)))
		for _, mi := range m.Members {
			putMemberInfo(w, mi)
		}
		w.PutString(m.TargetPeerID)
	case RoomKindJoinDenied:
		w.PutString(m.RoomID)
		w.PutString(m.DenyReason)
		w.PutString(m.TargetPeerID)
	case RoomKindMembershipUpdate:
		w.PutString(m.RoomID)
		w.PutByte(byte(m.Action))
		w.PutString(m.MemberPeerID)
		w.PutString(m.MemberDisplayName)
	}
	return w.Bytes(), w.Err()
}

func putMemberInfo(w *codecutil.Writer, mi MemberInfo) {
	w.PutString(mi.PeerID)
	w.PutString(mi.DisplayName)
	admin := byte(0)
	if mi.IsAdmin {
		admin = 1
	}
	agent := byte(0)
	if mi.IsAgent {
		agent = 1
	}
	w.PutByte(admin)
	w.PutByte(agent)
}

func getMemberInfo(r *codecutil.Reader) (MemberInfo, error) {
	var mi MemberInfo
	var err error
	if mi.PeerID, err = r.GetString(); err != nil {
		return mi, err
	}
	if mi.DisplayName, err = r.GetString(); err != nil {
		return mi, err
	}
	admin, err := r.GetByte()
	if err != nil {
		return mi, err
	}
	mi.IsAdmin = admin != 0
	// IsAgent defaults to false when the buffer ends right after the
	// admin byte; GetByte returning an error here just means we are at
	// end-of-input, which is treated the same as "false". If more bytes
	// follow, the next byte is read as the is_agent flag.
	agent, err := r.GetByte()
	if err == nil {
		mi.IsAgent = agent != 0
	}
	return mi, nil
}

func DecodeRoom(data []byte) (RoomMessage, error) {
	r := codecutil.NewReader(data)
	tag, err := r.GetByte()
	if err != nil {
		return RoomMessage{}, err
	}
	m := RoomMessage{Kind: RoomKind(tag)}
	switch m.Kind {
	case RoomKindRegisterRoom:
		if m.RoomID, err = r.GetString(); err != nil {
			break
		}
		if m.Name, err = r.GetString(); err != nil {
			break
		}
		m.AdminPeerID, err = r.GetString()
	case RoomKindUnregisterRoom:
		m.RoomID, err = r.GetString()
	case RoomKindListRooms:
		// no fields
	case RoomKindRoomList:
		var n uint64
		n, err = r.GetUvarint()
		for i := uint64(0); err == nil && i < n; i++ {
			var ri RoomInfo
			if ri.RoomID, err = r.GetString(); err != nil {
				break
			}
			if ri.Name, err = r.GetString(); err != nil {
				break
			}
			var cnt uint64
			cnt, err = r.GetUvarint()
			ri.MemberCount = uint32(cnt)
			m.Rooms = append(m.Rooms, ri)
		}
	case RoomKindJoinRequest:
		if m.RoomID, err = r.GetString(); err != nil {
			break
		}
		if m.JoinPeerID, err = r.GetString(); err != nil {
			break
		}
		m.JoinDisplayName, err = r.GetString()
	case RoomKindJoinApproved:
		if m.RoomID, err = r.GetString(); err != nil {
			break
		}
		if m.Name, err = r.GetString(); err != nil {
			break
		}
		var n uint64
		n, err = r.GetUvarint()
		for i := uint64(0); err == nil && i < n; i++ {
			var mi MemberInfo
			mi, err = getMemberInfo(r)
			m.Members = append(m.Members, mi)
		}
		if err != nil {
			break
		}
		m.TargetPeerID, err = r.GetString()
	case RoomKindJoinDenied:
		if m.RoomID, err = r.GetString(); err != nil {
			break
		}
		if m.DenyReason, err = r.GetString(); err != nil {
			break
		}
		m.TargetPeerID, err = r.GetString()
	case RoomKindMembershipUpdate:
		if m.RoomID, err = r.GetString(); err != nil {
			break
		}
		var action byte
		action, err = r.GetByte()
		m.Action = MemberAction(action)
		if err != nil {
			break
		}
		if m.MemberPeerID, err = r.GetString(); err != nil {
			break
		}
		m.MemberDisplayName, err = r.GetString()
	default:
		return RoomMessage{}, codecutil.ErrUnknownTag(tag)
	}
	if err != nil {
		return RoomMessage{}, err
	}
	return m, nil
}
