package pipeline

import "termchat/internal/codecutil"

// presencePayload is the inner message carried by an envelope's opaque
// PresenceUpdate bytes: who changed state, and to what.
type presencePayload struct {
	PeerID string
	Status string
}

func encodePresence(p presencePayload) []byte {
	w := codecutil.NewWriter()
	w.PutString(p.PeerID)
	w.PutString(p.Status)
	return w.Bytes()
}

func decodePresence(data []byte) (presencePayload, error) {
	r := codecutil.NewReader(data)
	peer, err := r.GetString()
	if err != nil {
		return presencePayload{}, err
	}
	status, err := r.GetString()
	if err != nil {
		return presencePayload{}, err
	}
	return presencePayload{PeerID: peer, Status: status}, nil
}

// typingPayload is the inner message carried by an envelope's opaque
// TypingIndicator bytes.
type typingPayload struct {
	PeerID   string
	Room     string
	IsTyping bool
}

func encodeTyping(p typingPayload) []byte {
	w := codecutil.NewWriter()
	w.PutString(p.PeerID)
	w.PutString(p.Room)
	var b byte
	if p.IsTyping {
		b = 1
	}
	w.PutByte(b)
	return w.Bytes()
}

func decodeTyping(data []byte) (typingPayload, error) {
	r := codecutil.NewReader(data)
	peer, err := r.GetString()
	if err != nil {
		return typingPayload{}, err
	}
	room, err := r.GetString()
	if err != nil {
		return typingPayload{}, err
	}
	b, err := r.GetByte()
	if err != nil {
		return typingPayload{}, err
	}
	return typingPayload{PeerID: peer, Room: room, IsTyping: b != 0}, nil
}
