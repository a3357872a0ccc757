package codec

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// writer accumulates a postcard-equivalent byte stream: LEB128 varints
// for unsigned integers, length-prefixed byte strings, raw bytes for
// fixed-width fields (UUIDs).
type writer struct {
	buf []byte
}

func (w *writer) putUvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *writer) putBytes(b []byte) {
	w.putUvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) putString(s string) {
	w.putBytes([]byte(s))
}

func (w *writer) putUUID(u uuid.UUID) {
	w.buf = append(w.buf, u[:]...)
}

func (w *writer) putByte(b byte) {
	w.buf = append(w.buf, b)
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) getByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, serErr("unexpected end of input reading tag byte")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) getUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, serErr("malformed or truncated varint")
	}
	r.pos += n
	return v, nil
}

func (r *reader) getBytes() ([]byte, error) {
	n, err := r.getUvarint()
	if err != nil {
		return nil, err
	}
	if uint64(r.remaining()) < n {
		return nil, serErr("length-prefixed field claims %d bytes, only %d available", n, r.remaining())
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *reader) getString() (string, error) {
	b, err := r.getBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) getUUID() (uuid.UUID, error) {
	if r.remaining() < 16 {
		return uuid.Nil, serErr("unexpected end of input reading uuid")
	}
	var u uuid.UUID
	copy(u[:], r.buf[r.pos:r.pos+16])
	r.pos += 16
	return u, nil
}

// Encode serializes an Envelope into its tagged binary form.
func Encode(e Envelope) ([]byte, error) {
	w := &writer{}
	w.putByte(byte(e.Kind))
	switch e.Kind {
	case KindChat:
		w.putUUID(e.Chat.MessageID)
		w.putUvarint(e.Chat.Timestamp)
		w.putString(e.Chat.SenderID)
		w.putUUID(e.Chat.ConversationID)
		w.putString(e.Chat.Text)
	case KindAck:
		w.putUUID(e.Ack.MessageID)
		w.putUvarint(e.Ack.Timestamp)
	case KindNack:
		w.putUUID(e.Nack.MessageID)
		w.putByte(byte(e.Nack.Reason))
		w.putString(e.Nack.Detail)
	case KindHandshake:
		w.putBytes(e.Handshake)
	case KindPresenceUpdate:
		w.putBytes(e.PresenceUpdate)
	case KindTypingIndicator:
		w.putBytes(e.TypingIndicator)
	case KindTaskSync:
		w.putBytes(e.TaskSync)
	default:
		return nil, serErr("unknown envelope kind %d", e.Kind)
	}
	if len(w.buf) > MaxPayloadBytes {
		return nil, serErr("encoded envelope exceeds max payload size (%d > %d)", len(w.buf), MaxPayloadBytes)
	}
	return w.buf, nil
}

// Decode parses an Envelope from its tagged binary form.
func Decode(data []byte) (Envelope, error) {
	if len(data) > MaxPayloadBytes {
		return Envelope{}, serErr("input exceeds max payload size (%d > %d)", len(data), MaxPayloadBytes)
	}
	r := &reader{buf: data}
	tag, err := r.getByte()
	if err != nil {
		return Envelope{}, err
	}
	var e Envelope
	e.Kind = Kind(tag)
	switch e.Kind {
	case KindChat:
		if e.Chat.MessageID, err = r.getUUID(); err != nil {
			return Envelope{}, err
		}
		if e.Chat.Timestamp, err = r.getUvarint(); err != nil {
			return Envelope{}, err
		}
		if e.Chat.SenderID, err = r.getString(); err != nil {
			return Envelope{}, err
		}
		if e.Chat.ConversationID, err = r.getUUID(); err != nil {
			return Envelope{}, err
		}
		if e.Chat.Text, err = r.getString(); err != nil {
			return Envelope{}, err
		}
	case KindAck:
		if e.Ack.MessageID, err = r.getUUID(); err != nil {
			return Envelope{}, err
		}
		if e.Ack.Timestamp, err = r.getUvarint(); err != nil {
			return Envelope{}, err
		}
	case KindNack:
		if e.Nack.MessageID, err = r.getUUID(); err != nil {
			return Envelope{}, err
		}
		reasonByte, err := r.getByte()
		if err != nil {
			return Envelope{}, err
		}
		e.Nack.Reason = NackReasonKind(reasonByte)
		if e.Nack.Detail, err = r.getString(); err != nil {
			return Envelope{}, err
		}
	case KindHandshake:
		b, err := r.getBytes()
		if err != nil {
			return Envelope{}, err
		}
		e.Handshake = append([]byte(nil), b...)
	case KindPresenceUpdate:
		b, err := r.getBytes()
		if err != nil {
			return Envelope{}, err
		}
		e.PresenceUpdate = append([]byte(nil), b...)
	case KindTypingIndicator:
		b, err := r.getBytes()
		if err != nil {
			return Envelope{}, err
		}
		e.TypingIndicator = append([]byte(nil), b...)
	case KindTaskSync:
		b, err := r.getBytes()
		if err != nil {
			return Envelope{}, err
		}
		e.TaskSync = append([]byte(nil), b...)
	default:
		return Envelope{}, serErr("unknown envelope kind tag %d", tag)
	}
	return e, nil
}

// EncodeFramed encodes e and prepends a 4-byte little-endian length prefix.
func EncodeFramed(e Envelope) ([]byte, error) {
	payload, err := Encode(e)
	if err != nil {
		return nil, err
	}
	if uint64(len(payload)) > 0xFFFFFFFF {
		return nil, serErr("framed payload too large for a u32 length prefix")
	}
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out, nil
}

// DecodeFramed decodes a single framed envelope from the front of buf and
// returns it along with the total number of bytes consumed, so callers
// can decode further pipelined frames from the same buffer.
func DecodeFramed(buf []byte) (Envelope, int, error) {
	if len(buf) < 4 {
		return Envelope{}, 0, frameErr("buffer shorter than the 4-byte length prefix (%d bytes)", len(buf))
	}
	length := binary.LittleEndian.Uint32(buf)
	if length > MaxPayloadBytes {
		return Envelope{}, 0, frameErr("frame claims %d bytes, exceeding max payload size %d", length, MaxPayloadBytes)
	}
	total := 4 + int(length)
	if len(buf) < total {
		return Envelope{}, 0, frameErr("frame claims %d bytes, only %d available", total, len(buf))
	}
	e, err := Decode(buf[4:total])
	if err != nil {
		return Envelope{}, 0, err
	}
	return e, total, nil
}
