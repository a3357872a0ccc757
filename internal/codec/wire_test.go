package codec

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
)

func sampleChat() Envelope {
	return NewChat(ChatMessage{
		MessageID:      uuid.Must(uuid.NewV7()),
		Timestamp:      NowMillis(),
		SenderID:       "deadbeef",
		ConversationID: uuid.Must(uuid.NewV7()),
		Text:           "hello",
	})
}

func TestRoundTripAllVariants(t *testing.T) {
	cases := map[string]Envelope{
		"chat": sampleChat(),
		"ack":  NewAck(DeliveryAck{MessageID: uuid.Must(uuid.NewV7()), Timestamp: NowMillis()}),
		"nack": NewNack(Nack{MessageID: uuid.Must(uuid.NewV7()), Reason: NackSenderIDMismatch}),
		"handshake":        {Kind: KindHandshake, Handshake: []byte{1, 2, 3}},
		"presence_update":  {Kind: KindPresenceUpdate, PresenceUpdate: []byte("online")},
		"typing_indicator": {Kind: KindTypingIndicator, TypingIndicator: []byte{0xFF}},
		"task_sync":        {Kind: KindTaskSync, TaskSync: []byte("task-bytes")},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			encoded, err := Encode(env)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if decoded.Kind != env.Kind {
				t.Fatalf("kind mismatch: got %v want %v", decoded.Kind, env.Kind)
			}
		})
	}
}

func TestFramedRoundTrip(t *testing.T) {
	env := sampleChat()
	framed, err := EncodeFramed(env)
	if err != nil {
		t.Fatalf("encode framed: %v", err)
	}
	decoded, consumed, err := DecodeFramed(framed)
	if err != nil {
		t.Fatalf("decode framed: %v", err)
	}
	if consumed != len(framed) {
		t.Fatalf("consumed %d, want %d", consumed, len(framed))
	}
	if decoded.Chat.MessageID != env.Chat.MessageID {
		t.Fatalf("message id mismatch after round trip")
	}
}

func TestFramedMultipleMessagesInBuffer(t *testing.T) {
	a, _ := EncodeFramed(sampleChat())
	b, _ := EncodeFramed(NewAck(DeliveryAck{MessageID: uuid.Must(uuid.NewV7()), Timestamp: 1}))

	buf := append(append([]byte{}, a...), b...)

	first, n1, err := DecodeFramed(buf)
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if first.Kind != KindChat {
		t.Fatalf("expected chat first")
	}
	second, n2, err := DecodeFramed(buf[n1:])
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if second.Kind != KindAck {
		t.Fatalf("expected ack second")
	}
	if n1+n2 != len(buf) {
		t.Fatalf("did not consume entire buffer: %d + %d != %d", n1, n2, len(buf))
	}
}

func TestDecodeFramedTruncatedLengthPrefix(t *testing.T) {
	if _, _, err := DecodeFramed([]byte{1, 2}); err == nil {
		t.Fatal("expected error for truncated length prefix")
	}
}

func TestDecodeFramedClaimsMoreThanAvailable(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF, 0x7F} // large length claim, no payload
	if _, _, err := DecodeFramed(buf); err == nil {
		t.Fatal("expected error for frame claiming more bytes than available")
	}
}

func TestDecodeArbitraryBytesDoesNotPanic(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0x00},
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		bytes.Repeat([]byte{0xAB}, 37),
	}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Decode panicked on %v: %v", in, r)
				}
			}()
			_, _ = Decode(in)
		}()
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("DecodeFramed panicked on %v: %v", in, r)
				}
			}()
			_, _, _ = DecodeFramed(in)
		}()
	}
}

func TestOversizedPayloadRejectedOnEncode(t *testing.T) {
	big := make([]byte, MaxPayloadBytes+1)
	env := Envelope{Kind: KindHandshake, Handshake: big}
	if _, err := Encode(env); err == nil {
		t.Fatal("expected error encoding oversized envelope")
	}
}
