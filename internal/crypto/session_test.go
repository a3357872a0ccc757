package crypto

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, err := GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("generate alice: %v", err)
	}
	bob, err := GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("generate bob: %v", err)
	}

	aliceSession, err := EstablishSession(alice, bob.PublicKey())
	if err != nil {
		t.Fatalf("establish alice session: %v", err)
	}
	bobSession, err := EstablishSession(bob, alice.PublicKey())
	if err != nil {
		t.Fatalf("establish bob session: %v", err)
	}

	plaintext := []byte("hello bob")
	ciphertext, err := aliceSession.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Fatal("ciphertext must differ from plaintext")
	}

	decrypted, err := bobSession.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Fatalf("got %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptWithoutSessionFails(t *testing.T) {
	var s NoiseSession
	if _, err := s.Encrypt([]byte("x")); err == nil {
		t.Fatal("expected NoSessionError")
	}
}

func TestPeerKeyCacheTrustOnFirstUse(t *testing.T) {
	c := NewPeerKeyCache()
	var key1, key2 [32]byte
	key1[0] = 1
	key2[0] = 2

	if err := c.Verify("alice", key1); err != nil {
		t.Fatalf("first sighting should succeed: %v", err)
	}
	if err := c.Verify("alice", key1); err != nil {
		t.Fatalf("matching sighting should succeed: %v", err)
	}
	if err := c.Verify("alice", key2); err == nil {
		t.Fatal("mismatched key should fail verification")
	}
}

func TestSenderIDIsFirst8BytesHex(t *testing.T) {
	kp, _ := GenerateStaticKeypair()
	id := SenderID(kp.PublicKey())
	if len(id) != 16 {
		t.Fatalf("expected 16 hex chars (8 bytes), got %d: %q", len(id), id)
	}
}
