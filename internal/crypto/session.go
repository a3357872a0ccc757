// Package crypto implements the pluggable crypto session interface the
// client pipeline depends on: encrypt, decrypt, is_established. Key
// material is a long-term x25519 static keypair per identity; its public
// key fingerprint (first 8 bytes, hex) is the SenderId. A full Noise XX
// handshake is out of scope; this package supplies the primitives
// (curve25519 key agreement, chacha20poly1305 AEAD) a handshake
// implementation would build on.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// NoSessionError is returned by Encrypt/Decrypt before a session key has
// been established.
type NoSessionError struct{}

func (e *NoSessionError) Error() string { return "crypto: no session established" }

// EncryptionFailedError wraps an AEAD seal failure.
type EncryptionFailedError struct{ Reason string }

func (e *EncryptionFailedError) Error() string { return fmt.Sprintf("crypto: encryption failed: %s", e.Reason) }

// DecryptionFailedError wraps an AEAD open failure.
type DecryptionFailedError struct{ Reason string }

func (e *DecryptionFailedError) Error() string { return fmt.Sprintf("crypto: decryption failed: %s", e.Reason) }

// IdentityVerificationFailedError is returned by PeerKeyCache when a
// peer's public key does not match what was first seen for that peer.
type IdentityVerificationFailedError struct{ PeerID string }

func (e *IdentityVerificationFailedError) Error() string {
	return fmt.Sprintf("crypto: identity verification failed for peer %q", e.PeerID)
}

// Session is the contract the pipeline depends on.
type Session interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	IsEstablished() bool
}

// StaticKeypair is a long-term x25519 identity keypair.
type StaticKeypair struct {
	private [32]byte
	public  [32]byte
}

// GenerateStaticKeypair creates a fresh x25519 static keypair.
func GenerateStaticKeypair() (*StaticKeypair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, fmt.Errorf("crypto: generate private key: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("crypto: derive public key: %w", err)
	}
	var kp StaticKeypair
	kp.private = priv
	copy(kp.public[:], pub)
	return &kp, nil
}

// PublicKey returns the keypair's public key.
func (k *StaticKeypair) PublicKey() [32]byte { return k.public }

// Zero overwrites the private key material (zeroized on drop, per spec).
func (k *StaticKeypair) Zero() {
	for i := range k.private {
		k.private[i] = 0
	}
}

// SenderID derives the SenderId from a public key: the first 8 bytes of
// the key, lowercase hex.
func SenderID(pub [32]byte) string {
	return hex.EncodeToString(pub[:8])
}

// NoiseSession is a minimal authenticated-encryption session keyed by a
// shared secret derived from a static x25519 keypair and a peer's public
// key. It implements Session but is not a full Noise XX handshake: the
// shared key is derived once via X25519 and used directly as the AEAD
// key, with no rekeying or forward-secrecy ratchet. The key is set only
// by EstablishSession; no handshake output feeds into it.
type NoiseSession struct {
	sealer      cipherAEAD
	established bool
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

// EstablishSession derives a shared key from local's private key and
// remote's public key and builds a chacha20poly1305 AEAD session over it.
func EstablishSession(local *StaticKeypair, remotePublic [32]byte) (*NoiseSession, error) {
	shared, err := curve25519.X25519(local.private[:], remotePublic[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: x25519 key agreement: %w", err)
	}
	aead, err := chacha20poly1305.New(shared)
	if err != nil {
		return nil, fmt.Errorf("crypto: build aead: %w", err)
	}
	return &NoiseSession{sealer: aead, established: true}, nil
}

func (s *NoiseSession) IsEstablished() bool { return s != nil && s.established }

func (s *NoiseSession) Encrypt(plaintext []byte) ([]byte, error) {
	if !s.IsEstablished() {
		return nil, &NoSessionError{}
	}
	nonce := make([]byte, s.sealer.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, &EncryptionFailedError{Reason: err.Error()}
	}
	sealed := s.sealer.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func (s *NoiseSession) Decrypt(ciphertext []byte) ([]byte, error) {
	if !s.IsEstablished() {
		return nil, &NoSessionError{}
	}
	nonceSize := s.sealer.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, &DecryptionFailedError{Reason: "ciphertext shorter than nonce"}
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plain, err := s.sealer.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, &DecryptionFailedError{Reason: err.Error()}
	}
	return plain, nil
}

var _ Session = (*NoiseSession)(nil)
