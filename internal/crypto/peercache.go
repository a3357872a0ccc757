package crypto

import "sync"

// PeerKeyCache implements trust-on-first-use: a first sighting of a
// peer's public key stores it, a matching subsequent sighting returns
// nil, and a mismatch returns IdentityVerificationFailedError.
type PeerKeyCache struct {
	mu   sync.RWMutex
	keys map[string][32]byte
}

func NewPeerKeyCache() *PeerKeyCache {
	return &PeerKeyCache{keys: make(map[string][32]byte)}
}

// Verify checks pub against the cached key for peerID, storing it on
// first sighting.
func (c *PeerKeyCache) Verify(peerID string, pub [32]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.keys[peerID]
	if !ok {
		c.keys[peerID] = pub
		return nil
	}
	if existing != pub {
		return &IdentityVerificationFailedError{PeerID: peerID}
	}
	return nil
}
