package transport

import (
	"context"
	"sync"
)

// loopbackChanCap bounds each directional channel in a loopback pair.
const loopbackChanCap = 64

// Loopback is a test-only transport: a bounded in-memory channel
// cross-wired between two peer identifiers. It never touches a real
// socket and is used to exercise the pipeline without a network.
type Loopback struct {
	selfID string

	mu       sync.RWMutex
	inbound  chan Message
	peers    map[string]chan Message // peer id -> the channel we write into
	closed   bool
}

// NewLoopbackPair builds two Loopback transports, named a and b, wired
// so that sends from one arrive as recvs on the other.
func NewLoopbackPair(a, b string) (*Loopback, *Loopback) {
	aIn := make(chan Message, loopbackChanCap)
	bIn := make(chan Message, loopbackChanCap)

	ta := &Loopback{selfID: a, inbound: aIn, peers: map[string]chan Message{b: bIn}}
	tb := &Loopback{selfID: b, inbound: bIn, peers: map[string]chan Message{a: aIn}}
	return ta, tb
}

func (l *Loopback) Send(ctx context.Context, peer string, payload []byte) (err error) {
	l.mu.RLock()
	ch, ok := l.peers[peer]
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return &ConnectionClosedError{}
	}
	if !ok {
		return &UnreachableError{Peer: peer}
	}

	out := make([]byte, len(payload))
	copy(out, payload)

	// A remote half that has been closed has closed the channel we write
	// into; the send below then panics, which is reported as
	// ConnectionClosedError.
	defer func() {
		if recover() != nil {
			err = &ConnectionClosedError{}
		}
	}()

	select {
	case ch <- Message{Peer: l.selfID, Payload: out}:
		return nil
	case <-ctx.Done():
		return &TimeoutError{Op: "loopback send"}
	default:
		// Remote half's buffer is full; treat it the same as a dropped
		// remote for the purposes of this test-only transport.
		return &ConnectionClosedError{}
	}
}

func (l *Loopback) Recv(ctx context.Context) (Message, error) {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return Message{}, &ConnectionClosedError{}
	}
	select {
	case msg, ok := <-l.inbound:
		if !ok {
			return Message{}, &ConnectionClosedError{}
		}
		return msg, nil
	case <-ctx.Done():
		return Message{}, &TimeoutError{Op: "loopback recv"}
	}
}

// Close drops this half of the pair: it closes this half's inbound
// channel (the one the remote writes into), so subsequent sends to it
// fail with ConnectionClosedError.
func (l *Loopback) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.inbound)
	l.mu.Unlock()
}

func (l *Loopback) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.closed
}

func (l *Loopback) Type() Type { return TypeLoopback }

var _ Transport = (*Loopback)(nil)
