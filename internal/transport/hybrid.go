package transport

import (
	"context"
	"sync"
)

// pendingEntry is a (peer, payload) pair that failed both preferred and
// fallback delivery, held for a later flush attempt.
type pendingEntry struct {
	peer    string
	payload []byte
}

// Hybrid composes a preferred transport and a fallback transport, plus
// a FIFO pending queue drained by Flush. Send tries the preferred
// transport first; on any error it tries the fallback; if both fail the
// message is queued and the caller still receives the fallback's error
// (so it learns delivery was deferred, not durable). Recv multiplexes
// both transports with no ordering guarantee between them.
type Hybrid struct {
	preferred Transport
	fallback  Transport

	mu      sync.Mutex
	pending []pendingEntry

	recvCh chan Message
	once   sync.Once
}

// NewHybrid builds a Hybrid over the given preferred and fallback
// transports and starts the background recv fan-in.
func NewHybrid(preferred, fallback Transport) *Hybrid {
	h := &Hybrid{preferred: preferred, fallback: fallback, recvCh: make(chan Message, 256)}
	go h.pump(preferred)
	go h.pump(fallback)
	return h
}

func (h *Hybrid) pump(t Transport) {
	ctx := context.Background()
	for {
		msg, err := t.Recv(ctx)
		if err != nil {
			if _, closed := err.(*ConnectionClosedError); closed {
				return
			}
			continue
		}
		h.recvCh <- msg
	}
}

func (h *Hybrid) Send(ctx context.Context, peer string, payload []byte) error {
	if err := h.preferred.Send(ctx, peer, payload); err == nil {
		return nil
	}
	fallbackErr := h.fallback.Send(ctx, peer, payload)
	if fallbackErr == nil {
		return nil
	}
	h.mu.Lock()
	out := make([]byte, len(payload))
	copy(out, payload)
	h.pending = append(h.pending, pendingEntry{peer: peer, payload: out})
	h.mu.Unlock()
	return fallbackErr
}

func (h *Hybrid) Recv(ctx context.Context) (Message, error) {
	select {
	case msg := <-h.recvCh:
		return msg, nil
	case <-ctx.Done():
		return Message{}, &TimeoutError{Op: "hybrid recv"}
	}
}

// Flush retries every pending message via the same try-preferred-then-
// fallback sequence. Messages that still fail are re-enqueued.
func (h *Hybrid) Flush(ctx context.Context) {
	h.mu.Lock()
	batch := h.pending
	h.pending = nil
	h.mu.Unlock()

	var stillPending []pendingEntry
	for _, e := range batch {
		if err := h.preferred.Send(ctx, e.peer, e.payload); err == nil {
			continue
		}
		if err := h.fallback.Send(ctx, e.peer, e.payload); err == nil {
			continue
		}
		stillPending = append(stillPending, e)
	}

	if len(stillPending) == 0 {
		return
	}
	h.mu.Lock()
	h.pending = append(stillPending, h.pending...)
	h.mu.Unlock()
}

func (h *Hybrid) IsConnected() bool {
	return h.preferred.IsConnected() || h.fallback.IsConnected()
}

func (h *Hybrid) Type() Type { return h.preferred.Type() }

var _ Transport = (*Hybrid)(nil)
