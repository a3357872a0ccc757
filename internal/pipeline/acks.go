package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"termchat/internal/codec"
	"termchat/internal/crypto"
	"termchat/internal/transport"
)

// DefaultAckFlushInterval is how often the background task retries
// queued ack sends.
const DefaultAckFlushInterval = 5 * time.Second

type pendingAck struct {
	to        string
	messageID uuid.UUID
	timestamp uint64
}

// ackQueue retries Ack sends that failed on the receive path (spec
// §4.D dispatch table: "send Ack (queue on send failure)"). Mirrors
// historyWriter's queue-and-retry shape.
type ackQueue struct {
	transport transport.Transport
	session   crypto.Session
	log       *slog.Logger

	mu      sync.Mutex
	pending []pendingAck
}

func newAckQueue(t transport.Transport, session crypto.Session, log *slog.Logger) *ackQueue {
	return &ackQueue{transport: t, session: session, log: log}
}

func (q *ackQueue) sendOrQueue(ctx context.Context, to string, messageID uuid.UUID, timestamp uint64) {
	if q.trySend(ctx, to, messageID, timestamp) {
		return
	}
	q.log.Warn("pipeline: failed to send ack, queued for retry", "message_id", messageID, "to", to)
	q.mu.Lock()
	q.pending = append(q.pending, pendingAck{to: to, messageID: messageID, timestamp: timestamp})
	q.mu.Unlock()
}

func (q *ackQueue) trySend(ctx context.Context, to string, messageID uuid.UUID, timestamp uint64) bool {
	ack := codec.NewAck(codec.DeliveryAck{MessageID: messageID, Timestamp: timestamp})
	encoded, err := codec.Encode(ack)
	if err != nil {
		return false
	}
	ciphertext, err := q.session.Encrypt(encoded)
	if err != nil {
		return false
	}
	return q.transport.Send(ctx, to, ciphertext) == nil
}

// flush retries every queued ack once; acks that fail again stay queued.
func (q *ackQueue) flush(ctx context.Context) {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	var stillPending []pendingAck
	for _, a := range batch {
		if !q.trySend(ctx, a.to, a.messageID, a.timestamp) {
			stillPending = append(stillPending, a)
		}
	}

	if len(stillPending) > 0 {
		q.mu.Lock()
		q.pending = append(stillPending, q.pending...)
		q.mu.Unlock()
	}
}

// runFlushLoop periodically flushes the pending ack queue until ctx is done.
func (q *ackQueue) runFlushLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAckFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.flush(ctx)
		}
	}
}
