package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryFlushInterval is how often the background task retries
// queued persistence operations.
const DefaultHistoryFlushInterval = 5 * time.Second

type pendingOp struct {
	save   *StoredMessage
	status *statusOp
}

type statusOp struct {
	messageID uuid.UUID
	status    Status
}

// historyWriter wraps a MessageStore so that save/update failures never
// block or fail the caller: the error is logged, the operation is
// queued for a background retry, and an EventHistoryWarning is emitted.
type historyWriter struct {
	store  MessageStore
	events chan<- Event
	log    *slog.Logger

	mu      sync.Mutex
	pending []pendingOp
}

func newHistoryWriter(store MessageStore, events chan<- Event, log *slog.Logger) *historyWriter {
	return &historyWriter{store: store, events: events, log: log}
}

func (h *historyWriter) save(msg StoredMessage) {
	if err := h.store.Save(msg); err != nil {
		h.log.Warn("pipeline: history save failed, queued for retry", "message_id", msg.MessageID, "error", err)
		h.enqueue(pendingOp{save: &msg})
		h.emitWarning("save failed: " + err.Error())
	}
}

func (h *historyWriter) updateStatus(messageID uuid.UUID, status Status) {
	if err := h.store.UpdateStatus(messageID, status); err != nil {
		h.log.Warn("pipeline: history status update failed, queued for retry", "message_id", messageID, "error", err)
		h.enqueue(pendingOp{status: &statusOp{messageID: messageID, status: status}})
		h.emitWarning("status update failed: " + err.Error())
	}
}

func (h *historyWriter) enqueue(op pendingOp) {
	h.mu.Lock()
	h.pending = append(h.pending, op)
	h.mu.Unlock()
}

func (h *historyWriter) emitWarning(msg string) {
	select {
	case h.events <- Event{Kind: EventHistoryWarning, Warning: msg}:
	default:
	}
}

// flush retries every queued operation once; operations that fail again
// stay queued.
func (h *historyWriter) flush() {
	h.mu.Lock()
	batch := h.pending
	h.pending = nil
	h.mu.Unlock()

	var stillPending []pendingOp
	for _, op := range batch {
		switch {
		case op.save != nil:
			if err := h.store.Save(*op.save); err != nil {
				stillPending = append(stillPending, op)
			}
		case op.status != nil:
			if err := h.store.UpdateStatus(op.status.messageID, op.status.status); err != nil {
				stillPending = append(stillPending, op)
			}
		}
	}

	if len(stillPending) > 0 {
		h.mu.Lock()
		h.pending = append(stillPending, h.pending...)
		h.mu.Unlock()
	}
}

// runFlushLoop periodically flushes the pending queue until ctx is done.
func (h *historyWriter) runFlushLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHistoryFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.flush()
		}
	}
}
