// Package pipeline implements the client send/receive pipeline: the
// only place plaintext exists on the client, everything crossing the
// transport boundary is ciphertext. Grounded on client/transport.go's
// overall client structure (atomic status tracking, callback/event
// delivery, single-writer serialization).
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"termchat/internal/codec"
	"termchat/internal/crypto"
	"termchat/internal/tasks"
	"termchat/internal/transport"
)

// DefaultMaxClockSkew bounds how far a chat message's timestamp may
// diverge from local time before it is flagged as skewed rather than
// rejected outright.
const DefaultMaxClockSkew = 5 * time.Minute

// DefaultSeenIDCap bounds the duplicate-suppression set. Reaching the
// cap clears the set entirely -- bounded memory over indefinite
// exact-once delivery.
const DefaultSeenIDCap = 10_000

// TaskSyncHandler is invoked for every decoded TaskSync payload; the
// caller owns per-room tasks.Manager instances and is responsible for
// routing msg.RoomID to the right one.
type TaskSyncHandler func(msg tasks.SyncMessage)

// Pipeline ties the codec, crypto session, and transport together into
// the six-step send pipeline and the receive/dispatch loop.
type Pipeline struct {
	transport    transport.Transport
	session      crypto.Session
	history      *historyWriter
	acks         *ackQueue
	localSender  string
	retry        RetryConfig
	maxClockSkew time.Duration
	onTaskSync   TaskSyncHandler
	log          *slog.Logger

	Events chan Event

	statusMu sync.Mutex
	statuses map[uuid.UUID]Status

	seenMu sync.Mutex
	seen   map[uuid.UUID]struct{}
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

func WithRetryConfig(cfg RetryConfig) Option { return func(p *Pipeline) { p.retry = cfg } }
func WithMaxClockSkew(d time.Duration) Option { return func(p *Pipeline) { p.maxClockSkew = d } }
func WithTaskSyncHandler(h TaskSyncHandler) Option {
	return func(p *Pipeline) { p.onTaskSync = h }
}
func WithLogger(log *slog.Logger) Option { return func(p *Pipeline) { p.log = log } }

// New builds a Pipeline. localSenderID is the identity this peer's
// outgoing Chat envelopes stamp as sender_id.
func New(t transport.Transport, session crypto.Session, store MessageStore, localSenderID string, opts ...Option) *Pipeline {
	events := make(chan Event, 256)
	p := &Pipeline{
		transport:    t,
		session:      session,
		localSender:  localSenderID,
		retry:        DefaultRetryConfig(),
		maxClockSkew: DefaultMaxClockSkew,
		log:          slog.Default(),
		Events:       events,
		statuses:     make(map[uuid.UUID]Status),
		seen:         make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.history = newHistoryWriter(store, events, p.log)
	p.acks = newAckQueue(t, session, p.log)
	return p
}

// RunHistoryFlusher runs the resilient history writer's background
// retry loop until ctx is cancelled. Callers should run this in its own
// goroutine.
func (p *Pipeline) RunHistoryFlusher(ctx context.Context) {
	p.history.runFlushLoop(ctx, DefaultHistoryFlushInterval)
}

// RunAckFlusher runs the queued-ack background retry loop until ctx is
// cancelled. Callers should run this in its own goroutine.
func (p *Pipeline) RunAckFlusher(ctx context.Context) {
	p.acks.runFlushLoop(ctx, DefaultAckFlushInterval)
}

func (p *Pipeline) emit(e Event) {
	select {
	case p.Events <- e:
	default:
		p.log.Warn("pipeline: event channel full, dropping event", "kind", e.Kind)
	}
}

func (p *Pipeline) setStatus(id uuid.UUID, s Status) {
	p.statusMu.Lock()
	p.statuses[id] = s
	p.statusMu.Unlock()
}

// Status returns the locally tracked status for a message, if known.
func (p *Pipeline) Status(id uuid.UUID) (Status, bool) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	s, ok := p.statuses[id]
	return s, ok
}

// Send runs the six-step send pipeline and returns the freshly
// allocated message ID on success.
func (p *Pipeline) Send(ctx context.Context, remotePeer string, conversationID uuid.UUID, text string) (uuid.UUID, error) {
	// Steps 1-2: validate the text, then build the message.
	if len(text) == 0 {
		return uuid.UUID{}, &EmptyTextError{}
	}
	if len(text) > codec.MaxPayloadBytes {
		return uuid.UUID{}, &TooLargeError{Size: len(text), Max: codec.MaxPayloadBytes}
	}

	msgID, err := uuid.NewV7()
	if err != nil {
		return uuid.UUID{}, err
	}
	now := codec.NowMillis()
	chat := codec.ChatMessage{
		MessageID:      msgID,
		Timestamp:      now,
		SenderID:       p.localSender,
		ConversationID: conversationID,
		Text:           text,
	}

	// Step 3: serialize.
	plaintext, err := codec.Encode(codec.NewChat(chat))
	if err != nil {
		return uuid.UUID{}, err
	}

	// Step 4: encrypt.
	if !p.session.IsEstablished() {
		return uuid.UUID{}, &crypto.NoSessionError{}
	}
	ciphertext, err := p.session.Encrypt(plaintext)
	if err != nil {
		return uuid.UUID{}, err
	}

	// Step 5: transport.send with retry.
	if err := p.sendWithRetry(ctx, remotePeer, ciphertext); err != nil {
		return uuid.UUID{}, err
	}

	// Step 6: record status, persist, emit event.
	p.setStatus(msgID, StatusSent)
	p.history.save(StoredMessage{
		MessageID: msgID, ConversationID: conversationID, SenderID: p.localSender,
		Text: text, Timestamp: now, Status: StatusSent,
	})
	p.emit(Event{Kind: EventStatusChanged, MessageID: msgID, Status: StatusSent})

	return msgID, nil
}

// sendWithRetry retries transport.Send up to retry.SendRetries times on
// transport error. Validation, codec, and crypto errors are never
// retried -- only transport.Send itself is in this loop.
func (p *Pipeline) sendWithRetry(ctx context.Context, remotePeer string, payload []byte) error {
	var lastErr error
	attempts := p.retry.SendRetries + 1
	for i := 0; i < attempts; i++ {
		if err := p.transport.Send(ctx, remotePeer, payload); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// AwaitAck loops ReceiveOne until a matching Ack arrives or the ack
// timeout expires, retrying up to AckRetries times. Every envelope
// encountered along the way is still fully processed. On exhaustion the
// message's status remains Sent -- it never downgrades.
func (p *Pipeline) AwaitAck(ctx context.Context, messageID uuid.UUID) error {
	attempts := p.retry.AckRetries + 1
	for i := 0; i < attempts; i++ {
		deadline := time.Now().Add(p.retry.AckTimeout)
		roundCtx, cancel := context.WithDeadline(ctx, deadline)
		for {
			ackID, err := p.ReceiveOne(roundCtx)
			if err != nil {
				break
			}
			if ackID != nil && *ackID == messageID {
				cancel()
				return nil
			}
			if roundCtx.Err() != nil {
				break
			}
		}
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return &AckTimeoutError{MessageID: messageID}
}

// ReceiveOne runs one iteration of the receive pipeline: recv, decrypt,
// decode, dispatch. It returns the acked message ID when the received
// envelope was an Ack, nil otherwise. Errors from recv/decrypt/decode
// are returned so the caller may decide whether to keep receiving.
func (p *Pipeline) ReceiveOne(ctx context.Context) (*uuid.UUID, error) {
	msg, err := p.transport.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if len(msg.Payload) > transport.MaxPayloadBytes {
		return nil, &OversizedPayloadError{Size: len(msg.Payload), Max: transport.MaxPayloadBytes}
	}

	plaintext, err := p.session.Decrypt(msg.Payload)
	if err != nil {
		return nil, err
	}

	env, err := codec.Decode(plaintext)
	if err != nil {
		p.sendNack(ctx, msg.Peer, uuid.UUID{}, codec.NackDeserializationFailed, "")
		return nil, err
	}

	return p.dispatch(ctx, msg.Peer, env)
}

func (p *Pipeline) dispatch(ctx context.Context, from string, env codec.Envelope) (*uuid.UUID, error) {
	switch env.Kind {
	case codec.KindChat:
		p.handleChat(ctx, from, env.Chat)
		return nil, nil
	case codec.KindAck:
		p.handleAck(env.Ack)
		id := env.Ack.MessageID
		return &id, nil
	case codec.KindNack:
		p.log.Info("pipeline: received nack", "message_id", env.Nack.MessageID, "reason", env.Nack.Reason)
		return nil, nil
	case codec.KindHandshake:
		// Delegated to the crypto layer; the pipeline takes no action.
		return nil, nil
	case codec.KindPresenceUpdate:
		if payload, err := decodePresence(env.PresenceUpdate); err != nil {
			p.log.Warn("pipeline: failed to decode presence update", "error", err)
		} else {
			p.emit(Event{Kind: EventPresenceChanged, PeerID: payload.PeerID, Presence: payload.Status})
		}
		return nil, nil
	case codec.KindTypingIndicator:
		if payload, err := decodeTyping(env.TypingIndicator); err != nil {
			p.log.Warn("pipeline: failed to decode typing indicator", "error", err)
		} else {
			p.emit(Event{Kind: EventTypingChanged, PeerID: payload.PeerID, Room: payload.Room, IsTyping: payload.IsTyping})
		}
		return nil, nil
	case codec.KindTaskSync:
		if p.onTaskSync == nil {
			return nil, nil
		}
		if syncMsg, err := tasks.DecodeSync(env.TaskSync); err != nil {
			p.log.Warn("pipeline: failed to decode task sync", "error", err)
		} else {
			p.onTaskSync(syncMsg)
		}
		return nil, nil
	default:
		return nil, nil
	}
}

func (p *Pipeline) handleChat(ctx context.Context, from string, chat codec.ChatMessage) {
	if p.isDuplicate(chat.MessageID) {
		return
	}

	if chat.SenderID != from {
		p.sendNack(ctx, from, chat.MessageID, codec.NackSenderIDMismatch, "")
		return
	}

	skewed := isClockSkewed(chat.Timestamp, p.maxClockSkew)

	p.history.save(StoredMessage{
		MessageID: chat.MessageID, ConversationID: chat.ConversationID, SenderID: chat.SenderID,
		Text: chat.Text, Timestamp: chat.Timestamp, Status: StatusDelivered,
	})

	p.acks.sendOrQueue(ctx, from, chat.MessageID, codec.NowMillis())

	kind := EventMessageReceived
	if skewed {
		kind = EventMessageReceivedWithClockSkew
	}
	p.emit(Event{Kind: kind, Message: StoredMessage{
		MessageID: chat.MessageID, ConversationID: chat.ConversationID, SenderID: chat.SenderID,
		Text: chat.Text, Timestamp: chat.Timestamp, Status: StatusDelivered,
	}})
}

func (p *Pipeline) handleAck(ack codec.DeliveryAck) {
	if _, ok := p.Status(ack.MessageID); !ok {
		return
	}
	p.setStatus(ack.MessageID, StatusDelivered)
	p.history.updateStatus(ack.MessageID, StatusDelivered)
	p.emit(Event{Kind: EventStatusChanged, MessageID: ack.MessageID, Status: StatusDelivered})
}

func (p *Pipeline) sendNack(ctx context.Context, to string, messageID uuid.UUID, reason codec.NackReasonKind, detail string) {
	nack := codec.NewNack(codec.Nack{MessageID: messageID, Reason: reason, Detail: detail})
	encoded, err := codec.Encode(nack)
	if err != nil {
		return
	}
	ciphertext, err := p.session.Encrypt(encoded)
	if err != nil {
		return
	}
	_ = p.transport.Send(ctx, to, ciphertext)
}

// isDuplicate checks and records messageID in the seen-id set. When the
// set is at capacity it is cleared entirely before the new id is
// recorded -- bounded memory over indefinite exact-once suppression.
func (p *Pipeline) isDuplicate(messageID uuid.UUID) bool {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()

	if _, ok := p.seen[messageID]; ok {
		return true
	}
	if len(p.seen) >= DefaultSeenIDCap {
		p.seen = make(map[uuid.UUID]struct{})
	}
	p.seen[messageID] = struct{}{}
	return false
}

func isClockSkewed(timestampMillis uint64, max time.Duration) bool {
	ts := time.UnixMilli(int64(timestampMillis))
	diff := time.Since(ts)
	if diff < 0 {
		diff = -diff
	}
	return diff > max
}
