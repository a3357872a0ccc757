package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Status is a locally tracked message's delivery state.
type Status int

const (
	StatusSent Status = iota
	StatusDelivered
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// StoredMessage is what a MessageStore persists for one chat message.
type StoredMessage struct {
	MessageID      uuid.UUID
	ConversationID uuid.UUID
	SenderID       string
	Text           string
	Timestamp      uint64
	Status         Status
}

// MessageStore is the persistence contract the resilient history writer
// wraps. Implementations must be safe for concurrent use.
type MessageStore interface {
	Save(msg StoredMessage) error
	UpdateStatus(messageID uuid.UUID, status Status) error
	GetConversation(conversationID uuid.UUID) ([]StoredMessage, error)
}

// MemoryStore is the in-memory MessageStore used for conformance; it is
// the variant this package's own tests exercise.
type MemoryStore struct {
	mu   sync.RWMutex
	msgs map[uuid.UUID]StoredMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{msgs: make(map[uuid.UUID]StoredMessage)}
}

func (s *MemoryStore) Save(msg StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[msg.MessageID] = msg
	return nil
}

func (s *MemoryStore) UpdateStatus(messageID uuid.UUID, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.msgs[messageID]
	if !ok {
		return fmt.Errorf("pipeline: unknown message %s", messageID)
	}
	msg.Status = status
	s.msgs[messageID] = msg
	return nil
}

func (s *MemoryStore) GetConversation(conversationID uuid.UUID) ([]StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StoredMessage
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}
