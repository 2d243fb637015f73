package chatstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenai/conduit/internal/errkind"
	"github.com/lumenai/conduit/pkg/models"
)

// maxMessagesPerChat bounds in-memory growth; oldest messages are trimmed
// beyond this limit.
const maxMessagesPerChat = 1000

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]models.ChatMessage
	byID     map[string]string // message id -> chat id, for UpdateRawContent
	reads    map[string]time.Time
}

// NewMemoryStore returns a ready-to-use MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]models.ChatMessage),
		byID:     make(map[string]string),
		reads:    make(map[string]time.Time),
	}
}

func (s *MemoryStore) GetMessages(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[chatID]
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, chatID string, msg models.ChatMessage) (models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ChatID = chatID
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	s.messages[chatID] = append(s.messages[chatID], msg)
	if len(s.messages[chatID]) > maxMessagesPerChat {
		excess := len(s.messages[chatID]) - maxMessagesPerChat
		s.messages[chatID] = s.messages[chatID][excess:]
	}
	s.byID[msg.ID] = chatID
	return msg, nil
}

func (s *MemoryStore) UpdateRawContent(ctx context.Context, messageID string, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatID, ok := s.byID[messageID]
	if !ok {
		return fmt.Errorf("%w: message %q", errkind.ErrNotFound, messageID)
	}
	msgs := s.messages[chatID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].RawContent = raw
			return nil
		}
	}
	return fmt.Errorf("%w: message %q", errkind.ErrNotFound, messageID)
}

func (s *MemoryStore) MarkRead(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[chatID] = time.Now()
	return nil
}
