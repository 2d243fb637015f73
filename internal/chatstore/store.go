// Package chatstore persists chats and their messages. The orchestrator
// only consumes the narrow Store interface; MemoryStore and SQLStore are
// interchangeable implementations.
package chatstore

import (
	"context"
	"time"

	"github.com/lumenai/conduit/pkg/models"
)

// Store is the persistence interface the orchestrator depends on.
type Store interface {
	// GetMessages returns chatID's messages in chronological ascending
	// order.
	GetMessages(ctx context.Context, chatID string) ([]models.ChatMessage, error)

	// Append assigns ID and CreatedAt and persists msg.
	Append(ctx context.Context, chatID string, msg models.ChatMessage) (models.ChatMessage, error)

	// UpdateRawContent sets the raw (pre-filter) content for a
	// previously-persisted message.
	UpdateRawContent(ctx context.Context, messageID string, raw string) error

	// MarkRead records that chatID's messages have been read, for
	// unread-count bookkeeping at the facade layer.
	MarkRead(ctx context.Context, chatID string) error
}

// ReadState tracks the last time a chat's messages were marked read.
type ReadState struct {
	ChatID string
	ReadAt time.Time
}
