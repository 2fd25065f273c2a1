package interfaces

import (
	"context"

	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
)

// Repository defines the interface for conversation/message persistence
type Repository interface {
	Conversation() ConversationRepository
	Message() MessageRepository
	Close() error
}

// ConversationRepository owns conversation records and their thread mapping
type ConversationRepository interface {
	// Create persists a new active conversation bound to threadID
	Create(ctx context.Context, userID, title string, threadID types.ThreadID) (*model.Conversation, error)

	// Get retrieves a conversation owned by userID.
	// Returns types.ErrNotFound if absent or owned by someone else.
	Get(ctx context.Context, userID string, id types.ConversationID) (*model.Conversation, error)

	// List retrieves conversation summaries for userID, newest first, with
	// cursor pagination. status filters when non-empty. Each summary
	// carries a derived message count and last-message timestamp.
	List(ctx context.Context, userID string, status types.ConversationStatus, limit int, cursor string) ([]*model.ConversationSummary, string, error)

	// Archive transitions a conversation to archived status
	Archive(ctx context.Context, userID string, id types.ConversationID) error

	// Delete hard-deletes a conversation and its messages
	Delete(ctx context.Context, userID string, id types.ConversationID) error
}

// MessageRepository owns the immutable message log of each conversation
type MessageRepository interface {
	// Put appends a message to its conversation
	Put(ctx context.Context, msg *model.Message) (*model.Message, error)

	// List retrieves messages newest first with cursor pagination. Fails
	// with types.ErrNotFound if the conversation does not belong to userID.
	List(ctx context.Context, userID string, conversationID types.ConversationID, limit int, cursor string) ([]*model.Message, string, error)

	// Recent retrieves the last n messages in chronological order
	Recent(ctx context.Context, conversationID types.ConversationID, n int) ([]*model.Message, error)
}
