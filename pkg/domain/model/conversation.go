package model

import (
	"time"

	"github.com/reverie-dev/reverie/pkg/domain/types"
)

// Conversation is a local journaling session. Each conversation is paired
// 1:1 with an externally hosted chat thread; the pairing is created
// atomically and never changes afterwards.
type Conversation struct {
	ID        types.ConversationID
	UserID    string
	ThreadID  types.ThreadID
	Title     string
	Status    types.ConversationStatus
	CreatedAt time.Time
}

// NewConversation creates an active conversation owned by userID, bound
// to the given external thread.
func NewConversation(userID, title string, threadID types.ThreadID) *Conversation {
	return &Conversation{
		ID:        types.NewConversationID(),
		UserID:    userID,
		ThreadID:  threadID,
		Title:     title,
		Status:    types.ConversationStatusActive,
		CreatedAt: time.Now().UTC(),
	}
}

// ConversationSummary is the list-view projection of a conversation.
// MessageCount and LastMessageAt are derived at list time, not stored.
type ConversationSummary struct {
	ID            types.ConversationID
	Title         string
	Status        types.ConversationStatus
	CreatedAt     time.Time
	MessageCount  int
	LastMessageAt *time.Time
}
