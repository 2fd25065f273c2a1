package model

import (
	"time"

	"github.com/reverie-dev/reverie/pkg/domain/types"
)

// Message is one utterance in a conversation. Messages are immutable once
// created and ordered by creation timestamp. Metadata stashes free-form
// debug info (synthesis/retrieval summaries on user messages).
type Message struct {
	ID             types.MessageID
	ConversationID types.ConversationID
	Role           types.Role
	Content        string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// NewMessage creates a message for the given conversation
func NewMessage(conversationID types.ConversationID, role types.Role, content string, metadata map[string]any) *Message {
	return &Message{
		ID:             types.NewMessageID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}
}

// Clone returns a deep copy so repository internals never leak mutable state
func (m *Message) Clone() *Message {
	copied := *m
	if m.Metadata != nil {
		copied.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}
