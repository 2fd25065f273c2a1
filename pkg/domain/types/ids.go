package types

import "github.com/google/uuid"

// ConversationID is a UUID v7 identifier for a local conversation.
// V7 keeps ids sortable in creation order, which the message cursor
// pagination contract relies on.
type ConversationID string

// NewConversationID generates a new ConversationID
func NewConversationID() ConversationID {
	return ConversationID(uuid.Must(uuid.NewV7()).String())
}

// MessageID is a UUID v7 identifier for a message
type MessageID string

// NewMessageID generates a new MessageID
func NewMessageID() MessageID {
	return MessageID(uuid.Must(uuid.NewV7()).String())
}

// MemoryID identifies a durable memory held by the memory backend
type MemoryID string

// NewMemoryID generates a new MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.Must(uuid.NewV7()).String())
}

// ThreadID identifies the externally hosted chat thread paired 1:1
// with a local conversation
type ThreadID string

// NewThreadID generates a new ThreadID
func NewThreadID() ThreadID {
	return ThreadID("thread-" + uuid.Must(uuid.NewV7()).String())
}

// AssistantID identifies the backend assistant that owns durable memories
type AssistantID string

// NewAssistantID generates a new AssistantID
func NewAssistantID() AssistantID {
	return AssistantID("asst-" + uuid.Must(uuid.NewV7()).String())
}
