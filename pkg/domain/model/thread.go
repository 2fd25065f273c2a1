package model

import (
	"time"

	"github.com/reverie-dev/reverie/pkg/domain/types"
)

// Thread is the externally hosted chat session behind a conversation
type Thread struct {
	ID        types.ThreadID
	CreatedAt time.Time
}

// BackendMessage is one outgoing exchange with the memory backend.
// MemoryMode controls the backend's auto-memory side effect; SystemPrompt
// overrides the assistant's default prompt for this exchange only.
type BackendMessage struct {
	ThreadID     types.ThreadID
	Content      string
	MemoryMode   types.MemoryMode
	SystemPrompt string
}

// BackendReply is the backend's answer to a message exchange
type BackendReply struct {
	Content string
	Role    types.Role
}
