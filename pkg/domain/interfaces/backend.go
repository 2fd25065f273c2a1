package interfaces

import (
	"context"

	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
)

// MemoryBackend is the contract of the external memory-and-chat provider:
// assistant/thread lifecycle, message exchange and durable memory storage.
// Two implementations exist: the REST client against the real service and
// the in-memory double for development and tests. Call sites depend only
// on this interface; the variant is chosen at wiring time.
type MemoryBackend interface {
	// EnsureAssistant initializes the process-wide assistant. If an id is
	// already configured it is verified; on verification failure a new
	// assistant is created and adopted. Idempotent and safe for
	// concurrent first-time initialization.
	EnsureAssistant(ctx context.Context, name, systemPrompt string) (types.AssistantID, error)

	// AssistantID returns the initialized assistant id, or
	// types.ErrFailedPrecondition if EnsureAssistant never succeeded.
	AssistantID() (types.AssistantID, error)

	CreateThread(ctx context.Context) (types.ThreadID, error)
	DeleteThread(ctx context.Context, id types.ThreadID) error
	GetThread(ctx context.Context, id types.ThreadID) (*model.Thread, error)

	// SendMessage exchanges one message on a thread. The memory mode of
	// msg controls the backend's auto-memory side effect.
	SendMessage(ctx context.Context, msg *model.BackendMessage) (*model.BackendReply, error)

	// StreamMessage is SendMessage with the reply delivered as a finite,
	// non-restartable sequence of text chunks. The memory side effect
	// applies once the sequence ends.
	StreamMessage(ctx context.Context, msg *model.BackendMessage) (<-chan string, error)

	// Memories returns durable memories sorted by recency descending,
	// truncated to limit when limit > 0.
	Memories(ctx context.Context, limit int) ([]*model.RetrievedMemory, error)

	MemoryStats(ctx context.Context) (*model.MemoryStats, error)

	// CreateMemory explicitly persists a durable memory, bypassing auto
	// mode so storage is deterministic and attributable.
	CreateMemory(ctx context.Context, content string, metadata map[string]any) (*model.Memory, error)

	DeleteMemory(ctx context.Context, id types.MemoryID) error
}
