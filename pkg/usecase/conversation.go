package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
	"github.com/reverie-dev/reverie/pkg/utils/logging"
)

// CreateConversation creates a backend thread and the local record
// atomically: if the local write fails, the orphaned thread is deleted.
func (uc *UseCases) CreateConversation(ctx context.Context, userID, title string) (*model.Conversation, error) {
	threadID, err := uc.backend.CreateThread(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create backend thread")
	}

	conv, err := uc.repo.Conversation().Create(ctx, userID, title, threadID)
	if err != nil {
		// Roll back the remote thread so neither side exists
		if delErr := uc.backend.DeleteThread(ctx, threadID); delErr != nil {
			logging.From(ctx).Warn("failed to roll back orphaned thread",
				"threadID", threadID, "error", delErr)
		}
		return nil, goerr.Wrap(err, "failed to create conversation",
			goerr.V("threadID", threadID))
	}

	return conv, nil
}

func (uc *UseCases) GetConversation(ctx context.Context, userID string, id types.ConversationID) (*model.Conversation, error) {
	return uc.repo.Conversation().Get(ctx, userID, id)
}

func (uc *UseCases) ListConversations(ctx context.Context, userID string, status types.ConversationStatus, limit int, cursor string) ([]*model.ConversationSummary, string, error) {
	return uc.repo.Conversation().List(ctx, userID, status, limit, cursor)
}

func (uc *UseCases) ArchiveConversation(ctx context.Context, userID string, id types.ConversationID) error {
	return uc.repo.Conversation().Archive(ctx, userID, id)
}

// DeleteConversation removes the remote thread first, then the local
// record. A failed remote delete leaves local state intact and the whole
// operation retryable.
func (uc *UseCases) DeleteConversation(ctx context.Context, userID string, id types.ConversationID) error {
	unlock := uc.locks.Lock(id)
	defer unlock()

	conv, err := uc.repo.Conversation().Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := uc.backend.DeleteThread(ctx, conv.ThreadID); err != nil {
		// A thread already gone remotely should not block local cleanup
		if !errors.Is(err, types.ErrNotFound) {
			return goerr.Wrap(err, "failed to delete backend thread",
				goerr.V("threadID", conv.ThreadID))
		}
		logging.From(ctx).Warn("backend thread already deleted",
			"threadID", conv.ThreadID)
	}

	return uc.repo.Conversation().Delete(ctx, userID, id)
}

func (uc *UseCases) ListMessages(ctx context.Context, userID string, conversationID types.ConversationID, limit int, cursor string) ([]*model.Message, string, error) {
	return uc.repo.Message().List(ctx, userID, conversationID, limit, cursor)
}

// Memory admin operations, thin passthroughs for the debug/admin surface

func (uc *UseCases) Memories(ctx context.Context, limit int) ([]*model.RetrievedMemory, error) {
	return uc.backend.Memories(ctx, limit)
}

func (uc *UseCases) MemoryStats(ctx context.Context) (*model.MemoryStats, error) {
	return uc.backend.MemoryStats(ctx)
}

func (uc *UseCases) CreateMemory(ctx context.Context, content string, metadata map[string]any) (*model.Memory, error) {
	if content == "" {
		return nil, goerr.New("content is required")
	}
	return uc.backend.CreateMemory(ctx, content, metadata)
}

func (uc *UseCases) DeleteMemory(ctx context.Context, id types.MemoryID) error {
	return uc.backend.DeleteMemory(ctx, id)
}
