package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/reverie-dev/reverie/pkg/domain/interfaces"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
)

type conversationRepository struct {
	mu            sync.RWMutex
	conversations map[types.ConversationID]*model.Conversation
	messages      *messageRepository
}

var _ interfaces.ConversationRepository = &conversationRepository{}

func newConversationRepository(messages *messageRepository) *conversationRepository {
	return &conversationRepository{
		conversations: make(map[types.ConversationID]*model.Conversation),
		messages:      messages,
	}
}

func (r *conversationRepository) Create(_ context.Context, userID, title string, threadID types.ThreadID) (*model.Conversation, error) {
	if userID == "" {
		return nil, goerr.New("userID is required")
	}
	if threadID == "" {
		return nil, goerr.New("threadID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conv := model.NewConversation(userID, title, threadID)
	copied := *conv
	r.conversations[conv.ID] = &copied
	return conv, nil
}

// get looks up a conversation checking ownership. Caller must hold the lock.
func (r *conversationRepository) get(userID string, id types.ConversationID) (*model.Conversation, error) {
	conv, ok := r.conversations[id]
	if !ok || conv.UserID != userID {
		return nil, goerr.Wrap(types.ErrNotFound, "conversation not found",
			goerr.V("conversationID", id))
	}
	return conv, nil
}

func (r *conversationRepository) Get(_ context.Context, userID string, id types.ConversationID) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, err := r.get(userID, id)
	if err != nil {
		return nil, err
	}
	copied := *conv
	return &copied, nil
}

func (r *conversationRepository) List(ctx context.Context, userID string, status types.ConversationStatus, limit int, cursor string) ([]*model.ConversationSummary, string, error) {
	r.mu.RLock()

	if limit <= 0 {
		limit = 20
	}

	// Copy matching rows under the lock; Archive mutates the stored
	// values in place
	var owned []*model.Conversation
	for _, conv := range r.conversations {
		if conv.UserID != userID {
			continue
		}
		if status != "" && conv.Status != status {
			continue
		}
		copied := *conv
		owned = append(owned, &copied)
	}
	r.mu.RUnlock()

	// Sort by CreatedAt desc; IDs are v7 UUIDs so they tie-break consistently
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	// Cursor is strictly-less-than on id, so a cursor row deleted between
	// pages still resumes at the right position
	startIdx := len(owned)
	if cursor == "" {
		startIdx = 0
	} else {
		for i, conv := range owned {
			if string(conv.ID) < cursor {
				startIdx = i
				break
			}
		}
	}

	end := startIdx + limit
	hasMore := end < len(owned)
	if end > len(owned) {
		end = len(owned)
	}

	summaries := make([]*model.ConversationSummary, 0, end-startIdx)
	for _, conv := range owned[startIdx:end] {
		count, lastAt := r.messages.stats(conv.ID)
		summaries = append(summaries, &model.ConversationSummary{
			ID:            conv.ID,
			Title:         conv.Title,
			Status:        conv.Status,
			CreatedAt:     conv.CreatedAt,
			MessageCount:  count,
			LastMessageAt: lastAt,
		})
	}

	var nextCursor string
	if hasMore && len(summaries) > 0 {
		nextCursor = string(summaries[len(summaries)-1].ID)
	}

	return summaries, nextCursor, nil
}

func (r *conversationRepository) Archive(_ context.Context, userID string, id types.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, err := r.get(userID, id)
	if err != nil {
		return err
	}
	conv.Status = types.ConversationStatusArchived
	return nil
}

func (r *conversationRepository) Delete(_ context.Context, userID string, id types.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.get(userID, id); err != nil {
		return err
	}
	delete(r.conversations, id)
	r.messages.deleteByConversation(id)
	return nil
}

// owner returns the conversation for ownership checks from the message
// repository side
func (r *conversationRepository) owner(id types.ConversationID) (*model.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.conversations[id]
	return conv, ok
}
