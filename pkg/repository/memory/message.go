package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/reverie-dev/reverie/pkg/domain/interfaces"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
)

type messageRepository struct {
	mu            sync.RWMutex
	messages      map[types.ConversationID][]*model.Message
	conversations *conversationRepository
}

var _ interfaces.MessageRepository = &messageRepository{}

func newMessageRepository() *messageRepository {
	return &messageRepository{
		messages: make(map[types.ConversationID][]*model.Message),
	}
}

func (r *messageRepository) Put(_ context.Context, msg *model.Message) (*model.Message, error) {
	if msg == nil {
		return nil, goerr.New("message is nil")
	}
	if msg.ConversationID == "" {
		return nil, goerr.New("conversationID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], msg.Clone())
	return msg.Clone(), nil
}

// sortedDesc returns a copy of the conversation's messages newest first.
// Caller must hold at least the read lock.
func (r *messageRepository) sortedDesc(conversationID types.ConversationID) []*model.Message {
	msgs := r.messages[conversationID]
	sorted := make([]*model.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}

func (r *messageRepository) List(_ context.Context, userID string, conversationID types.ConversationID, limit int, cursor string) ([]*model.Message, string, error) {
	if conv, ok := r.conversations.owner(conversationID); !ok || conv.UserID != userID {
		return nil, "", goerr.Wrap(types.ErrNotFound, "conversation not found",
			goerr.V("conversationID", conversationID))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	sorted := r.sortedDesc(conversationID)

	// Cursor is strictly-less-than on id (v7 UUIDs sort with creation
	// order), never an exact-row match, so a stale cursor resumes at the
	// right position instead of re-serving page one
	startIdx := len(sorted)
	if cursor == "" {
		startIdx = 0
	} else {
		for i, m := range sorted {
			if string(m.ID) < cursor {
				startIdx = i
				break
			}
		}
	}

	end := startIdx + limit
	hasMore := end < len(sorted)
	if end > len(sorted) {
		end = len(sorted)
	}

	result := make([]*model.Message, 0, end-startIdx)
	for _, m := range sorted[startIdx:end] {
		result = append(result, m.Clone())
	}

	var nextCursor string
	if hasMore && len(result) > 0 {
		nextCursor = string(result[len(result)-1].ID)
	}

	return result, nextCursor, nil
}

func (r *messageRepository) Recent(_ context.Context, conversationID types.ConversationID, n int) ([]*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 {
		n = 10
	}

	sorted := r.sortedDesc(conversationID)
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	// Fetched newest first; reverse into chronological order
	result := make([]*model.Message, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		result = append(result, sorted[i].Clone())
	}
	return result, nil
}

// stats derives the summary fields for a conversation listing
func (r *messageRepository) stats(conversationID types.ConversationID) (int, *time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := r.messages[conversationID]
	if len(msgs) == 0 {
		return 0, nil
	}

	last := msgs[0].CreatedAt
	for _, m := range msgs[1:] {
		if m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}
	return len(msgs), &last
}

// deleteByConversation cascades a conversation deletion
func (r *messageRepository) deleteByConversation(conversationID types.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, conversationID)
}
