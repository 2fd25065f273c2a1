package memory

import (
	"github.com/reverie-dev/reverie/pkg/domain/interfaces"
)

// Repository is an alias for Memory
type Repository = Memory

// Memory is the in-memory repository used for development and tests. It
// satisfies the same contracts as the Firestore repository, including
// cursor pagination and ownership checks.
type Memory struct {
	conversation *conversationRepository
	message      *messageRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	msgRepo := newMessageRepository()
	convRepo := newConversationRepository(msgRepo)
	msgRepo.conversations = convRepo

	return &Memory{
		conversation: convRepo,
		message:      msgRepo,
	}
}

func (m *Memory) Conversation() interfaces.ConversationRepository {
	return m.conversation
}

func (m *Memory) Message() interfaces.MessageRepository {
	return m.message
}

func (m *Memory) Close() error {
	return nil
}
