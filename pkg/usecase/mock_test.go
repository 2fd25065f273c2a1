package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/reverie-dev/reverie/pkg/domain/interfaces"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
)

// backendMock implements interfaces.MemoryBackend with overridable
// function fields. Calls are recorded so tests can assert on thread
// lifecycle and memory writes.
type backendMock struct {
	mu sync.Mutex

	createThreadFn func(ctx context.Context) (types.ThreadID, error)
	deleteThreadFn func(ctx context.Context, id types.ThreadID) error
	sendMessageFn  func(ctx context.Context, msg *model.BackendMessage) (*model.BackendReply, error)
	memoriesFn     func(ctx context.Context, limit int) ([]*model.RetrievedMemory, error)
	createMemoryFn func(ctx context.Context, content string, metadata map[string]any) (*model.Memory, error)

	createdThreads  []types.ThreadID
	deletedThreads  []types.ThreadID
	sentMessages    []*model.BackendMessage
	createdMemories []string
}

var _ interfaces.MemoryBackend = &backendMock{}

func newBackendMock() *backendMock {
	return &backendMock{}
}

func (m *backendMock) EnsureAssistant(_ context.Context, _, _ string) (types.AssistantID, error) {
	return "asst-mock", nil
}

func (m *backendMock) AssistantID() (types.AssistantID, error) {
	return "asst-mock", nil
}

func (m *backendMock) CreateThread(ctx context.Context) (types.ThreadID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createThreadFn != nil {
		id, err := m.createThreadFn(ctx)
		if err == nil {
			m.createdThreads = append(m.createdThreads, id)
		}
		return id, err
	}
	id := types.ThreadID(fmt.Sprintf("thread-mock-%d", len(m.createdThreads)+1))
	m.createdThreads = append(m.createdThreads, id)
	return id, nil
}

func (m *backendMock) DeleteThread(ctx context.Context, id types.ThreadID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteThreadFn != nil {
		err := m.deleteThreadFn(ctx, id)
		if err == nil {
			m.deletedThreads = append(m.deletedThreads, id)
		}
		return err
	}
	m.deletedThreads = append(m.deletedThreads, id)
	return nil
}

func (m *backendMock) GetThread(_ context.Context, id types.ThreadID) (*model.Thread, error) {
	return &model.Thread{ID: id, CreatedAt: time.Now()}, nil
}

func (m *backendMock) SendMessage(ctx context.Context, msg *model.BackendMessage) (*model.BackendReply, error) {
	m.mu.Lock()
	m.sentMessages = append(m.sentMessages, msg)
	fn := m.sendMessageFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, msg)
	}
	return &model.BackendReply{Content: "mock reply", Role: types.RoleAssistant}, nil
}

func (m *backendMock) StreamMessage(ctx context.Context, msg *model.BackendMessage) (<-chan string, error) {
	reply, err := m.SendMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	ch := make(chan string, 1)
	ch <- reply.Content
	close(ch)
	return ch, nil
}

func (m *backendMock) Memories(ctx context.Context, limit int) ([]*model.RetrievedMemory, error) {
	if m.memoriesFn != nil {
		return m.memoriesFn(ctx, limit)
	}
	return nil, nil
}

func (m *backendMock) MemoryStats(_ context.Context) (*model.MemoryStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &model.MemoryStats{TotalMemories: len(m.createdMemories)}, nil
}

func (m *backendMock) CreateMemory(ctx context.Context, content string, metadata map[string]any) (*model.Memory, error) {
	if m.createMemoryFn != nil {
		return m.createMemoryFn(ctx, content, metadata)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.createdMemories = append(m.createdMemories, content)
	return &model.Memory{
		ID:        types.NewMemoryID(),
		Content:   content,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	}, nil
}

func (m *backendMock) DeleteMemory(_ context.Context, _ types.MemoryID) error {
	return nil
}

// synthesisReply wires the mock so synthesis exchanges (memory mode off)
// return the given JSON while conversation exchanges return replyText
func (m *backendMock) synthesisReply(synthesisJSON, replyText string) {
	m.sendMessageFn = func(_ context.Context, msg *model.BackendMessage) (*model.BackendReply, error) {
		if msg.MemoryMode == types.MemoryModeOff {
			return &model.BackendReply{Content: synthesisJSON, Role: types.RoleAssistant}, nil
		}
		return &model.BackendReply{Content: replyText, Role: types.RoleAssistant}, nil
	}
}

func (m *backendMock) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sentMessages)
}

var errMockBackend = goerr.New("mock backend failure")
