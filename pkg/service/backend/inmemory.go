package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/reverie-dev/reverie/pkg/domain/interfaces"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
	"github.com/reverie-dev/reverie/pkg/utils/logging"
)

// streamChunkSize is the number of runes per chunk emitted by StreamMessage
const streamChunkSize = 24

type threadState struct {
	createdAt time.Time
	exchanges int
}

// InMemory is the deterministic double of the remote memory backend. It
// reproduces the remote existence checks exactly: operations on unknown
// ids fail, except SendMessage on an unknown thread, which auto-creates
// the thread to tolerate process restarts during development.
//
// When an LLM client is injected, replies are generated by the model;
// otherwise a deterministic templated string is returned.
type InMemory struct {
	mu           sync.Mutex
	assistants   map[types.AssistantID]string // id -> system prompt
	current      types.AssistantID
	configuredID types.AssistantID
	threads      map[types.ThreadID]*threadState
	memories     []*model.Memory
	llm          gollem.LLMClient
}

var _ interfaces.MemoryBackend = &InMemory{}

type InMemoryOption func(*InMemory)

// WithLLM enables pass-through reply generation via the given model
func WithLLM(client gollem.LLMClient) InMemoryOption {
	return func(b *InMemory) {
		b.llm = client
	}
}

// WithConfiguredAssistantID seeds a previously issued assistant id, as
// loaded from configuration. EnsureAssistant verifies it and creates a
// replacement if the backend no longer knows it.
func WithConfiguredAssistantID(id types.AssistantID) InMemoryOption {
	return func(b *InMemory) {
		b.configuredID = id
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemory {
	b := &InMemory{
		assistants: make(map[types.AssistantID]string),
		threads:    make(map[types.ThreadID]*threadState),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *InMemory) EnsureAssistant(ctx context.Context, name, systemPrompt string) (types.AssistantID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != "" {
		return b.current, nil
	}

	// A configured id is adopted only if it still exists; otherwise the
	// remote state was lost and a fresh assistant replaces it.
	if b.configuredID != "" {
		if _, ok := b.assistants[b.configuredID]; ok {
			b.current = b.configuredID
			return b.current, nil
		}
		logging.From(ctx).Warn("configured assistant no longer exists, creating a new one",
			"assistantID", b.configuredID)
	}

	id := types.NewAssistantID()
	b.assistants[id] = systemPrompt
	b.current = id
	return id, nil
}

func (b *InMemory) AssistantID() (types.AssistantID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == "" {
		return "", goerr.Wrap(types.ErrFailedPrecondition, "assistant not initialized")
	}
	return b.current, nil
}

func (b *InMemory) CreateThread(ctx context.Context) (types.ThreadID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == "" {
		return "", goerr.Wrap(types.ErrFailedPrecondition, "assistant not initialized")
	}

	id := types.NewThreadID()
	b.threads[id] = &threadState{createdAt: time.Now().UTC()}
	return id, nil
}

func (b *InMemory) DeleteThread(_ context.Context, id types.ThreadID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.threads[id]; !ok {
		return goerr.Wrap(types.ErrNotFound, "thread not found", goerr.V("threadID", id))
	}
	delete(b.threads, id)
	return nil
}

func (b *InMemory) GetThread(_ context.Context, id types.ThreadID) (*model.Thread, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	th, ok := b.threads[id]
	if !ok {
		return nil, goerr.Wrap(types.ErrNotFound, "thread not found", goerr.V("threadID", id))
	}
	return &model.Thread{ID: id, CreatedAt: th.createdAt}, nil
}

func (b *InMemory) SendMessage(ctx context.Context, msg *model.BackendMessage) (*model.BackendReply, error) {
	if msg == nil {
		return nil, goerr.New("message is nil")
	}

	b.mu.Lock()
	if b.current == "" {
		b.mu.Unlock()
		return nil, goerr.Wrap(types.ErrFailedPrecondition, "assistant not initialized")
	}
	if _, ok := b.threads[msg.ThreadID]; !ok {
		// Unknown threads are revived rather than rejected so a dev
		// process restart does not strand existing conversations
		b.threads[msg.ThreadID] = &threadState{createdAt: time.Now().UTC()}
	}
	b.threads[msg.ThreadID].exchanges++
	systemPrompt := msg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = b.assistants[b.current]
	}
	b.mu.Unlock()

	content, err := b.generateReply(ctx, systemPrompt, msg.Content)
	if err != nil {
		return nil, err
	}

	if msg.MemoryMode == types.MemoryModeAuto {
		b.appendAutoMemory(msg.Content)
	}

	return &model.BackendReply{Content: content, Role: types.RoleAssistant}, nil
}

func (b *InMemory) StreamMessage(ctx context.Context, msg *model.BackendMessage) (<-chan string, error) {
	reply, err := b.SendMessage(ctx, &model.BackendMessage{
		ThreadID:     msg.ThreadID,
		Content:      msg.Content,
		MemoryMode:   types.MemoryModeOff, // side effect applied after the last chunk
		SystemPrompt: msg.SystemPrompt,
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan string)
	go func() {
		defer close(ch)
		runes := []rune(reply.Content)
		for i := 0; i < len(runes); i += streamChunkSize {
			end := i + streamChunkSize
			if end > len(runes) {
				end = len(runes)
			}
			select {
			case ch <- string(runes[i:end]):
			case <-ctx.Done():
				return
			}
		}
		if msg.MemoryMode == types.MemoryModeAuto {
			b.appendAutoMemory(msg.Content)
		}
	}()
	return ch, nil
}

// generateReply delegates to the injected model when available, falling
// back to a deterministic template
func (b *InMemory) generateReply(ctx context.Context, systemPrompt, content string) (string, error) {
	if b.llm == nil {
		return templatedReply(content), nil
	}

	session, err := b.llm.NewSession(ctx)
	if err != nil {
		return "", goerr.Wrap(types.ErrBackendUnavailable, "failed to create LLM session",
			goerr.V("cause", err.Error()))
	}

	input := content
	if systemPrompt != "" {
		input = systemPrompt + "\n\n" + content
	}
	resp, err := session.GenerateContent(ctx, gollem.Text(input))
	if err != nil {
		return "", goerr.Wrap(types.ErrBackendUnavailable, "failed to generate reply",
			goerr.V("cause", err.Error()))
	}
	if len(resp.Texts) == 0 {
		return "", goerr.Wrap(types.ErrBackendUnavailable, "LLM returned empty response")
	}
	return strings.Join(resp.Texts, "\n"), nil
}

// templatedReply is the deterministic fallback when no model is wired
func templatedReply(content string) string {
	excerpt := strings.TrimSpace(content)
	if idx := strings.IndexByte(excerpt, '\n'); idx >= 0 {
		excerpt = excerpt[:idx]
	}
	const maxExcerpt = 80
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt] + "..."
	}
	return fmt.Sprintf("Thank you for sharing that. I've noted %q. What else is on your mind?", excerpt)
}

// appendAutoMemory records the Auto-mode side effect: exactly one durable
// memory derived from the exchanged content
func (b *InMemory) appendAutoMemory(content string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.memories = append(b.memories, &model.Memory{
		ID:        types.NewMemoryID(),
		Content:   content,
		Score:     1.0,
		CreatedAt: time.Now().UTC(),
		Metadata:  map[string]any{"source": "auto"},
	})
}

func (b *InMemory) Memories(_ context.Context, limit int) ([]*model.RetrievedMemory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sorted := make([]*model.Memory, len(b.memories))
	copy(sorted, b.memories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	result := make([]*model.RetrievedMemory, 0, len(sorted))
	for _, m := range sorted {
		result = append(result, &model.RetrievedMemory{
			ID:        m.ID,
			Content:   m.Content,
			Relevance: m.Score,
			CreatedAt: m.CreatedAt,
		})
	}
	return result, nil
}

func (b *InMemory) MemoryStats(_ context.Context) (*model.MemoryStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &model.MemoryStats{TotalMemories: len(b.memories)}, nil
}

func (b *InMemory) CreateMemory(_ context.Context, content string, metadata map[string]any) (*model.Memory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == "" {
		return nil, goerr.Wrap(types.ErrFailedPrecondition, "assistant not initialized")
	}

	mem := &model.Memory{
		ID:        types.NewMemoryID(),
		Content:   content,
		Score:     1.0,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
	b.memories = append(b.memories, mem)

	copied := *mem
	return &copied, nil
}

func (b *InMemory) DeleteMemory(_ context.Context, id types.MemoryID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, m := range b.memories {
		if m.ID == id {
			b.memories = append(b.memories[:i], b.memories[i+1:]...)
			return nil
		}
	}
	return goerr.Wrap(types.ErrNotFound, "memory not found", goerr.V("memoryID", id))
}
