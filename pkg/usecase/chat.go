package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
	"github.com/reverie-dev/reverie/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

//go:embed prompt/greeting.md
var greetingPromptTmpl string

var greetingPrompt = template.Must(template.New("greeting").Parse(greetingPromptTmpl))

const (
	// chatContextSize is how many recent messages feed synthesis
	chatContextSize = 10

	// retrievalLimit bounds the per-turn retrieved memory set
	retrievalLimit = 5

	// greetingMemoryLimit bounds the memories used to personalize a
	// session greeting
	greetingMemoryLimit = 5

	// internalContextHeader separates the raw user message from the
	// hint block that only the backend's language model sees
	internalContextHeader = "\n\n[Internal context - not shown to user]\n"
)

// ProcessMessage runs one full turn: synthesis, retrieval, memory
// writes, augmented reply generation, local persistence, and strategy
// and termination inference. Turns on the same conversation are
// serialized; turns on different conversations run independently.
func (uc *UseCases) ProcessMessage(ctx context.Context, userID string, conversationID types.ConversationID, content string) (*model.AgentResponse, error) {
	unlock := uc.locks.Lock(conversationID)
	defer unlock()

	conv, err := uc.repo.Conversation().Get(ctx, userID, conversationID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve conversation",
			goerr.V("conversationID", conversationID))
	}

	recent, err := uc.repo.Message().Recent(ctx, conversationID, chatContextSize)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load recent context",
			goerr.V("conversationID", conversationID))
	}

	synthesis := uc.Synthesize(ctx, content, recent, nil)
	retrieval := uc.RetrieveContext(ctx, synthesis.Result, recent, retrievalLimit)

	uc.storeExtractedMemories(ctx, synthesis.Result.Memories)

	prompt := buildAugmentedPrompt(content, synthesis.Result, retrieval.Memories)

	reply, err := uc.backend.SendMessage(ctx, &model.BackendMessage{
		ThreadID: conv.ThreadID,
		Content:  prompt,
		// Explicit writes above already persisted this turn's memories;
		// Readonly suppresses the backend's auto-write to avoid
		// duplication
		MemoryMode:   types.MemoryModeReadonly,
		SystemPrompt: uc.systemPrompt,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate reply",
			goerr.V("conversationID", conversationID),
			goerr.V("threadID", conv.ThreadID))
	}

	strategy := inferStrategy(synthesis.Result, retrieval.Memories)
	shouldTerminate, reason := finalTermination(synthesis.Result)

	// The reply already exists; cancellation past this point must not
	// cause silent message loss
	persistCtx := context.WithoutCancel(ctx)

	userMsg := model.NewMessage(conversationID, types.RoleUser, content, map[string]any{
		"synthesis": map[string]any{
			"extracted_memories": len(synthesis.Result.Memories),
			"confidence":         synthesis.Result.Confidence,
			"degraded":           synthesis.Degraded,
		},
		"retrieval": map[string]any{
			"retrieved_context": len(retrieval.Memories),
			"degraded":          retrieval.Degraded,
		},
		"response_strategy": strategy.String(),
	})
	if _, err := uc.repo.Message().Put(persistCtx, userMsg); err != nil {
		return nil, goerr.Wrap(err, "failed to persist user message",
			goerr.V("conversationID", conversationID))
	}

	assistantMsg := model.NewMessage(conversationID, types.RoleAssistant, reply.Content, nil)
	if _, err := uc.repo.Message().Put(persistCtx, assistantMsg); err != nil {
		return nil, goerr.Wrap(err, "failed to persist assistant message",
			goerr.V("conversationID", conversationID))
	}

	return &model.AgentResponse{
		Content: reply.Content,
		Planning: &model.PlanningState{
			ExtractedMemories: synthesis.Result.Memories,
			FollowUpQuestions: synthesis.Result.FollowUpQuestions,
			RetrievedContext:  retrieval.Memories,
			ResponseStrategy:  strategy,
		},
		Timestamp:         assistantMsg.CreatedAt,
		ShouldTerminate:   shouldTerminate,
		TerminationReason: reason,
	}, nil
}

// StartConversation opens a session with a personalized greeting. Only
// the assistant's greeting is persisted; memory fetch is best-effort.
func (uc *UseCases) StartConversation(ctx context.Context, userID string, conversationID types.ConversationID) (*model.AgentResponse, error) {
	unlock := uc.locks.Lock(conversationID)
	defer unlock()

	conv, err := uc.repo.Conversation().Get(ctx, userID, conversationID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve conversation",
			goerr.V("conversationID", conversationID))
	}

	memories, err := uc.backend.Memories(ctx, greetingMemoryLimit)
	if err != nil {
		logging.From(ctx).Warn("failed to fetch memories for greeting", "error", err)
		memories = nil
	}

	var buf bytes.Buffer
	if err := greetingPrompt.Execute(&buf, map[string]any{"Memories": memories}); err != nil {
		return nil, goerr.Wrap(err, "failed to render greeting prompt")
	}

	reply, err := uc.backend.SendMessage(ctx, &model.BackendMessage{
		ThreadID:     conv.ThreadID,
		Content:      buf.String(),
		MemoryMode:   types.MemoryModeReadonly,
		SystemPrompt: uc.systemPrompt,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate greeting",
			goerr.V("conversationID", conversationID),
			goerr.V("threadID", conv.ThreadID))
	}

	persistCtx := context.WithoutCancel(ctx)
	greetingMsg := model.NewMessage(conversationID, types.RoleAssistant, reply.Content, nil)
	if _, err := uc.repo.Message().Put(persistCtx, greetingMsg); err != nil {
		return nil, goerr.Wrap(err, "failed to persist greeting",
			goerr.V("conversationID", conversationID))
	}

	return &model.AgentResponse{
		Content: reply.Content,
		Planning: &model.PlanningState{
			RetrievedContext: memories,
			ResponseStrategy: types.StrategyInitialGreeting,
		},
		Timestamp: greetingMsg.CreatedAt,
	}, nil
}

// storeExtractedMemories writes synthesis output into the backend with
// provenance metadata. Writes run concurrently and failures are logged,
// not propagated; losing a memory must not abort the turn.
func (uc *UseCases) storeExtractedMemories(ctx context.Context, memories []model.ExtractedMemory) {
	if len(memories) == 0 {
		return
	}

	logger := logging.From(ctx)
	var eg errgroup.Group
	for _, mem := range memories {
		eg.Go(func() error {
			metadata := map[string]any{
				"category":   mem.Category.String(),
				"confidence": mem.Confidence,
				"source":     "synthesis",
				"timestamp":  time.Now().UTC().Format(time.RFC3339),
			}
			if _, err := uc.backend.CreateMemory(ctx, mem.Content, metadata); err != nil {
				logger.Warn("failed to store extracted memory",
					"category", mem.Category, "error", err)
			}
			return nil
		})
	}
	_ = eg.Wait()
}

// buildAugmentedPrompt appends the internal hint block to the raw user
// message. The block is visible to the backend's language model only.
func buildAugmentedPrompt(userMessage string, syn *model.SynthesisResult, retrieved []*model.RetrievedMemory) string {
	var hints []string

	if syn.ShouldTerminate {
		hints = append(hints, "The user appears to be ending the session. Close the conversation warmly and briefly.")
	} else if syn.IsMinimalResponse {
		hints = append(hints, "The user gave a minimal response. Gently offer a new direction instead of pressing the current topic.")
	}

	for i, m := range retrieved {
		if i >= 3 {
			break
		}
		hints = append(hints, "Relevant memory: "+m.Content)
	}
	for i, q := range syn.FollowUpQuestions {
		if i >= 2 {
			break
		}
		hints = append(hints, "Possible follow-up question: "+q)
	}
	for i, topic := range syn.ElaborationTopics {
		if i >= 2 {
			break
		}
		hints = append(hints, "Topic worth elaborating: "+topic)
	}
	for i, topic := range syn.PreviousTopics {
		if i >= 2 {
			break
		}
		hints = append(hints, "Earlier topic worth revisiting: "+topic)
	}

	if len(hints) == 0 {
		return userMessage
	}

	var sb strings.Builder
	sb.WriteString(userMessage)
	sb.WriteString(internalContextHeader)
	for _, h := range hints {
		fmt.Fprintf(&sb, "- %s\n", h)
	}
	return sb.String()
}

// inferStrategy picks the single response-strategy tag by first-match
// priority
func inferStrategy(syn *model.SynthesisResult, retrieved []*model.RetrievedMemory) types.ResponseStrategy {
	switch {
	case syn.ShouldTerminate:
		return types.StrategyConversationClosing
	case syn.IsMinimalResponse && len(syn.PreviousTopics) > 0:
		return types.StrategyTopicTransition
	case syn.IsMinimalResponse:
		return types.StrategyMinimalResponseHandling
	case len(retrieved) > 0:
		return types.StrategyContextualFollowUp
	case len(syn.FollowUpQuestions) > 0:
		return types.StrategyElaborationPrompt
	case hasCategory(syn.Memories, types.MemoryCategoryFeeling):
		return types.StrategyEmotionalSupport
	case hasCategory(syn.Memories, types.MemoryCategoryGoal):
		return types.StrategyGoalTracking
	default:
		return types.StrategyGeneralJournaling
	}
}

func hasCategory(memories []model.ExtractedMemory, category types.MemoryCategory) bool {
	for _, m := range memories {
		if m.Category == category {
			return true
		}
	}
	return false
}

// finalTermination derives the turn's termination decision. Beyond an
// explicit synthesis signal, a minimal response with nothing left to ask
// or revisit also ends the session.
func finalTermination(syn *model.SynthesisResult) (bool, types.TerminationReason) {
	if syn.ShouldTerminate {
		return true, syn.TerminationReason
	}
	if syn.IsMinimalResponse && len(syn.FollowUpQuestions) == 0 && len(syn.PreviousTopics) == 0 {
		return true, types.TerminationNoNewInfo
	}
	return false, types.TerminationNone
}
