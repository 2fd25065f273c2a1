package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
	"github.com/reverie-dev/reverie/pkg/repository/memory"
)

func setupConversation(t *testing.T, mock *backendMock) (*UseCases, *model.Conversation) {
	t.Helper()

	uc := New(memory.New(), mock)
	conv, err := uc.CreateConversation(context.Background(), "user-1", "test")
	gt.NoError(t, err).Required()
	return uc, conv
}

func TestProcessMessageElaborationPrompt(t *testing.T) {
	ctx := context.Background()
	mock := newBackendMock()
	mock.synthesisReply(`{
		"memories": [{"content": "went to the gym today", "category": "event", "confidence": 0.9}],
		"follow_up_questions": ["Which exercises did you do?"],
		"confidence": 0.8
	}`, "Nice, tell me more about the workout!")

	uc, conv := setupConversation(t, mock)

	resp, err := uc.ProcessMessage(ctx, "user-1", conv.ID, "I went to the gym today")
	gt.NoError(t, err).Required()

	gt.Value(t, resp.Content).Equal("Nice, tell me more about the workout!")
	gt.Value(t, resp.ShouldTerminate).Equal(false)
	gt.Value(t, resp.TerminationReason).Equal(types.TerminationNone)
	// No retrieved context (no durable memories in the mock), so the
	// follow-up question drives the strategy
	gt.Value(t, resp.Planning.ResponseStrategy).Equal(types.StrategyElaborationPrompt)
	gt.Array(t, resp.Planning.ExtractedMemories).Length(1)
	gt.Array(t, resp.Planning.RetrievedContext).Length(0)

	// The extracted memory was written explicitly with provenance
	gt.Array(t, mock.createdMemories).Length(1)
	gt.Value(t, mock.createdMemories[0]).Equal("went to the gym today")

	// Both turns persisted locally, user first
	messages, err := uc.repo.Message().Recent(ctx, conv.ID, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, messages).Length(2)
	gt.Value(t, messages[0].Role).Equal(types.RoleUser)
	gt.Value(t, messages[1].Role).Equal(types.RoleAssistant)
	gt.Value(t, messages[0].Metadata["response_strategy"]).Equal("elaboration_prompt")
}

func TestProcessMessageFarewell(t *testing.T) {
	ctx := context.Background()
	mock := newBackendMock()
	mock.synthesisReply(`{
		"memories": [{"content": "irrelevant", "category": "event", "confidence": 0.5}],
		"follow_up_questions": ["ignored?"],
		"should_terminate": true,
		"termination_reason": "user_farewell"
	}`, "Good night, talk soon!")

	uc, conv := setupConversation(t, mock)

	resp, err := uc.ProcessMessage(ctx, "user-1", conv.ID, "goodnight!")
	gt.NoError(t, err).Required()

	// Termination wins over every other signal
	gt.Value(t, resp.ShouldTerminate).Equal(true)
	gt.Value(t, resp.TerminationReason).Equal(types.TerminationUserFarewell)
	gt.Value(t, resp.Planning.ResponseStrategy).Equal(types.StrategyConversationClosing)
}

func TestProcessMessageMinimalResponseEndsSession(t *testing.T) {
	ctx := context.Background()
	mock := newBackendMock()
	mock.synthesisReply(`{"is_minimal_response": true}`, "Alright, resting sounds good.")

	uc, conv := setupConversation(t, mock)

	resp, err := uc.ProcessMessage(ctx, "user-1", conv.ID, "ok")
	gt.NoError(t, err).Required()

	// Minimal response with nothing left to ask or revisit ends the session
	gt.Value(t, resp.ShouldTerminate).Equal(true)
	gt.Value(t, resp.TerminationReason).Equal(types.TerminationNoNewInfo)
	gt.Value(t, resp.Planning.ResponseStrategy).Equal(types.StrategyMinimalResponseHandling)
}

func TestProcessMessageMinimalResponseWithRevisit(t *testing.T) {
	ctx := context.Background()
	mock := newBackendMock()
	mock.synthesisReply(`{"is_minimal_response": true, "previous_topics": ["the job interview"]}`, "Earlier you mentioned the interview, how did it go?")

	uc, conv := setupConversation(t, mock)

	resp, err := uc.ProcessMessage(ctx, "user-1", conv.ID, "yeah")
	gt.NoError(t, err).Required()

	gt.Value(t, resp.ShouldTerminate).Equal(false)
	gt.Value(t, resp.Planning.ResponseStrategy).Equal(types.StrategyTopicTransition)
}

func TestProcessMessageConversationNotFound(t *testing.T) {
	ctx := context.Background()
	mock := newBackendMock()
	uc, conv := setupConversation(t, mock)
	before := mock.sentCount()

	// Wrong owner
	_, err := uc.ProcessMessage(ctx, "someone-else", conv.ID, "hello")
	gt.Error(t, err)
	gt.Value(t, errors.Is(err, types.ErrNotFound)).Equal(true)

	// Unknown conversation
	_, err = uc.ProcessMessage(ctx, "user-1", types.NewConversationID(), "hello")
	gt.Error(t, err)
	gt.Value(t, errors.Is(err, types.ErrNotFound)).Equal(true)

	// No backend calls and no persisted messages past the lookup
	gt.Value(t, mock.sentCount()).Equal(before)
	messages, err := uc.repo.Message().Recent(ctx, conv.ID, 10)
	gt.NoError(t, err)
	gt.Array(t, messages).Length(0)
}

func TestProcessMessageReplyFailureAbortsTurn(t *testing.T) {
	ctx := context.Background()
	mock := newBackendMock()
	mock.sendMessageFn = func(_ context.Context, msg *model.BackendMessage) (*model.BackendReply, error) {
		if msg.MemoryMode == types.MemoryModeOff {
			return &model.BackendReply{Content: `{"confidence": 0.5}`, Role: types.RoleAssistant}, nil
		}
		return nil, errMockBackend
	}

	uc, conv := setupConversation(t, mock)

	_, err := uc.ProcessMessage(ctx, "user-1", conv.ID, "hello")
	gt.Error(t, err)

	// A failed turn persists nothing
	messages, err := uc.repo.Message().Recent(ctx, conv.ID, 10)
	gt.NoError(t, err)
	gt.Array(t, messages).Length(0)
}

func TestProcessMessageReplyUsesReadonlyMode(t *testing.T) {
	ctx := context.Background()
	mock := newBackendMock()
	mock.synthesisReply(`{"confidence": 0.5}`, "reply")

	uc, conv := setupConversation(t, mock)

	_, err := uc.ProcessMessage(ctx, "user-1", conv.ID, "hello")
	gt.NoError(t, err).Required()

	var replyMsg *model.BackendMessage
	for _, sent := range mock.sentMessages {
		if sent.ThreadID == conv.ThreadID {
			replyMsg = sent
		}
	}
	gt.Value(t, replyMsg != nil).Equal(true)
	gt.Value(t, replyMsg.MemoryMode).Equal(types.MemoryModeReadonly)
}

func TestStartConversation(t *testing.T) {
	ctx := context.Background()
	mock := newBackendMock()
	mock.memoriesFn = func(context.Context, int) ([]*model.RetrievedMemory, error) {
		return []*model.RetrievedMemory{
			{ID: "mem-1", Content: "training for a marathon", CreatedAt: time.Now()},
		}, nil
	}
	mock.sendMessageFn = func(_ context.Context, msg *model.BackendMessage) (*model.BackendReply, error) {
		// The greeting prompt carries the remembered fact
		gt.Value(t, strings.Contains(msg.Content, "training for a marathon")).Equal(true)
		return &model.BackendReply{Content: "Welcome back! How is the marathon training?", Role: types.RoleAssistant}, nil
	}

	uc, conv := setupConversation(t, mock)

	resp, err := uc.StartConversation(ctx, "user-1", conv.ID)
	gt.NoError(t, err).Required()

	gt.Value(t, resp.ShouldTerminate).Equal(false)
	gt.Value(t, resp.Planning.ResponseStrategy).Equal(types.StrategyInitialGreeting)

	// Only the assistant greeting is persisted
	messages, err := uc.repo.Message().Recent(ctx, conv.ID, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, messages).Length(1)
	gt.Value(t, messages[0].Role).Equal(types.RoleAssistant)
}

func TestStartConversationMemoryFetchBestEffort(t *testing.T) {
	ctx := context.Background()
	mock := newBackendMock()
	mock.memoriesFn = func(context.Context, int) ([]*model.RetrievedMemory, error) {
		return nil, errMockBackend
	}

	uc, conv := setupConversation(t, mock)

	resp, err := uc.StartConversation(ctx, "user-1", conv.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, resp.Content).Equal("mock reply")
	gt.Array(t, resp.Planning.RetrievedContext).Length(0)
}

func TestBuildAugmentedPrompt(t *testing.T) {
	syn := &model.SynthesisResult{
		FollowUpQuestions: []string{"q1", "q2", "q3"},
		ElaborationTopics: []string{"t1", "t2", "t3"},
		PreviousTopics:    []string{"p1", "p2", "p3"},
		IsMinimalResponse: true,
	}
	retrieved := retrievedMemories("m1", "m2", "m3", "m4")

	prompt := buildAugmentedPrompt("raw message", syn, retrieved)

	gt.Value(t, strings.HasPrefix(prompt, "raw message")).Equal(true)
	gt.Value(t, strings.Contains(prompt, "[Internal context - not shown to user]")).Equal(true)

	// Hint caps: 3 memories, 2 follow-ups, 2 topics, 2 revisits
	gt.Value(t, strings.Contains(prompt, "m3")).Equal(true)
	gt.Value(t, strings.Contains(prompt, "m4")).Equal(false)
	gt.Value(t, strings.Contains(prompt, "q2")).Equal(true)
	gt.Value(t, strings.Contains(prompt, "q3")).Equal(false)
	gt.Value(t, strings.Contains(prompt, "t3")).Equal(false)
	gt.Value(t, strings.Contains(prompt, "p3")).Equal(false)
	gt.Value(t, strings.Contains(prompt, "minimal response")).Equal(true)
}

func TestBuildAugmentedPromptBare(t *testing.T) {
	prompt := buildAugmentedPrompt("just text", model.EmptySynthesisResult(), nil)
	gt.Value(t, prompt).Equal("just text")
}

func TestInferStrategy(t *testing.T) {
	cases := []struct {
		name      string
		syn       *model.SynthesisResult
		retrieved []*model.RetrievedMemory
		want      types.ResponseStrategy
	}{
		{
			name: "terminating wins",
			syn: &model.SynthesisResult{
				ShouldTerminate:   true,
				IsMinimalResponse: true,
				FollowUpQuestions: []string{"q"},
			},
			retrieved: retrievedMemories("m"),
			want:      types.StrategyConversationClosing,
		},
		{
			name: "minimal with revisit",
			syn: &model.SynthesisResult{
				IsMinimalResponse: true,
				PreviousTopics:    []string{"p"},
			},
			want: types.StrategyTopicTransition,
		},
		{
			name: "minimal without revisit",
			syn:  &model.SynthesisResult{IsMinimalResponse: true},
			want: types.StrategyMinimalResponseHandling,
		},
		{
			name:      "retrieved context",
			syn:       model.EmptySynthesisResult(),
			retrieved: retrievedMemories("m"),
			want:      types.StrategyContextualFollowUp,
		},
		{
			name: "follow up questions",
			syn:  &model.SynthesisResult{FollowUpQuestions: []string{"q"}},
			want: types.StrategyElaborationPrompt,
		},
		{
			name: "feeling memory",
			syn: &model.SynthesisResult{
				Memories: []model.ExtractedMemory{
					{Content: "felt anxious", Category: types.MemoryCategoryFeeling},
				},
			},
			want: types.StrategyEmotionalSupport,
		},
		{
			name: "goal memory",
			syn: &model.SynthesisResult{
				Memories: []model.ExtractedMemory{
					{Content: "wants to save money", Category: types.MemoryCategoryGoal},
				},
			},
			want: types.StrategyGoalTracking,
		},
		{
			name: "fallback",
			syn:  model.EmptySynthesisResult(),
			want: types.StrategyGeneralJournaling,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Value(t, inferStrategy(tc.syn, tc.retrieved)).Equal(tc.want)
		})
	}
}

func TestFinalTermination(t *testing.T) {
	terminate, reason := finalTermination(&model.SynthesisResult{
		ShouldTerminate:   true,
		TerminationReason: types.TerminationUserFarewell,
	})
	gt.Value(t, terminate).Equal(true)
	gt.Value(t, reason).Equal(types.TerminationUserFarewell)

	terminate, reason = finalTermination(&model.SynthesisResult{IsMinimalResponse: true})
	gt.Value(t, terminate).Equal(true)
	gt.Value(t, reason).Equal(types.TerminationNoNewInfo)

	terminate, reason = finalTermination(&model.SynthesisResult{
		IsMinimalResponse: true,
		FollowUpQuestions: []string{"q"},
	})
	gt.Value(t, terminate).Equal(false)
	gt.Value(t, reason).Equal(types.TerminationNone)

	terminate, reason = finalTermination(model.EmptySynthesisResult())
	gt.Value(t, terminate).Equal(false)
	gt.Value(t, reason).Equal(types.TerminationNone)
}
