package usecase

import (
	"github.com/reverie-dev/reverie/pkg/domain/interfaces"
)

const (
	defaultAssistantName = "Reverie"
	defaultSystemPrompt  = "You are Reverie, a warm and attentive journaling companion. " +
		"You help the user reflect on their day, remember what matters to them, " +
		"and notice patterns over time. Keep replies conversational and brief."
)

type UseCases struct {
	repo    interfaces.Repository
	backend interfaces.MemoryBackend

	assistantName string
	systemPrompt  string

	locks *convLocks
}

type Option func(*UseCases)

// WithAssistantName overrides the assistant name registered with the
// memory backend
func WithAssistantName(name string) Option {
	return func(uc *UseCases) {
		if name != "" {
			uc.assistantName = name
		}
	}
}

// WithSystemPrompt overrides the persona prompt sent on every exchange
func WithSystemPrompt(prompt string) Option {
	return func(uc *UseCases) {
		if prompt != "" {
			uc.systemPrompt = prompt
		}
	}
}

func New(repo interfaces.Repository, backend interfaces.MemoryBackend, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:          repo,
		backend:       backend,
		assistantName: defaultAssistantName,
		systemPrompt:  defaultSystemPrompt,
		locks:         newConvLocks(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// AssistantName returns the configured assistant name, used at startup
// to initialize the backend assistant.
func (uc *UseCases) AssistantName() string {
	return uc.assistantName
}

// SystemPrompt returns the configured persona prompt
func (uc *UseCases) SystemPrompt() string {
	return uc.systemPrompt
}
