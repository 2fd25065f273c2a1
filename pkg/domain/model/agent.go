package model

import (
	"time"

	"github.com/reverie-dev/reverie/pkg/domain/types"
)

// PlanningState is the per-turn debug envelope: what synthesis extracted,
// what retrieval selected, and which strategy the orchestrator inferred.
// Not persisted.
type PlanningState struct {
	ExtractedMemories []ExtractedMemory
	FollowUpQuestions []string
	RetrievedContext  []*RetrievedMemory
	ResponseStrategy  types.ResponseStrategy
}

// AgentResponse is the envelope returned to the caller for one processed
// turn or greeting.
type AgentResponse struct {
	Content           string
	Planning          *PlanningState
	Timestamp         time.Time
	ShouldTerminate   bool
	TerminationReason types.TerminationReason
}
