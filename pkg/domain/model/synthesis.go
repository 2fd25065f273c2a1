package model

import "github.com/reverie-dev/reverie/pkg/domain/types"

// SynthesisResult is the validated structured output of one synthesis
// call: candidate memories plus conversational signals. Confidence values
// are clamped to [0,1] and unknown categories are dropped before this
// struct is built.
type SynthesisResult struct {
	Memories          []ExtractedMemory
	FollowUpQuestions []string
	ElaborationTopics []string
	PreviousTopics    []string
	Confidence        float64
	ShouldTerminate   bool
	TerminationReason types.TerminationReason
	IsMinimalResponse bool
}

// EmptySynthesisResult is the canonical degraded result: synthesis
// failure must never block the conversation.
func EmptySynthesisResult() *SynthesisResult {
	return &SynthesisResult{}
}
