package types

// ResponseStrategy is a descriptive tag summarizing why the orchestrator
// framed its reply the way it did. Debug/analytics only; never shown to
// the end user.
type ResponseStrategy string

const (
	StrategyConversationClosing     ResponseStrategy = "conversation_closing"
	StrategyTopicTransition         ResponseStrategy = "topic_transition"
	StrategyMinimalResponseHandling ResponseStrategy = "minimal_response_handling"
	StrategyContextualFollowUp      ResponseStrategy = "contextual_follow_up"
	StrategyElaborationPrompt       ResponseStrategy = "elaboration_prompt"
	StrategyEmotionalSupport        ResponseStrategy = "emotional_support"
	StrategyGoalTracking            ResponseStrategy = "goal_tracking"
	StrategyGeneralJournaling       ResponseStrategy = "general_journaling"
	StrategyInitialGreeting         ResponseStrategy = "initial_greeting"
)

// String returns the string representation of the response strategy
func (s ResponseStrategy) String() string {
	return string(s)
}
