package types

import "fmt"

// ConversationStatus represents the lifecycle state of a conversation
type ConversationStatus string

const (
	ConversationStatusActive   ConversationStatus = "active"
	ConversationStatusArchived ConversationStatus = "archived"
)

// AllConversationStatuses returns all valid conversation statuses
func AllConversationStatuses() []ConversationStatus {
	return []ConversationStatus{
		ConversationStatusActive,
		ConversationStatusArchived,
	}
}

// IsValid checks if the conversation status is valid
func (s ConversationStatus) IsValid() bool {
	switch s {
	case ConversationStatusActive,
		ConversationStatusArchived:
		return true
	default:
		return false
	}
}

// Normalize returns the status, treating empty as active
func (s ConversationStatus) Normalize() ConversationStatus {
	if s == "" {
		return ConversationStatusActive
	}
	return s
}

// String returns the string representation of the conversation status
func (s ConversationStatus) String() string {
	return string(s)
}

// ParseConversationStatus parses a string into a ConversationStatus
func ParseConversationStatus(s string) (ConversationStatus, error) {
	status := ConversationStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid conversation status: %s", s)
	}
	return status, nil
}
