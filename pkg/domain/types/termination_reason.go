package types

// TerminationReason explains why a turn signaled the end of a session.
// Empty means the conversation continues.
type TerminationReason string

const (
	TerminationNone         TerminationReason = ""
	TerminationUserFarewell TerminationReason = "user_farewell"
	TerminationUserRequest  TerminationReason = "user_request"
	TerminationNaturalEnd   TerminationReason = "natural_end"
	TerminationNoNewInfo    TerminationReason = "no_new_info"
)

// IsValid checks if the termination reason is valid. The empty reason is
// valid and means "not terminating".
func (r TerminationReason) IsValid() bool {
	switch r {
	case TerminationNone,
		TerminationUserFarewell,
		TerminationUserRequest,
		TerminationNaturalEnd,
		TerminationNoNewInfo:
		return true
	default:
		return false
	}
}

// String returns the string representation of the termination reason
func (r TerminationReason) String() string {
	return string(r)
}

// NormalizeTerminationReason maps an upstream-model supplied reason onto
// the known set. Unknown values degrade to TerminationUserRequest rather
// than failing the turn.
func NormalizeTerminationReason(s string) TerminationReason {
	r := TerminationReason(s)
	if r == TerminationNone {
		return TerminationNone
	}
	if !r.IsValid() {
		return TerminationUserRequest
	}
	return r
}
