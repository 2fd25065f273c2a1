package types

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors shared by repositories, the memory backend clients and
// the use cases. Callers match with errors.Is.
var (
	// ErrNotFound: a conversation, thread or memory does not exist for the
	// given owner. Surfaced to the caller, never retried.
	ErrNotFound = goerr.New("not found")

	// ErrFailedPrecondition: the memory backend was used before the
	// assistant or thread was initialized. Programmer error.
	ErrFailedPrecondition = goerr.New("failed precondition")

	// ErrBackendUnavailable: transient failure of the remote memory
	// backend. Synthesis/retrieval recover from it locally; reply
	// generation propagates it.
	ErrBackendUnavailable = goerr.New("memory backend unavailable")
)
