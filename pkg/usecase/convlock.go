package usecase

import (
	"sync"

	"github.com/reverie-dev/reverie/pkg/domain/types"
)

// convLocks serializes turns per conversation. Two overlapping turns on
// the same conversation would interleave message writes and corrupt the
// perceived chronological order, so the orchestrator holds the
// conversation's lock for the whole turn. Entries are refcounted and
// removed when the last holder releases, keeping the map bounded by the
// number of in-flight turns.
type convLocks struct {
	mu    sync.Mutex
	locks map[types.ConversationID]*convLockEntry
}

type convLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newConvLocks() *convLocks {
	return &convLocks{
		locks: make(map[types.ConversationID]*convLockEntry),
	}
}

// Lock acquires the per-conversation lock and returns its release func
func (l *convLocks) Lock(id types.ConversationID) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &convLockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
