package policy

import (
	"sync"

	"github.com/btcsuite/btcd/wire"
)

// keyedMutex provides one mutex per outpoint so that concurrent
// requests touching the same outpoint serialize their sign-and-record
// step, while requests over disjoint outpoints proceed in parallel.
// Entries are reference counted and removed when the last holder
// unlocks, so the map does not grow with ledger history.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[wire.OutPoint]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for op and returns the matching unlock func
func (k *keyedMutex) lock(op wire.OutPoint) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[wire.OutPoint]*lockEntry)
	}
	entry := k.locks[op]
	if entry == nil {
		entry = &lockEntry{}
		k.locks[op] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, op)
		}
		k.mu.Unlock()
	}
}
