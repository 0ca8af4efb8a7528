package policy

import (
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func TestKeyedMutexSerializesPerOutpoint(t *testing.T) {
	var km keyedMutex
	op := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}

	const workers = 32

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.lock(op)
			defer unlock()
			counter++ // data race unless the lock serializes holders
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("counter = %d, want %d", counter, workers)
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	var km keyedMutex
	op := wire.OutPoint{Hash: chainhash.Hash{0x02}, Index: 7}

	unlock := km.lock(op)
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.locks) != 0 {
		t.Fatalf("lock table holds %d entries after release, want 0", len(km.locks))
	}
}

func TestKeyedMutexIndependentOutpoints(t *testing.T) {
	var km keyedMutex
	a := wire.OutPoint{Hash: chainhash.Hash{0x03}, Index: 0}
	b := wire.OutPoint{Hash: chainhash.Hash{0x03}, Index: 1}

	unlockA := km.lock(a)
	// A held lock on a must not block b.
	unlockB := km.lock(b)
	unlockB()
	unlockA()
}
