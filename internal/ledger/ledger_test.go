package ledger

import (
	"crypto/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "cosignerd.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func randomOutpoint(t *testing.T) wire.OutPoint {
	t.Helper()

	var hash chainhash.Hash
	_, err := rand.Read(hash[:])
	require.NoError(t, err)
	return wire.OutPoint{Hash: hash, Index: 0}
}

func testRecord() *SignedOutpointRecord {
	return &SignedOutpointRecord{
		PubKey:    []byte{0x02, 0xaa, 0xbb},
		Signature: []byte{0x30, 0x44, 0x01},
		SignedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}

func TestLookupAbsent(t *testing.T) {
	store := openTestStore(t)

	rec, err := store.Lookup(randomOutpoint(t))
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestInsertIfAbsentWriteOnce(t *testing.T) {
	store := openTestStore(t)
	op := randomOutpoint(t)

	inserted, err := store.InsertIfAbsent(op, testRecord())
	require.NoError(t, err)
	require.True(t, inserted)

	// A second insert must be a no-op regardless of the new record.
	other := testRecord()
	other.Signature = []byte{0xde, 0xad}
	inserted, err = store.InsertIfAbsent(op, other)
	require.NoError(t, err)
	require.False(t, inserted)

	rec, err := store.Lookup(op)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, testRecord().Signature, rec.Signature)

	count, err := store.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRecordRoundTrip(t *testing.T) {
	store := openTestStore(t)
	op := randomOutpoint(t)

	want := testRecord()
	_, err := store.InsertIfAbsent(op, want)
	require.NoError(t, err)

	got, err := store.Lookup(op)
	require.NoError(t, err)
	require.Equal(t, want.PubKey, got.PubKey)
	require.Equal(t, want.Signature, got.Signature)
	require.Equal(t, want.SignedAt.Unix(), got.SignedAt.Unix())
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cosignerd.db")
	op := randomOutpoint(t)

	store, err := Open(path)
	require.NoError(t, err)

	inserted, err := store.InsertIfAbsent(op, testRecord())
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Lookup(op)
	require.NoError(t, err)
	require.NotNil(t, rec)

	inserted, err = reopened.InsertIfAbsent(op, testRecord())
	require.NoError(t, err)
	require.False(t, inserted)
}

func TestConcurrentInsertSingleWinner(t *testing.T) {
	store := openTestStore(t)
	op := randomOutpoint(t)

	const workers = 16

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := store.InsertIfAbsent(op, testRecord())
			if err != nil {
				t.Error(err)
				return
			}
			if inserted {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)

	count, err := store.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestClosedStore(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Close())

	_, err := store.Lookup(randomOutpoint(t))
	require.Error(t, err)

	_, err = store.InsertIfAbsent(randomOutpoint(t), testRecord())
	require.Error(t, err)
}

func TestDecodeRecordRejectsCorruptData(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x01},
		make([]byte, 10),
		append(make([]byte, 8), 0xff, 0x00, 0x00), // pubkey length beyond data
	}
	for _, raw := range cases {
		_, err := decodeRecord(raw)
		require.ErrorIs(t, err, ErrCorruptRecord)
	}
}
