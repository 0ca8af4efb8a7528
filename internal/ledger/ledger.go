// Package ledger implements the durable store of signed-outpoint facts.
// It is the daemon's sole source of truth for duplicate prevention:
// an outpoint with a record here has already been signed and must never
// be signed again.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"
	bolt "go.etcd.io/bbolt"
)

var bucketSignedOutpoints = []byte("signed_outpoints")

var (
	ErrClosed        = errors.New("ledger is closed")
	ErrCorruptRecord = errors.New("corrupt signed-outpoint record")
)

// SignedOutpointRecord is the persisted fact that this daemon signed a
// given outpoint. Records are append-only: once written they are never
// updated or deleted.
type SignedOutpointRecord struct {
	PubKey    []byte
	Signature []byte
	SignedAt  time.Time
}

// Store is a bbolt-backed outpoint ledger. The only mutating operation
// is InsertIfAbsent, which is atomic with respect to the existence check
// and committed to disk before it returns.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens or creates the ledger at the given path
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path required")
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger at %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSignedOutpoints); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", string(bucketSignedOutpoints), err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the ledger file path
func (s *Store) Path() string {
	return s.path
}

// Lookup returns the record for the given outpoint, or nil if the
// outpoint has never been signed. An error means the ledger could not
// be consulted and the caller must not treat the outpoint as unsigned.
func (s *Store) Lookup(op wire.OutPoint) (*SignedOutpointRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}

	var rec *SignedOutpointRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSignedOutpoints).Get(outpointKey(op))
		if raw == nil {
			return nil
		}
		decoded, err := decodeRecord(raw)
		if err != nil {
			return fmt.Errorf("outpoint %s: %w", op.String(), err)
		}
		rec = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// InsertIfAbsent atomically records the outpoint as signed unless a
// record already exists. It returns true when this call performed the
// insert; false means a record was already present and nothing changed.
// On true return the record has been committed to stable storage.
func (s *Store) InsertIfAbsent(op wire.OutPoint, rec *SignedOutpointRecord) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	if rec == nil {
		return false, fmt.Errorf("nil record for outpoint %s", op.String())
	}

	inserted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSignedOutpoints)
		key := outpointKey(op)

		if bucket.Get(key) != nil {
			return nil
		}

		if err := bucket.Put(key, encodeRecord(rec)); err != nil {
			return fmt.Errorf("failed to store record for outpoint %s: %w", op.String(), err)
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Count returns the number of signed-outpoint records
func (s *Store) Count() (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}

	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketSignedOutpoints).Stats().KeyN
		return nil
	})
	return n, err
}

// outpointKey serializes an outpoint into its 36-byte ledger key:
// the txid followed by the big-endian output index.
func outpointKey(op wire.OutPoint) []byte {
	key := make([]byte, 36)
	copy(key[:32], op.Hash[:])
	binary.BigEndian.PutUint32(key[32:], op.Index)
	return key
}

// Record layout: 8-byte unix timestamp, 1-byte pubkey length, pubkey,
// 2-byte signature length, signature. All integers big-endian.

func encodeRecord(rec *SignedOutpointRecord) []byte {
	buf := make([]byte, 0, 11+len(rec.PubKey)+len(rec.Signature))
	buf = binary.BigEndian.AppendUint64(buf, uint64(rec.SignedAt.Unix()))
	buf = append(buf, byte(len(rec.PubKey)))
	buf = append(buf, rec.PubKey...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(rec.Signature)))
	buf = append(buf, rec.Signature...)
	return buf
}

func decodeRecord(raw []byte) (*SignedOutpointRecord, error) {
	if len(raw) < 11 {
		return nil, ErrCorruptRecord
	}

	ts := binary.BigEndian.Uint64(raw[:8])
	pubLen := int(raw[8])
	if len(raw) < 11+pubLen {
		return nil, ErrCorruptRecord
	}
	pubKey := raw[9 : 9+pubLen]

	sigLen := int(binary.BigEndian.Uint16(raw[9+pubLen : 11+pubLen]))
	if len(raw) != 11+pubLen+sigLen {
		return nil, ErrCorruptRecord
	}
	sig := raw[11+pubLen:]

	rec := &SignedOutpointRecord{
		PubKey:    append([]byte(nil), pubKey...),
		Signature: append([]byte(nil), sig...),
		SignedAt:  time.Unix(int64(ts), 0).UTC(),
	}
	return rec, nil
}
