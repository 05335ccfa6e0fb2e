// Package keyvalue provides the durable key-value backing store for account
// state, plus the typed facades layered on top of it. One bbolt file backs
// every facade; multi-key writes commit in a single transaction.
package keyvalue

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	openTimeout = 5 * time.Second
	bucketName  = "signalreg"
)

// Store is a bbolt-backed key-value store. Writes commit synchronously;
// read-your-writes is guaranteed by bbolt's single-writer model.
type Store struct {
	db *bolt.DB

	listenerLock sync.RWMutex
	listener     func(key string)
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open key-value store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create key-value bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetListener installs a callback fired once per committed key, in commit
// order. External observers use it to watch write ordering.
func (s *Store) SetListener(fn func(key string)) {
	s.listenerLock.Lock()
	s.listener = fn
	s.listenerLock.Unlock()
}

func (s *Store) notify(keys []string) {
	s.listenerLock.RLock()
	listener := s.listener
	s.listenerLock.RUnlock()
	if listener == nil {
		return
	}
	for _, key := range keys {
		listener(key)
	}
}

func (s *Store) get(key string) []byte {
	var out []byte
	_ = s.db.View(func(tx *bolt.Tx) error {
		if val := tx.Bucket([]byte(bucketName)).Get([]byte(key)); val != nil {
			out = make([]byte, len(val))
			copy(out, val)
		}
		return nil
	})
	return out
}

func (s *Store) GetBytes(key string, defaultValue []byte) []byte {
	if val := s.get(key); val != nil {
		return val
	}
	return defaultValue
}

func (s *Store) GetBool(key string, defaultValue bool) bool {
	val := s.get(key)
	if val == nil {
		return defaultValue
	}
	return len(val) == 1 && val[0] == 1
}

func (s *Store) GetInt(key string, defaultValue int64) int64 {
	val := s.get(key)
	if len(val) != 8 {
		return defaultValue
	}
	return int64(binary.BigEndian.Uint64(val))
}

func (s *Store) GetString(key string, defaultValue string) string {
	val := s.get(key)
	if val == nil {
		return defaultValue
	}
	return string(val)
}

func (s *Store) PutBytes(key string, value []byte) error {
	return s.BeginWrite().PutBytes(key, value).Commit()
}

func (s *Store) PutBool(key string, value bool) error {
	return s.BeginWrite().PutBool(key, value).Commit()
}

func (s *Store) PutInt(key string, value int64) error {
	return s.BeginWrite().PutInt(key, value).Commit()
}

func (s *Store) PutString(key string, value string) error {
	return s.BeginWrite().PutString(key, value).Commit()
}

func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	s.notify([]string{key})
	return nil
}

type writeOp struct {
	key   string
	value []byte
}

// Writer batches multiple puts into one atomic commit.
type Writer struct {
	store *Store
	ops   []writeOp
}

func (s *Store) BeginWrite() *Writer {
	return &Writer{store: s}
}

func (w *Writer) PutBytes(key string, value []byte) *Writer {
	w.ops = append(w.ops, writeOp{key: key, value: value})
	return w
}

func (w *Writer) PutBool(key string, value bool) *Writer {
	encoded := []byte{0}
	if value {
		encoded[0] = 1
	}
	return w.PutBytes(key, encoded)
}

func (w *Writer) PutInt(key string, value int64) *Writer {
	encoded := make([]byte, 8)
	binary.BigEndian.PutUint64(encoded, uint64(value))
	return w.PutBytes(key, encoded)
}

func (w *Writer) PutString(key string, value string) *Writer {
	return w.PutBytes(key, []byte(value))
}

// Commit writes all batched ops in a single transaction, then fires the
// listener per key in batch order.
func (w *Writer) Commit() error {
	err := w.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		for _, op := range w.ops {
			if err := bucket.Put([]byte(op.key), op.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit key-value write: %w", err)
	}
	keys := make([]string, len(w.ops))
	for i, op := range w.ops {
		keys[i] = op.key
	}
	w.store.notify(keys)
	return nil
}
