package keyvalue

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Pre-key ids wrap at 2^24, matching the medium integer range used on the
// wire.
const PreKeyIDMaximum = 1 << 24

// PreKeyMetadataStore tracks the id allocators and rotation bookkeeping for
// one identity's pre-keys. The next-id draws are post-increment modulo 2^24
// and atomic within the backing store; retries burn ids rather than reuse
// them.
type PreKeyMetadataStore struct {
	store  *Store
	prefix string
}

func newPreKeyMetadataStore(store *Store, prefix string) *PreKeyMetadataStore {
	return &PreKeyMetadataStore{store: store, prefix: prefix}
}

const (
	metaNextSignedPreKeyID         = "next_signed_prekey_id"
	metaNextKyberPreKeyID          = "next_kyber_prekey_id"
	metaNextOneTimePreKeyID        = "next_one_time_prekey_id"
	metaActiveSignedPreKeyID       = "active_signed_prekey_id"
	metaLastResortKyberPreKeyID    = "last_resort_kyber_prekey_id"
	metaSignedPreKeyRegistered     = "signed_prekey_registered"
	metaLastSignedPreKeyRotation   = "last_signed_prekey_rotation_time"
	metaLastResortKyberKeyRotation = "last_resort_kyber_prekey_rotation_time"
)

func randomPreKeyID() (int64, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read random pre-key id: %w", err)
	}
	return int64(binary.BigEndian.Uint32(buf[:]) % PreKeyIDMaximum), nil
}

// incrementInt atomically returns the current value of key (initializing it
// with init when absent) and stores value+1 modulo the pre-key id range.
func (s *Store) incrementInt(key string, init func() (int64, error)) (int64, error) {
	var current int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		raw := bucket.Get([]byte(key))
		if len(raw) == 8 {
			current = int64(binary.BigEndian.Uint64(raw))
		} else {
			var err error
			current, err = init()
			if err != nil {
				return err
			}
		}
		next := make([]byte, 8)
		binary.BigEndian.PutUint64(next, uint64((current+1)%PreKeyIDMaximum))
		return bucket.Put([]byte(key), next)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	s.notify([]string{key})
	return current, nil
}

// NextSignedPreKeyID draws the next signed pre-key id. The allocator starts
// at a random offset and never moves backwards.
func (m *PreKeyMetadataStore) NextSignedPreKeyID() (uint32, error) {
	id, err := m.store.incrementInt(m.prefix+metaNextSignedPreKeyID, randomPreKeyID)
	return uint32(id), err
}

// NextKyberPreKeyID draws the next Kyber pre-key id.
func (m *PreKeyMetadataStore) NextKyberPreKeyID() (uint32, error) {
	id, err := m.store.incrementInt(m.prefix+metaNextKyberPreKeyID, randomPreKeyID)
	return uint32(id), err
}

// NextOneTimePreKeyID draws the next one-time EC pre-key id.
func (m *PreKeyMetadataStore) NextOneTimePreKeyID() (uint32, error) {
	id, err := m.store.incrementInt(m.prefix+metaNextOneTimePreKeyID, randomPreKeyID)
	return uint32(id), err
}

func (m *PreKeyMetadataStore) ActiveSignedPreKeyID() (uint32, bool) {
	id := m.store.GetInt(m.prefix+metaActiveSignedPreKeyID, -1)
	if id < 0 {
		return 0, false
	}
	return uint32(id), true
}

func (m *PreKeyMetadataStore) SetActiveSignedPreKeyID(id uint32) error {
	return m.store.PutInt(m.prefix+metaActiveSignedPreKeyID, int64(id))
}

func (m *PreKeyMetadataStore) LastResortKyberPreKeyID() (uint32, bool) {
	id := m.store.GetInt(m.prefix+metaLastResortKyberPreKeyID, -1)
	if id < 0 {
		return 0, false
	}
	return uint32(id), true
}

func (m *PreKeyMetadataStore) SetLastResortKyberPreKeyID(id uint32) error {
	return m.store.PutInt(m.prefix+metaLastResortKyberPreKeyID, int64(id))
}

func (m *PreKeyMetadataStore) IsSignedPreKeyRegistered() bool {
	return m.store.GetBool(m.prefix+metaSignedPreKeyRegistered, false)
}

func (m *PreKeyMetadataStore) SetSignedPreKeyRegistered(registered bool) error {
	return m.store.PutBool(m.prefix+metaSignedPreKeyRegistered, registered)
}

func (m *PreKeyMetadataStore) LastSignedPreKeyRotationTime() time.Time {
	return time.UnixMilli(m.store.GetInt(m.prefix+metaLastSignedPreKeyRotation, 0))
}

func (m *PreKeyMetadataStore) SetLastSignedPreKeyRotationTime(t time.Time) error {
	return m.store.PutInt(m.prefix+metaLastSignedPreKeyRotation, t.UnixMilli())
}

func (m *PreKeyMetadataStore) LastResortKyberPreKeyRotationTime() time.Time {
	return time.UnixMilli(m.store.GetInt(m.prefix+metaLastResortKyberKeyRotation, 0))
}

func (m *PreKeyMetadataStore) SetLastResortKyberPreKeyRotationTime(t time.Time) error {
	return m.store.PutInt(m.prefix+metaLastResortKyberKeyRotation, t.UnixMilli())
}
