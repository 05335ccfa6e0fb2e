package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.mau.fi/signalreg/pkg/sigproto"
)

type preKeyKind string

const (
	preKeyKindOneTime preKeyKind = "one_time"
	preKeyKindSigned  preKeyKind = "signed"
	preKeyKindKyber   preKeyKind = "kyber"
)

// PreKeyStore persists pre-key records (with their private halves) for one
// local identity. Records must be stored here before any upload references
// their ids.
type PreKeyStore interface {
	SaveSignedPreKey(ctx context.Context, record *sigproto.SignedPreKeyRecord) error
	SignedPreKey(ctx context.Context, id uint32) (*sigproto.SignedPreKeyRecord, error)
	SaveKyberPreKey(ctx context.Context, record *sigproto.KyberPreKeyRecord) error
	KyberPreKey(ctx context.Context, id uint32) (*sigproto.KyberPreKeyRecord, error)
	SaveOneTimePreKey(ctx context.Context, record *sigproto.PreKeyRecord) error
	OneTimePreKey(ctx context.Context, id uint32) (*sigproto.PreKeyRecord, error)
	MarkOneTimePreKeysUploaded(ctx context.Context, upToID uint32) error
	UploadedOneTimePreKeyCount(ctx context.Context) (int, error)
}

const (
	insertPreKeyQuery = `
		INSERT INTO signalreg_prekeys (our_identity, kind, key_id, record, uploaded)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (our_identity, kind, key_id) DO UPDATE SET record=excluded.record, uploaded=excluded.uploaded
	`
	getPreKeyQuery            = "SELECT record FROM signalreg_prekeys WHERE our_identity=$1 AND kind=$2 AND key_id=$3"
	markPreKeysUploadedQuery  = "UPDATE signalreg_prekeys SET uploaded=true WHERE our_identity=$1 AND kind=$2 AND key_id<=$3"
	countUploadedPreKeysQuery = "SELECT COUNT(*) FROM signalreg_prekeys WHERE our_identity=$1 AND kind=$2 AND uploaded=true"
)

func (s *ScopedStore) savePreKey(ctx context.Context, kind preKeyKind, keyID uint32, record []byte, uploaded bool) error {
	err := s.execContext(ctx, insertPreKeyQuery, s.Identity, kind, keyID, record, uploaded)
	if err != nil {
		return fmt.Errorf("failed to save %s pre-key %d: %w", kind, keyID, err)
	}
	return nil
}

func (s *ScopedStore) getPreKey(ctx context.Context, kind preKeyKind, keyID uint32) ([]byte, error) {
	var record []byte
	err := s.db.QueryRowContext(ctx, getPreKeyQuery, s.Identity, kind, keyID).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to query %s pre-key %d: %w", kind, keyID, err)
	}
	return record, nil
}

func (s *ScopedStore) SaveSignedPreKey(ctx context.Context, record *sigproto.SignedPreKeyRecord) error {
	serialized, err := record.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize signed pre-key: %w", err)
	}
	return s.savePreKey(ctx, preKeyKindSigned, record.ID, serialized, false)
}

func (s *ScopedStore) SignedPreKey(ctx context.Context, id uint32) (*sigproto.SignedPreKeyRecord, error) {
	raw, err := s.getPreKey(ctx, preKeyKindSigned, id)
	if raw == nil || err != nil {
		return nil, err
	}
	return sigproto.DeserializeSignedPreKeyRecord(raw)
}

func (s *ScopedStore) SaveKyberPreKey(ctx context.Context, record *sigproto.KyberPreKeyRecord) error {
	serialized, err := record.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize kyber pre-key: %w", err)
	}
	return s.savePreKey(ctx, preKeyKindKyber, record.ID, serialized, false)
}

func (s *ScopedStore) KyberPreKey(ctx context.Context, id uint32) (*sigproto.KyberPreKeyRecord, error) {
	raw, err := s.getPreKey(ctx, preKeyKindKyber, id)
	if raw == nil || err != nil {
		return nil, err
	}
	return sigproto.DeserializeKyberPreKeyRecord(raw)
}

func (s *ScopedStore) SaveOneTimePreKey(ctx context.Context, record *sigproto.PreKeyRecord) error {
	serialized, err := record.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize pre-key: %w", err)
	}
	return s.savePreKey(ctx, preKeyKindOneTime, record.ID, serialized, false)
}

func (s *ScopedStore) OneTimePreKey(ctx context.Context, id uint32) (*sigproto.PreKeyRecord, error) {
	raw, err := s.getPreKey(ctx, preKeyKindOneTime, id)
	if raw == nil || err != nil {
		return nil, err
	}
	return sigproto.DeserializePreKeyRecord(raw)
}

func (s *ScopedStore) MarkOneTimePreKeysUploaded(ctx context.Context, upToID uint32) error {
	err := s.execContext(ctx, markPreKeysUploadedQuery, s.Identity, preKeyKindOneTime, upToID)
	if err != nil {
		return fmt.Errorf("failed to mark pre-keys uploaded: %w", err)
	}
	return nil
}

func (s *ScopedStore) UploadedOneTimePreKeyCount(ctx context.Context) (count int, err error) {
	err = s.db.QueryRowContext(ctx, countUploadedPreKeysQuery, s.Identity, preKeyKindOneTime).Scan(&count)
	return count, err
}
