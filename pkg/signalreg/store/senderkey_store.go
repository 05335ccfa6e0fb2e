package store

import (
	"context"
	"fmt"
)

// SenderKeyStore holds group sender-key state. New identities invalidate all
// of it at once.
type SenderKeyStore interface {
	StoreSenderKey(ctx context.Context, theirServiceID string, theirDeviceID int, distributionID string, record []byte) error
	ClearAllSenderKeys(ctx context.Context) error
	SenderKeyCount(ctx context.Context) (int, error)
}

var _ SenderKeyStore = (*ScopedStore)(nil)

const (
	storeSenderKeyQuery = `
		INSERT INTO signalreg_sender_keys (our_identity, their_service_id, their_device_id, distribution_id, record)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (our_identity, their_service_id, their_device_id, distribution_id)
			DO UPDATE SET record=excluded.record
	`
	clearSenderKeysQuery = "DELETE FROM signalreg_sender_keys WHERE our_identity=$1"
	countSenderKeysQuery = "SELECT COUNT(*) FROM signalreg_sender_keys WHERE our_identity=$1"
)

func (s *ScopedStore) StoreSenderKey(ctx context.Context, theirServiceID string, theirDeviceID int, distributionID string, record []byte) error {
	err := s.execContext(ctx, storeSenderKeyQuery, s.Identity, theirServiceID, theirDeviceID, distributionID, record)
	if err != nil {
		return fmt.Errorf("failed to store sender key: %w", err)
	}
	return nil
}

func (s *ScopedStore) ClearAllSenderKeys(ctx context.Context) error {
	err := s.execContext(ctx, clearSenderKeysQuery, s.Identity)
	if err != nil {
		return fmt.Errorf("failed to clear sender keys: %w", err)
	}
	return nil
}

func (s *ScopedStore) SenderKeyCount(ctx context.Context) (count int, err error) {
	err = s.db.QueryRowContext(ctx, countSenderKeysQuery, s.Identity).Scan(&count)
	return count, err
}
