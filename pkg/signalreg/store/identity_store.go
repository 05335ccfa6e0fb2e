package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mau.fi/signalreg/pkg/signalreg/types"
)

type TrustLevel string

const (
	TrustLevelUnverified TrustLevel = "unverified"
	TrustLevelVerified   TrustLevel = "verified"
)

// IdentityStore is the identity table: one public key per service id with a
// trust level.
type IdentityStore interface {
	SaveOwnIdentity(ctx context.Context, recipientID int64, serviceID types.ServiceID, publicKey []byte, now time.Time) error
	GetIdentity(ctx context.Context, serviceID types.ServiceID) (*IdentityRecord, error)
}

var _ IdentityStore = (*Container)(nil)

type IdentityRecord struct {
	ServiceID   string
	RecipientID int64
	PublicKey   []byte
	TrustLevel  TrustLevel
	FirstUse    bool
	Self        bool
	AddedAt     time.Time
}

const (
	saveIdentityQuery = `
		INSERT INTO signalreg_identities (service_id, recipient_id, public_key, trust_level, first_use, self, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (service_id) DO UPDATE SET
			recipient_id=excluded.recipient_id,
			public_key=excluded.public_key,
			trust_level=excluded.trust_level,
			first_use=excluded.first_use,
			self=excluded.self,
			added_at=excluded.added_at
	`
	getIdentityQuery = `
		SELECT service_id, recipient_id, public_key, trust_level, first_use, self, added_at
		FROM signalreg_identities WHERE service_id=$1
	`
)

// SaveOwnIdentity records one of the local identities as verified and
// first-use, without any of the change side effects a remote identity save
// would trigger.
func (c *Container) SaveOwnIdentity(ctx context.Context, recipientID int64, serviceID types.ServiceID, publicKey []byte, now time.Time) error {
	err := c.execContext(ctx, saveIdentityQuery,
		serviceID.String(), recipientID, publicKey, TrustLevelVerified, true, true, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save own identity: %w", err)
	}
	return nil
}

func (c *Container) GetIdentity(ctx context.Context, serviceID types.ServiceID) (*IdentityRecord, error) {
	var record IdentityRecord
	var addedAt int64
	err := c.db.QueryRowContext(ctx, getIdentityQuery, serviceID.String()).Scan(
		&record.ServiceID, &record.RecipientID, &record.PublicKey,
		&record.TrustLevel, &record.FirstUse, &record.Self, &addedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan identity: %w", err)
	}
	record.AddedAt = time.UnixMilli(addedAt)
	return &record, nil
}
