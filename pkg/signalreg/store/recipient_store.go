package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"go.mau.fi/signalreg/pkg/signalreg/types"
)

// RecipientStore is the directory of known recipients. During registration
// only the self row is touched.
type RecipientStore interface {
	GetOrCreateByIdentifiers(ctx context.Context, aci, pni types.ServiceID, e164 string) (*Recipient, error)
	GetByE164(ctx context.Context, e164 string) (*Recipient, error)
	GetRecipient(ctx context.Context, id int64) (*Recipient, error)
	SetProfileSharing(ctx context.Context, id int64, sharing bool) error
	MarkRegistered(ctx context.Context, id int64, aci types.ServiceID) error
	LinkIdentifiersForSelf(ctx context.Context, aci, pni types.ServiceID, e164 string) error
	SetProfileKey(ctx context.Context, id int64, profileKey []byte) error
	ClearSelfCache()
}

var _ RecipientStore = (*Container)(nil)

// Recipient is one row of the directory. After registration the self row
// carries all three identifiers.
type Recipient struct {
	ID             int64
	ACI            string
	PNI            string
	E164           string
	ProfileKey     []byte
	ProfileSharing bool
	Registered     bool
}

const (
	recipientColumns     = "id, aci, pni, e164, profile_key, profile_sharing, registered"
	getRecipientQuery    = "SELECT " + recipientColumns + " FROM signalreg_recipients WHERE id=$1"
	getByACIQuery        = "SELECT " + recipientColumns + " FROM signalreg_recipients WHERE aci=$1"
	getByPNIQuery        = "SELECT " + recipientColumns + " FROM signalreg_recipients WHERE pni=$1"
	getByE164Query       = "SELECT " + recipientColumns + " FROM signalreg_recipients WHERE e164=$1"
	nextRecipientIDQuery = "SELECT COALESCE(MAX(id), 0) + 1 FROM signalreg_recipients"
	insertRecipientQuery = `
		INSERT INTO signalreg_recipients (id, aci, pni, e164, profile_sharing, registered)
		VALUES ($1, $2, $3, $4, false, false)
	`
	setProfileSharingQuery = "UPDATE signalreg_recipients SET profile_sharing=$1 WHERE id=$2"
	markRegisteredQuery    = "UPDATE signalreg_recipients SET registered=true, aci=$1 WHERE id=$2"
	setProfileKeyQuery     = "UPDATE signalreg_recipients SET profile_key=$1 WHERE id=$2"
	unlinkACIQuery         = "UPDATE signalreg_recipients SET aci=NULL WHERE aci=$1 AND id<>$2"
	unlinkPNIQuery         = "UPDATE signalreg_recipients SET pni=NULL WHERE pni=$1 AND id<>$2"
	unlinkE164Query        = "UPDATE signalreg_recipients SET e164=NULL WHERE e164=$1 AND id<>$2"
	linkSelfQuery          = "UPDATE signalreg_recipients SET aci=$1, pni=$2, e164=$3 WHERE id=$4"
)

func scanRecipient(row scannable) (*Recipient, error) {
	var r Recipient
	var aci, pni, e164 sql.NullString
	err := row.Scan(&r.ID, &aci, &pni, &e164, &r.ProfileKey, &r.ProfileSharing, &r.Registered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan recipient: %w", err)
	}
	r.ACI = aci.String
	r.PNI = pni.String
	r.E164 = e164.String
	return &r, nil
}

func (c *Container) GetRecipient(ctx context.Context, id int64) (*Recipient, error) {
	return scanRecipient(c.db.QueryRowContext(ctx, getRecipientQuery, id))
}

func (c *Container) GetByE164(ctx context.Context, e164 string) (*Recipient, error) {
	return scanRecipient(c.db.QueryRowContext(ctx, getByE164Query, e164))
}

// GetOrCreateByIdentifiers finds the recipient matching any of the given
// identifiers, preferring the ACI match, or inserts a fresh row. This is the
// trusted upsert used for the self recipient after the server has issued
// service ids.
func (c *Container) GetOrCreateByIdentifiers(ctx context.Context, aci, pni types.ServiceID, e164 string) (*Recipient, error) {
	log := zerolog.Ctx(ctx)
	for _, lookup := range []struct {
		query string
		arg   string
	}{
		{getByACIQuery, aci.UUID.String()},
		{getByPNIQuery, pni.UUID.String()},
		{getByE164Query, e164},
	} {
		recipient, err := scanRecipient(c.db.QueryRowContext(ctx, lookup.query, lookup.arg))
		if err != nil {
			return nil, err
		} else if recipient != nil {
			return recipient, nil
		}
	}

	var nextID int64
	if err := c.db.QueryRowContext(ctx, nextRecipientIDQuery).Scan(&nextID); err != nil {
		return nil, fmt.Errorf("failed to allocate recipient id: %w", err)
	}
	err := c.execContext(ctx, insertRecipientQuery, nextID, aci.UUID.String(), pni.UUID.String(), e164)
	if err != nil {
		return nil, fmt.Errorf("failed to insert recipient: %w", err)
	}
	log.Debug().Int64("recipient_id", nextID).Msg("Created new self recipient row")
	return c.GetRecipient(ctx, nextID)
}

func (c *Container) SetProfileSharing(ctx context.Context, id int64, sharing bool) error {
	return c.execContext(ctx, setProfileSharingQuery, sharing, id)
}

func (c *Container) MarkRegistered(ctx context.Context, id int64, aci types.ServiceID) error {
	return c.execContext(ctx, markRegisteredQuery, aci.UUID.String(), id)
}

// LinkIdentifiersForSelf moves all three identifiers onto the self row,
// clearing them from any stale rows first.
func (c *Container) LinkIdentifiersForSelf(ctx context.Context, aci, pni types.ServiceID, e164 string) error {
	self, err := c.GetOrCreateByIdentifiers(ctx, aci, pni, e164)
	if err != nil {
		return err
	}
	for _, unlink := range []struct {
		query string
		arg   string
	}{
		{unlinkACIQuery, aci.UUID.String()},
		{unlinkPNIQuery, pni.UUID.String()},
		{unlinkE164Query, e164},
	} {
		if err = c.execContext(ctx, unlink.query, unlink.arg, self.ID); err != nil {
			return fmt.Errorf("failed to unlink stale identifier: %w", err)
		}
	}
	err = c.execContext(ctx, linkSelfQuery, aci.UUID.String(), pni.UUID.String(), e164, self.ID)
	if err != nil {
		return fmt.Errorf("failed to link self identifiers: %w", err)
	}
	return nil
}

func (c *Container) SetProfileKey(ctx context.Context, id int64, profileKey []byte) error {
	return c.execContext(ctx, setProfileKeyQuery, profileKey, id)
}

// SelfRecipient returns the cached self row, loading it by ACI on a miss.
func (c *Container) SelfRecipient(ctx context.Context, aci types.ServiceID) (*Recipient, error) {
	c.selfLock.Lock()
	defer c.selfLock.Unlock()
	if c.self != nil && c.self.ACI == aci.UUID.String() {
		return c.self, nil
	}
	self, err := scanRecipient(c.db.QueryRowContext(ctx, getByACIQuery, aci.UUID.String()))
	if err != nil {
		return nil, err
	}
	c.self = self
	return self, nil
}

// ClearSelfCache drops the cached self recipient so the next read sees the
// freshly linked row.
func (c *Container) ClearSelfCache() {
	c.selfLock.Lock()
	c.self = nil
	c.selfLock.Unlock()
}
