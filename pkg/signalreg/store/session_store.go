package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// SessionStore holds protocol session records for one local identity.
// Archiving keeps the record but marks it unusable for sending; installing a
// new identity archives everything.
type SessionStore interface {
	StoreSession(ctx context.Context, theirServiceID string, theirDeviceID int, record []byte) error
	ArchiveAllSessions(ctx context.Context) error
	ActiveSessionCount(ctx context.Context) (int, error)
	ArchivedSessionCount(ctx context.Context) (int, error)
}

const (
	storeSessionQuery = `
		INSERT INTO signalreg_sessions (our_identity, their_service_id, their_device_id, record, archived)
		VALUES ($1, $2, $3, $4, false)
		ON CONFLICT (our_identity, their_service_id, their_device_id)
			DO UPDATE SET record=excluded.record, archived=false
	`
	archiveAllSessionsQuery = "UPDATE signalreg_sessions SET archived=true WHERE our_identity=$1"
	countSessionsQuery      = "SELECT COUNT(*) FROM signalreg_sessions WHERE our_identity=$1 AND archived=$2"
)

func (s *ScopedStore) StoreSession(ctx context.Context, theirServiceID string, theirDeviceID int, record []byte) error {
	err := s.execContext(ctx, storeSessionQuery, s.Identity, theirServiceID, theirDeviceID, record)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// ArchiveAllSessions marks every session of this identity archived. Existing
// rows are kept so ratchet state can be recovered for decryption.
func (s *ScopedStore) ArchiveAllSessions(ctx context.Context) error {
	err := s.execContext(ctx, archiveAllSessionsQuery, s.Identity)
	if err != nil {
		return fmt.Errorf("failed to archive sessions: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("identity", string(s.Identity)).Msg("Archived all sessions")
	return nil
}

func (s *ScopedStore) ActiveSessionCount(ctx context.Context) (count int, err error) {
	err = s.db.QueryRowContext(ctx, countSessionsQuery, s.Identity, false).Scan(&count)
	return count, err
}

func (s *ScopedStore) ArchivedSessionCount(ctx context.Context) (count int, err error) {
	err = s.db.QueryRowContext(ctx, countSessionsQuery, s.Identity, true).Scan(&count)
	return count, err
}
