// signalreg - registration finalization for Signal-compatible clients.
// Copyright (C) 2024 signalreg authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package signalreg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.mau.fi/signalreg/pkg/signalreg/keyvalue"
	"go.mau.fi/signalreg/pkg/signalreg/store"
	"go.mau.fi/signalreg/pkg/signalreg/types"
	"go.mau.fi/signalreg/pkg/signalreg/web"
	"go.mau.fi/signalreg/pkg/sigproto"
)

// ErrMissingPreKeyCollection indicates a caller bug: finalize was invoked
// without both pre-key collections. Not retryable.
var ErrMissingPreKeyCollection = errors.New("missing pre-key collection")

// ErrMissingIdentityKeyPair indicates finalize ran before the identity key
// pairs were installed in the account store.
var ErrMissingIdentityKeyPair = errors.New("identity key pair not installed")

// Registrar finalizes a registration after the server has verified the
// number and issued service ids. Entry points run on their own goroutine and
// deliver a single-shot result; concurrent invocations are not supported and
// callers must serialize.
type Registrar struct {
	deps *Deps
}

func NewRegistrar(deps *Deps) *Registrar {
	return &Registrar{deps: deps}
}

// GetRegistrationID returns the ACI registration id, generating and
// persisting one the first time it is observed to be zero. Once non-zero the
// value is stable for the lifetime of the identity.
func (r *Registrar) GetRegistrationID() (int, error) {
	registrationID := r.deps.Account.RegistrationID()
	if registrationID == 0 {
		var err error
		registrationID, err = sigproto.GenerateRegistrationID()
		if err != nil {
			return 0, err
		}
		if err = r.deps.Account.SetRegistrationID(registrationID); err != nil {
			return 0, err
		}
	}
	return registrationID, nil
}

// GetPNIRegistrationID mirrors GetRegistrationID for the PNI identity.
func (r *Registrar) GetPNIRegistrationID() (int, error) {
	registrationID := r.deps.Account.PNIRegistrationID()
	if registrationID == 0 {
		var err error
		registrationID, err = sigproto.GenerateRegistrationID()
		if err != nil {
			return 0, err
		}
		if err = r.deps.Account.SetPNIRegistrationID(registrationID); err != nil {
			return 0, err
		}
	}
	return registrationID, nil
}

// GetProfileKey returns the profile key already attached to the E.164's
// recipient row, or a freshly generated one. Nothing is persisted here;
// finalize stores the key on the self row.
func (r *Registrar) GetProfileKey(ctx context.Context, e164 string) (sigproto.ProfileKey, error) {
	recipient, err := r.deps.Recipients.GetByE164(ctx, e164)
	if err != nil {
		return sigproto.ProfileKey{}, err
	}
	if recipient != nil && recipient.ProfileKey != nil {
		if key, parseErr := sigproto.ParseProfileKey(recipient.ProfileKey); parseErr == nil {
			return key, nil
		}
	}
	key, err := sigproto.GenerateProfileKey()
	if err != nil {
		return sigproto.ProfileKey{}, err
	}
	r.deps.Log.Info().Msg("No profile key found, created a new one")
	return key, nil
}

// RegisterPrimary finalizes a primary-device registration from a verify
// response. On success it enqueues the directory-refresh and
// certificate-rotation follow-ups and registers the periodic schedules.
func (r *Registrar) RegisterPrimary(ctx context.Context, data *types.RegistrationData, response *types.VerifyResponse, setRegistrationLockEnabled bool) <-chan ServiceResponse[types.VerifyResponse] {
	result := make(chan ServiceResponse[types.VerifyResponse], 1)
	go func() {
		defer close(result)
		if err := r.registerPrimary(ctx, data, response, setRegistrationLockEnabled); err != nil {
			registrationsFailed.WithLabelValues(modePrimary).Inc()
			result <- ForUnknownError[types.VerifyResponse](err)
			return
		}

		r.deps.Scheduler.EnqueueDirectoryRefresh(false)
		r.deps.Scheduler.EnqueueRotateCertificate()
		r.deps.Scheduler.SchedulePeriodicDirectoryRefresh()
		r.deps.Scheduler.SchedulePeriodicSignedPreKeyRotation()

		registrationsCompleted.WithLabelValues(modePrimary).Inc()
		result <- ForResult(response, http.StatusOK)
	}()
	return result
}

func (r *Registrar) registerPrimary(ctx context.Context, data *types.RegistrationData, response *types.VerifyResponse, setRegistrationLockEnabled bool) error {
	// A primary registration owns its own profile state.
	if err := r.deps.Flags.ClearNeedDownloadProfile(); err != nil {
		return err
	}
	if err := r.deps.Flags.ClearNeedDownloadProfileAvatar(); err != nil {
		return err
	}

	aci, err := types.ParseACI(response.VerifyAccountResponse.UUID)
	if err != nil {
		return err
	}
	pni, err := types.ParsePNI(response.VerifyAccountResponse.PNI)
	if err != nil {
		return err
	}
	if err = r.deps.Account.SetStorageCapable(response.VerifyAccountResponse.StorageCapable); err != nil {
		return err
	}

	return r.finalize(ctx, finalizeParams{
		Data:                       data,
		ACI:                        aci,
		PNI:                        pni,
		ACIPreKeys:                 response.ACIPreKeyCollection,
		PNIPreKeys:                 response.PNIPreKeyCollection,
		HasPin:                     response.VerifyAccountResponse.StorageCapable,
		DeviceID:                   types.DefaultDeviceID,
		MasterKey:                  response.MasterKey,
		Pin:                        response.Pin,
		SetRegistrationLockEnabled: setRegistrationLockEnabled,
	})
}

// RegisterLinkedDevice finalizes a secondary-device registration from the
// primary's provisioning response. On success it enqueues the
// certificate-rotation, all-data-sync and own-profile-refresh follow-ups.
// Directory refresh is deliberately not enqueued; the data sync triggers it.
func (r *Registrar) RegisterLinkedDevice(ctx context.Context, data *types.RegistrationData, response *types.NewDeviceRegistrationReturn, deviceID int, deviceName string) <-chan ServiceResponse[types.NewDeviceRegistrationReturn] {
	result := make(chan ServiceResponse[types.NewDeviceRegistrationReturn], 1)
	go func() {
		defer close(result)
		if err := r.registerLinkedDevice(ctx, data, response, deviceID, deviceName); err != nil {
			registrationsFailed.WithLabelValues(modeLinked).Inc()
			result <- ForUnknownError[types.NewDeviceRegistrationReturn](err)
			return
		}

		r.deps.Scheduler.EnqueueRotateCertificate()
		r.deps.Scheduler.EnqueueAllDataSyncRequest()
		r.deps.Scheduler.EnqueueRefreshOwnProfile()
		r.deps.Scheduler.SchedulePeriodicSignedPreKeyRotation()

		registrationsCompleted.WithLabelValues(modeLinked).Inc()
		result <- ForResult(response, http.StatusOK)
	}()
	return result
}

func (r *Registrar) registerLinkedDevice(ctx context.Context, data *types.RegistrationData, response *types.NewDeviceRegistrationReturn, deviceID int, deviceName string) error {
	// The device id must be set before the identity keys: the setters refuse
	// to install received identities on a primary. The identities must in
	// turn be installed before finalize, which signs pre-keys with them.
	if err := r.deps.Account.SetDeviceID(deviceID); err != nil {
		return err
	}
	if err := r.deps.Account.SetACIIdentityKeyPairFromPrimaryDevice(response.ACIIdentity); err != nil {
		return err
	}
	if err := r.deps.Account.SetPNIIdentityKeyPairFromPrimaryDevice(response.PNIIdentity); err != nil {
		return err
	}
	if err := r.deps.Flags.MarkNeedDownloadProfileAndAvatar(); err != nil {
		return err
	}

	aciPreKeys, err := GenerateSignedAndLastResortPreKeys(response.ACIIdentity, r.deps.Account.ACIPreKeys())
	if err != nil {
		return err
	}
	pniPreKeys, err := GenerateSignedAndLastResortPreKeys(response.PNIIdentity, r.deps.Account.PNIPreKeys())
	if err != nil {
		return err
	}

	profileKey := response.ProfileKey
	if profileKey == nil {
		fresh, err := sigproto.GenerateProfileKey()
		if err != nil {
			return err
		}
		profileKey = &fresh
	}

	linkedData := *data
	linkedData.E164 = response.Number
	linkedData.ProfileKey = *profileKey

	return r.finalize(ctx, finalizeParams{
		Data:       &linkedData,
		ACI:        response.ACI,
		PNI:        response.PNI,
		ACIPreKeys: aciPreKeys,
		PNIPreKeys: pniPreKeys,
		DeviceID:   deviceID,
		DeviceName: deviceName,
	})
}

type finalizeParams struct {
	Data                       *types.RegistrationData
	ACI                        types.ServiceID
	PNI                        types.ServiceID
	ACIPreKeys                 *types.PreKeyCollection
	PNIPreKeys                 *types.PreKeyCollection
	HasPin                     bool
	DeviceID                   int
	DeviceName                 string
	MasterKey                  *types.MasterKey
	Pin                        *string
	SetRegistrationLockEnabled bool
}

// finalize is the ordered step sequence that brings local state to
// "registered". The order is the core invariant of this subsystem: identity
// commit, session archival and pre-key installation are idempotent or
// monotone, and later steps overwrite stale values, so a retry after partial
// failure converges.
func (r *Registrar) finalize(ctx context.Context, params finalizeParams) error {
	if params.ACIPreKeys == nil {
		return fmt.Errorf("%w: ACI", ErrMissingPreKeyCollection)
	}
	if params.PNIPreKeys == nil {
		return fmt.Errorf("%w: PNI", ErrMissingPreKeyCollection)
	}

	account := r.deps.Account
	data := params.Data
	log := r.deps.Log.With().
		Str("action", "finalize registration").
		Int("device_id", params.DeviceID).
		Logger()
	ctx = log.WithContext(ctx)

	// 1: service ids and device metadata.
	if err := account.SetACI(params.ACI); err != nil {
		return err
	}
	if err := account.SetPNI(params.PNI); err != nil {
		return err
	}
	if err := account.SetDeviceID(params.DeviceID); err != nil {
		return err
	}
	if err := account.SetDeviceName(params.DeviceName); err != nil {
		return err
	}
	if params.DeviceID != types.DefaultDeviceID {
		if err := account.SetMultiDevice(true); err != nil {
			return err
		}
	}

	// 2: new identities invalidate all prior sessions and sender keys.
	if err := r.deps.ACISessions.ArchiveAllSessions(ctx); err != nil {
		return err
	}
	if err := r.deps.PNISessions.ArchiveAllSessions(ctx); err != nil {
		return err
	}
	if err := r.deps.ACISenderKeys.ClearAllSenderKeys(ctx); err != nil {
		return err
	}
	if err := r.deps.PNISenderKeys.ClearAllSenderKeys(ctx); err != nil {
		return err
	}

	// 3: persist both collections before anything references their ids.
	if err := storeSignedAndLastResortPreKeys(ctx, r.deps.ACIPreKeys, account.ACIPreKeys(), params.ACIPreKeys); err != nil {
		return err
	}
	if err := storeSignedAndLastResortPreKeys(ctx, r.deps.PNIPreKeys, account.PNIPreKeys(), params.PNIPreKeys); err != nil {
		return err
	}

	// 4: upsert the self recipient and link all three identifiers onto it.
	self, err := r.deps.Recipients.GetOrCreateByIdentifiers(ctx, params.ACI, params.PNI, data.E164)
	if err != nil {
		return err
	}
	if err = r.deps.Recipients.SetProfileSharing(ctx, self.ID, true); err != nil {
		return err
	}
	if err = r.deps.Recipients.MarkRegistered(ctx, self.ID, params.ACI); err != nil {
		return err
	}
	if err = r.deps.Recipients.LinkIdentifiersForSelf(ctx, params.ACI, params.PNI, data.E164); err != nil {
		return err
	}
	if err = r.deps.Recipients.SetProfileKey(ctx, self.ID, data.ProfileKey.Slice()); err != nil {
		return err
	}
	r.deps.Recipients.ClearSelfCache()

	// 5: number and push state.
	if err = account.SetE164(data.E164); err != nil {
		return err
	}
	if err = account.SetFCMToken(data.FCMToken); err != nil {
		return err
	}
	if err = account.SetFCMEnabled(data.IsFCM); err != nil {
		return err
	}

	// 6: record our own identities as verified first-use.
	now := time.Now()
	if err = r.saveOwnIdentity(ctx, self.ID, params.ACI, account.ACIIdentityKeyPair, now); err != nil {
		return err
	}
	if err = r.saveOwnIdentity(ctx, self.ID, params.PNI, account.PNIIdentityKeyPair, now); err != nil {
		return err
	}

	// 7: the password that authenticates every call from here on.
	if err = account.SetServicePassword(data.Password); err != nil {
		return err
	}

	// 8: a linked device uploads its own one-time pre-keys; the primary's
	// were uploaded by the verify flow before this point.
	if params.DeviceID != types.DefaultDeviceID {
		manager := r.deps.Managers.CreateAuthenticated(params.ACI, params.PNI, data.E164, params.DeviceID, data.Password)
		if err = r.uploadPreKeys(ctx, manager, types.ServiceIDKindACI, r.deps.ACIPreKeys, account.ACIPreKeys(), params.ACIPreKeys); err != nil {
			return err
		}
		if err = r.uploadPreKeys(ctx, manager, types.ServiceIDKindPNI, r.deps.PNIPreKeys, account.PNIPreKeys(), params.PNIPreKeys); err != nil {
			return err
		}
	}

	// 9: flip to registered and clear the nag state.
	if err = account.SetRegistered(true); err != nil {
		return err
	}
	if err = account.SetPromptedPushRegistration(true); err != nil {
		return err
	}
	if err = account.SetUnauthorizedReceived(false); err != nil {
		return err
	}
	r.deps.Notifier.CancelUnregisteredNotification()

	// 10: hand the pin material to SVR. A failure here propagates: the
	// account is registered, only backup auth is incomplete, and retry
	// re-runs finalize.
	if err = r.deps.SVR.OnRegistrationComplete(ctx, params.MasterKey, params.Pin, params.HasPin, params.SetRegistrationLockEnabled); err != nil {
		return err
	}

	// 11: recycle connections so they reopen with the new credentials.
	r.deps.Connections.CloseConnections()
	r.deps.Connections.StartIncomingMessageObserver()
	r.deps.Scheduler.EnqueuePreKeysSync()

	log.Info().
		Str("aci", params.ACI.String()).
		Str("pni", params.PNI.String()).
		Msg("Registration finalized")
	return nil
}

func (r *Registrar) saveOwnIdentity(ctx context.Context, selfID int64, serviceID types.ServiceID, loadKeyPair func() (*sigproto.IdentityKeyPair, error), now time.Time) error {
	keyPair, err := loadKeyPair()
	if err != nil {
		return err
	}
	if keyPair == nil {
		return fmt.Errorf("%w: %s", ErrMissingIdentityKeyPair, serviceID.Kind)
	}
	return r.deps.Identities.SaveOwnIdentity(ctx, selfID, serviceID, keyPair.PublicKey(), now)
}

func (r *Registrar) uploadPreKeys(ctx context.Context, manager PreKeyUploader, kind types.ServiceIDKind, preKeyStore store.PreKeyStore, metadata *keyvalue.PreKeyMetadataStore, collection *types.PreKeyCollection) error {
	oneTimeKeys, err := GenerateAndStoreOneTimeECPreKeys(ctx, preKeyStore, metadata)
	if err != nil {
		return err
	}
	// No PQ keys in this upload; the pre-key sync job handles those.
	err = manager.SetPreKeys(ctx, &web.PreKeyUpload{
		ServiceIDType:    kind,
		IdentityKey:      collection.IdentityKey,
		SignedPreKey:     collection.SignedPreKey,
		OneTimeECPreKeys: oneTimeKeys,
	})
	if err != nil {
		return err
	}
	preKeyUploads.WithLabelValues(string(kind)).Inc()
	return nil
}
