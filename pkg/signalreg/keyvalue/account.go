package keyvalue

import (
	"errors"
	"fmt"
	"sync"

	"go.mau.fi/signalreg/pkg/signalreg/types"
	"go.mau.fi/signalreg/pkg/sigproto"
)

const (
	keyACI                  = "account.aci"
	keyPNI                  = "account.pni"
	keyE164                 = "account.e164"
	keyDeviceID             = "account.device_id"
	keyDeviceName           = "account.device_name"
	keyServicePassword      = "account.service_password"
	keyRegistrationID       = "account.registration_id"
	keyPNIRegistrationID    = "account.pni_registration_id"
	keyACIIdentityKeyPair   = "account.aci_identity_key_pair"
	keyPNIIdentityKeyPair   = "account.pni_identity_key_pair"
	keyFCMToken             = "account.fcm_token"
	keyFCMEnabled           = "account.fcm_enabled"
	keyRegistered           = "account.is_registered"
	keyMultiDevice          = "account.has_linked_devices"
	keyStorageCapable       = "account.storage_capable"
	keyPromptedPushRegister = "account.prompted_push_registration"
	keyUnauthorizedReceived = "account.unauthorized_received"
)

// ErrNotLinkedDevice is returned by the identity-key setters that only make
// sense on a linked device, when the device id is still the primary default.
var ErrNotLinkedDevice = errors.New("identity keys from primary device require a linked device id")

// AccountStore is the typed facade over the top-level account properties.
// All methods share one coarse lock so multi-field reads see full commits.
type AccountStore struct {
	store *Store
	lock  sync.Mutex
}

func NewAccountStore(store *Store) *AccountStore {
	return &AccountStore{store: store}
}

func (a *AccountStore) ACI() types.ServiceID {
	a.lock.Lock()
	defer a.lock.Unlock()
	raw := a.store.GetString(keyACI, "")
	if raw == "" {
		return types.ServiceID{}
	}
	aci, err := types.ParseACI(raw)
	if err != nil {
		return types.ServiceID{}
	}
	return aci
}

func (a *AccountStore) SetACI(aci types.ServiceID) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutString(keyACI, aci.UUID.String())
}

func (a *AccountStore) PNI() types.ServiceID {
	a.lock.Lock()
	defer a.lock.Unlock()
	raw := a.store.GetString(keyPNI, "")
	if raw == "" {
		return types.ServiceID{}
	}
	pni, err := types.ParsePNI(raw)
	if err != nil {
		return types.ServiceID{}
	}
	return pni
}

func (a *AccountStore) SetPNI(pni types.ServiceID) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutString(keyPNI, pni.UUID.String())
}

func (a *AccountStore) E164() string {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.GetString(keyE164, "")
}

func (a *AccountStore) SetE164(e164 string) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutString(keyE164, e164)
}

func (a *AccountStore) DeviceID() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.deviceIDLocked()
}

func (a *AccountStore) deviceIDLocked() int {
	return int(a.store.GetInt(keyDeviceID, types.DefaultDeviceID))
}

func (a *AccountStore) SetDeviceID(deviceID int) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutInt(keyDeviceID, int64(deviceID))
}

func (a *AccountStore) DeviceName() string {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.GetString(keyDeviceName, "")
}

func (a *AccountStore) SetDeviceName(deviceName string) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutString(keyDeviceName, deviceName)
}

func (a *AccountStore) ServicePassword() string {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.GetString(keyServicePassword, "")
}

func (a *AccountStore) SetServicePassword(password string) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutString(keyServicePassword, password)
}

func (a *AccountStore) RegistrationID() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return int(a.store.GetInt(keyRegistrationID, 0))
}

func (a *AccountStore) SetRegistrationID(id int) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutInt(keyRegistrationID, int64(id))
}

func (a *AccountStore) PNIRegistrationID() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return int(a.store.GetInt(keyPNIRegistrationID, 0))
}

func (a *AccountStore) SetPNIRegistrationID(id int) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutInt(keyPNIRegistrationID, int64(id))
}

func (a *AccountStore) identityKeyPairLocked(key string) (*sigproto.IdentityKeyPair, error) {
	raw := a.store.GetBytes(key, nil)
	if raw == nil {
		return nil, nil
	}
	kp, err := sigproto.DeserializeIdentityKeyPair(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize identity key pair: %w", err)
	}
	return kp, nil
}

func (a *AccountStore) setIdentityKeyPairLocked(key string, kp *sigproto.IdentityKeyPair) error {
	serialized, err := kp.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize identity key pair: %w", err)
	}
	return a.store.PutBytes(key, serialized)
}

func (a *AccountStore) ACIIdentityKeyPair() (*sigproto.IdentityKeyPair, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.identityKeyPairLocked(keyACIIdentityKeyPair)
}

func (a *AccountStore) SetACIIdentityKeyPair(kp *sigproto.IdentityKeyPair) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.setIdentityKeyPairLocked(keyACIIdentityKeyPair, kp)
}

// SetACIIdentityKeyPairFromPrimaryDevice installs the ACI identity received
// over provisioning. It refuses to run while the device id is still the
// primary default: a primary generates its own identity, only a linked device
// may receive one.
func (a *AccountStore) SetACIIdentityKeyPairFromPrimaryDevice(kp *sigproto.IdentityKeyPair) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.deviceIDLocked() == types.DefaultDeviceID {
		return ErrNotLinkedDevice
	}
	return a.setIdentityKeyPairLocked(keyACIIdentityKeyPair, kp)
}

func (a *AccountStore) PNIIdentityKeyPair() (*sigproto.IdentityKeyPair, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.identityKeyPairLocked(keyPNIIdentityKeyPair)
}

func (a *AccountStore) SetPNIIdentityKeyPair(kp *sigproto.IdentityKeyPair) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.setIdentityKeyPairLocked(keyPNIIdentityKeyPair, kp)
}

// SetPNIIdentityKeyPairFromPrimaryDevice mirrors the ACI variant for the PNI
// identity.
func (a *AccountStore) SetPNIIdentityKeyPairFromPrimaryDevice(kp *sigproto.IdentityKeyPair) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.deviceIDLocked() == types.DefaultDeviceID {
		return ErrNotLinkedDevice
	}
	return a.setIdentityKeyPairLocked(keyPNIIdentityKeyPair, kp)
}

func (a *AccountStore) FCMToken() string {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.GetString(keyFCMToken, "")
}

func (a *AccountStore) SetFCMToken(token string) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutString(keyFCMToken, token)
}

func (a *AccountStore) IsFCMEnabled() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.GetBool(keyFCMEnabled, false)
}

func (a *AccountStore) SetFCMEnabled(enabled bool) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutBool(keyFCMEnabled, enabled)
}

func (a *AccountStore) IsRegistered() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.GetBool(keyRegistered, false)
}

func (a *AccountStore) SetRegistered(registered bool) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutBool(keyRegistered, registered)
}

func (a *AccountStore) IsMultiDevice() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.GetBool(keyMultiDevice, false)
}

func (a *AccountStore) SetMultiDevice(multiDevice bool) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutBool(keyMultiDevice, multiDevice)
}

func (a *AccountStore) IsStorageCapable() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.GetBool(keyStorageCapable, false)
}

func (a *AccountStore) SetStorageCapable(capable bool) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutBool(keyStorageCapable, capable)
}

func (a *AccountStore) PromptedPushRegistration() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.GetBool(keyPromptedPushRegister, false)
}

func (a *AccountStore) SetPromptedPushRegistration(prompted bool) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutBool(keyPromptedPushRegister, prompted)
}

func (a *AccountStore) UnauthorizedReceived() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.GetBool(keyUnauthorizedReceived, false)
}

func (a *AccountStore) SetUnauthorizedReceived(received bool) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.store.PutBool(keyUnauthorizedReceived, received)
}

// ACIPreKeys returns the pre-key metadata facade for the ACI identity.
func (a *AccountStore) ACIPreKeys() *PreKeyMetadataStore {
	return newPreKeyMetadataStore(a.store, "account.aci_pre_keys.")
}

// PNIPreKeys returns the pre-key metadata facade for the PNI identity.
func (a *AccountStore) PNIPreKeys() *PreKeyMetadataStore {
	return newPreKeyMetadataStore(a.store, "account.pni_pre_keys.")
}
