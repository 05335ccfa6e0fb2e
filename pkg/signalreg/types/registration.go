package types

import (
	"go.mau.fi/util/random"

	"go.mau.fi/signalreg/pkg/sigproto"
)

const servicePasswordLength = 24

// GenerateServicePassword returns a fresh random password for authenticating
// against the service, generated once per registration attempt.
func GenerateServicePassword() string {
	return random.String(servicePasswordLength)
}

// MasterKey is the secure-value-recovery master key protected by the
// user's PIN.
type MasterKey [32]byte

// RegistrationData is the client-side half of a registration attempt,
// assembled before the verification exchange.
type RegistrationData struct {
	Code              string
	E164              string
	Password          string
	RegistrationID    int
	PNIRegistrationID int
	ProfileKey        sigproto.ProfileKey
	FCMToken          string
	IsFCM             bool
	RecoveryPassword  string
}

// PreKeyCollection is the tuple uploaded for one identity: the identity
// public key, an active signed pre-key and the last-resort Kyber pre-key.
type PreKeyCollection struct {
	IdentityKey           []byte
	SignedPreKey          *sigproto.SignedPreKeyRecord
	LastResortKyberPreKey *sigproto.KyberPreKeyRecord
}

// VerifyAccountResponse is the service-id assignment issued by the server
// after code verification.
type VerifyAccountResponse struct {
	UUID           string `json:"uuid"`
	PNI            string `json:"pni"`
	StorageCapable bool   `json:"storageCapable"`
}

// VerifyResponse is the input to primary registration: the verified account
// response plus the pre-key collections built during the verify flow.
type VerifyResponse struct {
	VerifyAccountResponse VerifyAccountResponse
	ACIPreKeyCollection   *PreKeyCollection
	PNIPreKeyCollection   *PreKeyCollection
	MasterKey             *MasterKey
	Pin                   *string
}

// NewDeviceRegistrationReturn is the input to linked-device registration,
// received from the primary device during provisioning.
type NewDeviceRegistrationReturn struct {
	ACI         ServiceID
	PNI         ServiceID
	Number      string
	ACIIdentity *sigproto.IdentityKeyPair
	PNIIdentity *sigproto.IdentityKeyPair
	ProfileKey  *sigproto.ProfileKey
}
