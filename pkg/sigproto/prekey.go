package sigproto

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/curve25519"
)

// ECKeyPair is a Curve25519 key pair used for pre-keys.
type ECKeyPair struct {
	PrivateKey [32]byte `cbor:"1,keyasint"`
	PublicKey  [32]byte `cbor:"2,keyasint"`
}

// GenerateECKeyPair returns a fresh Curve25519 key pair with the private
// scalar clamped per RFC 7748.
func GenerateECKeyPair() (*ECKeyPair, error) {
	var kp ECKeyPair
	if _, err := rand.Read(kp.PrivateKey[:]); err != nil {
		return nil, fmt.Errorf("failed to read random scalar: %w", err)
	}
	kp.PrivateKey[0] &= 248
	kp.PrivateKey[31] &= 127
	kp.PrivateKey[31] |= 64
	curve25519.ScalarBaseMult(&kp.PublicKey, &kp.PrivateKey)
	return &kp, nil
}

// PreKeyRecord is a one-time elliptic-curve pre-key.
type PreKeyRecord struct {
	ID      uint32    `cbor:"1,keyasint"`
	KeyPair ECKeyPair `cbor:"2,keyasint"`
}

func GeneratePreKey(id uint32) (*PreKeyRecord, error) {
	kp, err := GenerateECKeyPair()
	if err != nil {
		return nil, err
	}
	return &PreKeyRecord{ID: id, KeyPair: *kp}, nil
}

func (r *PreKeyRecord) Serialize() ([]byte, error) {
	return cbor.Marshal(r)
}

func DeserializePreKeyRecord(data []byte) (*PreKeyRecord, error) {
	var record PreKeyRecord
	if err := cbor.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pre-key record: %w", err)
	}
	return &record, nil
}

// SignedPreKeyRecord is a medium-term pre-key whose public half is signed by
// the identity key. The signature must verify under the identity public key.
type SignedPreKeyRecord struct {
	ID        uint32    `cbor:"1,keyasint"`
	KeyPair   ECKeyPair `cbor:"2,keyasint"`
	Signature []byte    `cbor:"3,keyasint"`
	Timestamp time.Time `cbor:"4,keyasint"`
}

// GenerateSignedPreKey generates a signed pre-key with the given id, signing
// its public half with the identity private key.
func GenerateSignedPreKey(id uint32, identity *IdentityKeyPair) (*SignedPreKeyRecord, error) {
	kp, err := GenerateECKeyPair()
	if err != nil {
		return nil, err
	}
	return &SignedPreKeyRecord{
		ID:        id,
		KeyPair:   *kp,
		Signature: identity.Sign(kp.PublicKey[:]),
		Timestamp: time.Now(),
	}, nil
}

func (r *SignedPreKeyRecord) Serialize() ([]byte, error) {
	return cbor.Marshal(r)
}

func DeserializeSignedPreKeyRecord(data []byte) (*SignedPreKeyRecord, error) {
	var record SignedPreKeyRecord
	if err := cbor.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signed pre-key record: %w", err)
	}
	return &record, nil
}
