package sigproto

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"github.com/fxamacker/cbor/v2"
)

// KyberPreKeyRecord is a post-quantum KEM pre-key. Exactly one per identity
// is marked last-resort; it is used when no one-time PQ pre-key is available.
type KyberPreKeyRecord struct {
	ID         uint32    `cbor:"1,keyasint"`
	PublicKey  []byte    `cbor:"2,keyasint"`
	PrivateKey []byte    `cbor:"3,keyasint"`
	Signature  []byte    `cbor:"4,keyasint"`
	Timestamp  time.Time `cbor:"5,keyasint"`
	LastResort bool      `cbor:"6,keyasint"`
}

func generateKyberPreKey(id uint32, identity *IdentityKeyPair, lastResort bool) (*KyberPreKeyRecord, error) {
	pub, priv, err := kyber768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate kyber key pair: %w", err)
	}
	pubBytes := make([]byte, kyber768.PublicKeySize)
	pub.Pack(pubBytes)
	privBytes := make([]byte, kyber768.PrivateKeySize)
	priv.Pack(privBytes)
	return &KyberPreKeyRecord{
		ID:         id,
		PublicKey:  pubBytes,
		PrivateKey: privBytes,
		Signature:  identity.Sign(pubBytes),
		Timestamp:  time.Now(),
		LastResort: lastResort,
	}, nil
}

// GenerateKyberPreKey generates a one-time post-quantum pre-key signed by the
// identity.
func GenerateKyberPreKey(id uint32, identity *IdentityKeyPair) (*KyberPreKeyRecord, error) {
	return generateKyberPreKey(id, identity, false)
}

// GenerateLastResortKyberPreKey generates the reusable last-resort
// post-quantum pre-key signed by the identity.
func GenerateLastResortKyberPreKey(id uint32, identity *IdentityKeyPair) (*KyberPreKeyRecord, error) {
	return generateKyberPreKey(id, identity, true)
}

func (r *KyberPreKeyRecord) Serialize() ([]byte, error) {
	return cbor.Marshal(r)
}

func DeserializeKyberPreKeyRecord(data []byte) (*KyberPreKeyRecord, error) {
	var record KyberPreKeyRecord
	if err := cbor.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal kyber pre-key record: %w", err)
	}
	return &record, nil
}
