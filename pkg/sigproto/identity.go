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

// Package sigproto implements the long-term and pre-key material consumed by
// the registration core: identity key pairs, signed elliptic-curve pre-keys,
// last-resort Kyber pre-keys, registration ids and profile keys.
package sigproto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const IdentityPublicKeySize = ed25519.PublicKeySize

// IdentityKeyPair is a long-term asymmetric key pair used to sign pre-keys
// and authenticate sessions. One exists per identity (ACI and PNI). It is
// created once and never rotated by this subsystem.
type IdentityKeyPair struct {
	seed      []byte
	signKey   ed25519.PrivateKey
	publicKey ed25519.PublicKey
}

func GenerateIdentityKeyPair() (*IdentityKeyPair, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to read random seed: %w", err)
	}
	return identityKeyPairFromSeed(seed), nil
}

func identityKeyPairFromSeed(seed []byte) *IdentityKeyPair {
	signKey := ed25519.NewKeyFromSeed(seed)
	return &IdentityKeyPair{
		seed:      seed,
		signKey:   signKey,
		publicKey: signKey.Public().(ed25519.PublicKey),
	}
}

// PublicKey returns the serialized public half of the identity.
func (kp *IdentityKeyPair) PublicKey() []byte {
	out := make([]byte, len(kp.publicKey))
	copy(out, kp.publicKey)
	return out
}

// Sign signs the given message with the identity private key.
func (kp *IdentityKeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.signKey, message)
}

// VerifySignature reports whether signature is a valid identity signature
// over message for the given serialized identity public key.
func VerifySignature(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

type serializedIdentityKeyPair struct {
	Seed []byte `cbor:"1,keyasint"`
}

func (kp *IdentityKeyPair) Serialize() ([]byte, error) {
	return cbor.Marshal(&serializedIdentityKeyPair{Seed: kp.seed})
}

func DeserializeIdentityKeyPair(data []byte) (*IdentityKeyPair, error) {
	var ser serializedIdentityKeyPair
	if err := cbor.Unmarshal(data, &ser); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity key pair: %w", err)
	}
	if len(ser.Seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid identity seed length %d", len(ser.Seed))
	}
	return identityKeyPairFromSeed(ser.Seed), nil
}
