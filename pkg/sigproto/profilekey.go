package sigproto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

const ProfileKeySize = 32

// ProfileKey is the 32-byte symmetric key protecting a user's profile.
type ProfileKey [ProfileKeySize]byte

func GenerateProfileKey() (ProfileKey, error) {
	var key ProfileKey
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("failed to read random profile key: %w", err)
	}
	return key, nil
}

// ParseProfileKey validates and copies raw profile key bytes.
func ParseProfileKey(data []byte) (ProfileKey, error) {
	var key ProfileKey
	if len(data) != ProfileKeySize {
		return key, fmt.Errorf("invalid profile key length %d", len(data))
	}
	copy(key[:], data)
	return key, nil
}

func (pk ProfileKey) Slice() []byte {
	return pk[:]
}

const maxRegistrationID = 16380

// GenerateRegistrationID returns a fresh 14-bit registration id in [1, 16380].
func GenerateRegistrationID() (int, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read random registration id: %w", err)
	}
	return int(binary.BigEndian.Uint32(buf[:])%maxRegistrationID) + 1, nil
}
