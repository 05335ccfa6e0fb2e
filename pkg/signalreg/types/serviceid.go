// Package types holds the service identifiers and payload types shared by the
// registration core and its collaborators.
package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultDeviceID is the device id of a primary device. Linked devices are
// assigned higher ids by the server.
const DefaultDeviceID = 1

type ServiceIDKind string

const (
	ServiceIDKindACI ServiceIDKind = "aci"
	ServiceIDKindPNI ServiceIDKind = "pni"
)

// ServiceID is an account (ACI) or phone-number (PNI) service identifier.
type ServiceID struct {
	Kind ServiceIDKind
	UUID uuid.UUID
}

func NewACIServiceID(id uuid.UUID) ServiceID {
	return ServiceID{Kind: ServiceIDKindACI, UUID: id}
}

func NewPNIServiceID(id uuid.UUID) ServiceID {
	return ServiceID{Kind: ServiceIDKindPNI, UUID: id}
}

const pniPrefix = "PNI:"

// ParseACI parses a plain UUID string into an ACI service id.
func ParseACI(raw string) (ServiceID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return ServiceID{}, fmt.Errorf("failed to parse ACI %q: %w", raw, err)
	}
	return NewACIServiceID(id), nil
}

// ParsePNI parses a PNI service id string. The canonical form carries a
// "PNI:" prefix, but a bare UUID is accepted too.
func ParsePNI(raw string) (ServiceID, error) {
	id, err := uuid.Parse(strings.TrimPrefix(raw, pniPrefix))
	if err != nil {
		return ServiceID{}, fmt.Errorf("failed to parse PNI %q: %w", raw, err)
	}
	return NewPNIServiceID(id), nil
}

func (s ServiceID) IsEmpty() bool {
	return s.UUID == uuid.Nil
}

func (s ServiceID) String() string {
	if s.Kind == ServiceIDKindPNI {
		return pniPrefix + s.UUID.String()
	}
	return s.UUID.String()
}

// Address renders the service id qualified with a device id, as used for
// basic-auth usernames.
func (s ServiceID) Address(deviceID int) string {
	return fmt.Sprintf("%s.%d", s.UUID, deviceID)
}
