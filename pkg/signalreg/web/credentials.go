package web

import (
	"fmt"

	"go.mau.fi/signalreg/pkg/signalreg/types"
)

// CredentialsProvider is the mutable authentication tuple used by live
// service clients. Setters are plain mutations so clients holding a provider
// observe updates without reconstruction; callers enforce any invariants.
type CredentialsProvider struct {
	aci      types.ServiceID
	pni      types.ServiceID
	e164     string
	deviceID int
	password string
}

func NewCredentialsProvider(aci, pni types.ServiceID, e164 string, deviceID int, password string) *CredentialsProvider {
	return &CredentialsProvider{
		aci:      aci,
		pni:      pni,
		e164:     e164,
		deviceID: deviceID,
		password: password,
	}
}

func (c *CredentialsProvider) ACI() types.ServiceID { return c.aci }
func (c *CredentialsProvider) PNI() types.ServiceID { return c.pni }
func (c *CredentialsProvider) E164() string         { return c.e164 }
func (c *CredentialsProvider) DeviceID() int        { return c.deviceID }
func (c *CredentialsProvider) Password() string     { return c.password }

func (c *CredentialsProvider) SetACI(aci types.ServiceID)  { c.aci = aci }
func (c *CredentialsProvider) SetPNI(pni types.ServiceID)  { c.pni = pni }
func (c *CredentialsProvider) SetE164(e164 string)         { c.e164 = e164 }
func (c *CredentialsProvider) SetDeviceID(deviceID int)    { c.deviceID = deviceID }
func (c *CredentialsProvider) SetPassword(password string) { c.password = password }

// BasicAuthUsername is the ACI-qualified username once an ACI is known, the
// E.164 before that.
func (c *CredentialsProvider) BasicAuthUsername() string {
	if !c.aci.IsEmpty() {
		return c.aci.Address(c.deviceID)
	}
	return fmt.Sprintf("%s.%d", c.e164, c.deviceID)
}
