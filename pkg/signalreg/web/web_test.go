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

package web_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/signalreg/pkg/signalreg/types"
	"go.mau.fi/signalreg/pkg/signalreg/web"
	"go.mau.fi/signalreg/pkg/sigproto"
)

func TestIsCensored(t *testing.T) {
	network := web.NewNetworkAccess()

	assert.True(t, network.IsCensored("+2021234567"))   // Egypt
	assert.True(t, network.IsCensored("+989121234567")) // Iran
	assert.True(t, network.IsCensored("+97455512345"))  // Qatar
	assert.False(t, network.IsCensored("+14155550101"))
	assert.False(t, network.IsCensored("+442071234567"))
}

func TestConfigurationFor(t *testing.T) {
	network := web.NewNetworkAccess()

	assert.False(t, network.ConfigurationFor("+14155550101").CensorshipCircumvented)
	assert.True(t, network.ConfigurationFor("+2021234567").CensorshipCircumvented)
	// Unknown number (device link) always gets the direct configuration.
	assert.False(t, network.ConfigurationFor("").CensorshipCircumvented)
}

type fakeInstaller struct {
	called chan struct{}
	err    error
}

func (f *fakeInstaller) InstallIfNeeded(ctx context.Context) error {
	f.called <- struct{}{}
	return f.err
}

func TestCreateAuthenticatedCensored(t *testing.T) {
	installer := &fakeInstaller{called: make(chan struct{}, 1)}
	factory := &web.Factory{
		Network:   web.NewNetworkAccess(),
		Installer: installer,
		Agent:     "test-agent",
	}
	aci := types.NewACIServiceID(uuid.New())
	pni := types.NewPNIServiceID(uuid.New())

	manager := factory.CreateAuthenticated(aci, pni, "+989121234567", 1, "passwd")
	assert.True(t, manager.Configuration().CensorshipCircumvented)
	select {
	case <-installer.called:
	case <-time.After(time.Second):
		t.Fatal("TLS provider installer was not invoked for a censored number")
	}

	manager = factory.CreateAuthenticated(aci, pni, "+14155550101", 1, "passwd")
	assert.False(t, manager.Configuration().CensorshipCircumvented)
	select {
	case <-installer.called:
		t.Fatal("TLS provider installer invoked for a non-censored number")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCreateAuthenticatedInstallFailureIgnored(t *testing.T) {
	installer := &fakeInstaller{called: make(chan struct{}, 1), err: fmt.Errorf("no provider")}
	factory := &web.Factory{Network: web.NewNetworkAccess(), Installer: installer}

	// Installation failure must not prevent manager construction.
	manager := factory.CreateAuthenticated(types.ServiceID{}, types.ServiceID{}, "+2021234567", 1, "passwd")
	require.NotNil(t, manager)
	<-installer.called
}

func TestCreateForDeviceLink(t *testing.T) {
	factory := &web.Factory{Network: web.NewNetworkAccess()}
	manager := factory.CreateForDeviceLink("passwd")
	assert.False(t, manager.Configuration().CensorshipCircumvented)
	assert.Equal(t, types.DefaultDeviceID, manager.Credentials().DeviceID())
}

func TestBasicAuthUsername(t *testing.T) {
	aci := types.NewACIServiceID(uuid.New())
	creds := web.NewCredentialsProvider(aci, types.ServiceID{}, "+14155550101", 2, "passwd")
	assert.Equal(t, aci.UUID.String()+".2", creds.BasicAuthUsername())

	// Before an ACI is assigned the number authenticates.
	creds = web.NewCredentialsProvider(types.ServiceID{}, types.ServiceID{}, "+14155550101", 1, "passwd")
	assert.Equal(t, "+14155550101.1", creds.BasicAuthUsername())
}

func TestSetPreKeys(t *testing.T) {
	identity, err := sigproto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	signed, err := sigproto.GenerateSignedPreKey(5, identity)
	require.NoError(t, err)
	lastResort, err := sigproto.GenerateLastResortKyberPreKey(6, identity)
	require.NoError(t, err)
	oneTime, err := sigproto.GeneratePreKey(7)
	require.NoError(t, err)

	aci := types.NewACIServiceID(uuid.New())
	pni := types.NewPNIServiceID(uuid.New())

	var gotPath, gotQuery, gotUser, gotAgent string
	var gotBody map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("identity")
		gotUser, _, _ = r.BasicAuth()
		gotAgent = r.Header.Get("X-Signal-Agent")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	factory := &web.Factory{
		Network: &web.NetworkAccess{
			Default:  web.ServiceConfiguration{BaseURL: server.URL},
			Censored: web.CensoredConfiguration,
		},
		Agent:      "test-agent",
		HTTPClient: server.Client(),
	}
	manager := factory.CreateAuthenticated(aci, pni, "+14155550101", 1, "passwd")

	err = manager.SetPreKeys(context.Background(), &web.PreKeyUpload{
		ServiceIDType:    types.ServiceIDKindACI,
		IdentityKey:      identity.PublicKey(),
		SignedPreKey:     signed,
		OneTimeECPreKeys: []*sigproto.PreKeyRecord{oneTime},
		LastResortKyber:  lastResort,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v2/keys", gotPath)
	assert.Equal(t, "aci", gotQuery)
	assert.Equal(t, aci.UUID.String()+".1", gotUser)
	assert.Equal(t, "test-agent", gotAgent)
	assert.Contains(t, gotBody, "identityKey")
	assert.Contains(t, gotBody, "signedPreKey")
	assert.Contains(t, gotBody, "preKeys")
	assert.Contains(t, gotBody, "pqLastResortPreKey")
	assert.NotContains(t, gotBody, "pqPreKeys")
}

func TestSetPreKeysServerError(t *testing.T) {
	identity, err := sigproto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	signed, err := sigproto.GenerateSignedPreKey(5, identity)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	factory := &web.Factory{
		Network:    &web.NetworkAccess{Default: web.ServiceConfiguration{BaseURL: server.URL}},
		HTTPClient: server.Client(),
	}
	manager := factory.CreateForDeviceLink("passwd")

	err = manager.SetPreKeys(context.Background(), &web.PreKeyUpload{
		ServiceIDType: types.ServiceIDKindACI,
		IdentityKey:   identity.PublicKey(),
		SignedPreKey:  signed,
	})
	assert.ErrorContains(t, err, "401")
}
