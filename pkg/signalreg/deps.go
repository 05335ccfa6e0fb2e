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

// Package signalreg implements registration finalization: the ordered state
// transition that takes a verified-registration payload and brings the local
// stores into a consistent "registered" configuration.
package signalreg

import (
	"context"

	"github.com/rs/zerolog"

	"go.mau.fi/signalreg/pkg/signalreg/jobs"
	"go.mau.fi/signalreg/pkg/signalreg/keyvalue"
	"go.mau.fi/signalreg/pkg/signalreg/store"
	"go.mau.fi/signalreg/pkg/signalreg/types"
	"go.mau.fi/signalreg/pkg/signalreg/web"
)

// PreKeyUploader is the slice of the account manager the orchestrator needs.
type PreKeyUploader interface {
	SetPreKeys(ctx context.Context, upload *web.PreKeyUpload) error
}

// ManagerFactory constructs service clients bound to the right configuration
// for the number.
type ManagerFactory interface {
	CreateAuthenticated(aci, pni types.ServiceID, e164 string, deviceID int, password string) PreKeyUploader
}

// WebManagerFactory adapts web.Factory to ManagerFactory.
type WebManagerFactory struct {
	*web.Factory
}

func (f WebManagerFactory) CreateAuthenticated(aci, pni types.ServiceID, e164 string, deviceID int, password string) PreKeyUploader {
	return f.Factory.CreateAuthenticated(aci, pni, e164, deviceID, password)
}

// SVRClient is notified when registration completes so backup auth can be
// established. Implementations must tolerate nil masterKey and pin when
// hasPin is false.
type SVRClient interface {
	OnRegistrationComplete(ctx context.Context, masterKey *types.MasterKey, pin *string, hasPin, enableRegistrationLock bool) error
}

// Notifier owns the platform notification surface.
type Notifier interface {
	CancelUnregisteredNotification()
}

// ConnectionManager owns the live service connections, which must be
// recycled once the credentials change.
type ConnectionManager interface {
	CloseConnections()
	StartIncomingMessageObserver()
}

// Deps is the dependency record threaded through the orchestrator. It is
// constructed once at program start; there is no hidden global state.
type Deps struct {
	Account    *keyvalue.AccountStore
	Flags      *keyvalue.RegistrationFlags
	Recipients store.RecipientStore
	Identities store.IdentityStore

	ACISessions   store.SessionStore
	PNISessions   store.SessionStore
	ACISenderKeys store.SenderKeyStore
	PNISenderKeys store.SenderKeyStore
	ACIPreKeys    store.PreKeyStore
	PNIPreKeys    store.PreKeyStore

	Scheduler   *jobs.Scheduler
	SVR         SVRClient
	Managers    ManagerFactory
	Notifier    Notifier
	Connections ConnectionManager

	Log zerolog.Logger
}

// NoopSVR satisfies SVRClient for accounts without secure value recovery.
type NoopSVR struct{}

func (NoopSVR) OnRegistrationComplete(context.Context, *types.MasterKey, *string, bool, bool) error {
	return nil
}

// NoopNotifier satisfies Notifier on platforms without notification chrome.
type NoopNotifier struct{}

func (NoopNotifier) CancelUnregisteredNotification() {}

// NoopConnections satisfies ConnectionManager before any connection exists.
type NoopConnections struct{}

func (NoopConnections) CloseConnections()             {}
func (NoopConnections) StartIncomingMessageObserver() {}
