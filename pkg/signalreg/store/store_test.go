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

package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/signalreg/pkg/signalreg/store"
	"go.mau.fi/signalreg/pkg/signalreg/types"
	"go.mau.fi/signalreg/pkg/sigproto"
)

func newTestContainer(t *testing.T) *store.Container {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	container, err := store.New("sqlite3", "file:"+path+"?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, container.Close())
	})
	return container
}

func TestGetOrCreateByIdentifiers(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t)
	aci := types.NewACIServiceID(uuid.New())
	pni := types.NewPNIServiceID(uuid.New())

	created, err := container.GetOrCreateByIdentifiers(ctx, aci, pni, "+14155550101")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.False(t, created.Registered)

	// Any of the three identifiers resolves to the same row.
	byACI, err := container.GetOrCreateByIdentifiers(ctx, aci, types.NewPNIServiceID(uuid.New()), "+10000000000")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byACI.ID)

	byE164, err := container.GetByE164(ctx, "+14155550101")
	require.NoError(t, err)
	require.NotNil(t, byE164)
	assert.Equal(t, created.ID, byE164.ID)

	missing, err := container.GetByE164(ctx, "+19999999999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMarkRegisteredAndProfileKey(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t)
	aci := types.NewACIServiceID(uuid.New())
	pni := types.NewPNIServiceID(uuid.New())

	recipient, err := container.GetOrCreateByIdentifiers(ctx, aci, pni, "+14155550102")
	require.NoError(t, err)

	require.NoError(t, container.SetProfileSharing(ctx, recipient.ID, true))
	require.NoError(t, container.MarkRegistered(ctx, recipient.ID, aci))

	profileKey, err := sigproto.GenerateProfileKey()
	require.NoError(t, err)
	require.NoError(t, container.SetProfileKey(ctx, recipient.ID, profileKey.Slice()))

	updated, err := container.GetRecipient(ctx, recipient.ID)
	require.NoError(t, err)
	assert.True(t, updated.Registered)
	assert.True(t, updated.ProfileSharing)
	assert.Equal(t, aci.UUID.String(), updated.ACI)
	assert.Equal(t, profileKey.Slice(), updated.ProfileKey)
}

func TestLinkIdentifiersForSelf(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t)
	aci := types.NewACIServiceID(uuid.New())
	pni := types.NewPNIServiceID(uuid.New())
	otherACI := types.NewACIServiceID(uuid.New())
	otherPNI := types.NewPNIServiceID(uuid.New())

	// The self row exists under an old number, while another row holds the
	// new number, as happens when the number changed owners.
	selfRow, err := container.GetOrCreateByIdentifiers(ctx, aci, pni, "+14155550199")
	require.NoError(t, err)
	otherRow, err := container.GetOrCreateByIdentifiers(ctx, otherACI, otherPNI, "+14155550103")
	require.NoError(t, err)

	require.NoError(t, container.LinkIdentifiersForSelf(ctx, aci, pni, "+14155550103"))

	// The other row keeps its service ids but loses the number.
	otherAfter, err := container.GetRecipient(ctx, otherRow.ID)
	require.NoError(t, err)
	assert.Empty(t, otherAfter.E164)
	assert.Equal(t, otherACI.UUID.String(), otherAfter.ACI)

	self, err := container.GetByE164(ctx, "+14155550103")
	require.NoError(t, err)
	require.NotNil(t, self)
	assert.Equal(t, selfRow.ID, self.ID)
	assert.Equal(t, aci.UUID.String(), self.ACI)
	assert.Equal(t, pni.UUID.String(), self.PNI)
}

func TestSelfRecipientCache(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t)
	aci := types.NewACIServiceID(uuid.New())
	pni := types.NewPNIServiceID(uuid.New())

	created, err := container.GetOrCreateByIdentifiers(ctx, aci, pni, "+14155550104")
	require.NoError(t, err)

	self, err := container.SelfRecipient(ctx, aci)
	require.NoError(t, err)
	require.NotNil(t, self)
	assert.Equal(t, created.ID, self.ID)

	require.NoError(t, container.SetProfileSharing(ctx, created.ID, true))
	// Cached copy until cleared.
	self, err = container.SelfRecipient(ctx, aci)
	require.NoError(t, err)
	assert.False(t, self.ProfileSharing)

	container.ClearSelfCache()
	self, err = container.SelfRecipient(ctx, aci)
	require.NoError(t, err)
	assert.True(t, self.ProfileSharing)
}

func TestSaveOwnIdentity(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t)
	aci := types.NewACIServiceID(uuid.New())
	pni := types.NewPNIServiceID(uuid.New())

	recipient, err := container.GetOrCreateByIdentifiers(ctx, aci, pni, "+14155550105")
	require.NoError(t, err)

	kp, err := sigproto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, container.SaveOwnIdentity(ctx, recipient.ID, aci, kp.PublicKey(), now))

	record, err := container.GetIdentity(ctx, aci)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, store.TrustLevelVerified, record.TrustLevel)
	assert.True(t, record.FirstUse)
	assert.True(t, record.Self)
	assert.Equal(t, kp.PublicKey(), record.PublicKey)
	assert.Equal(t, now.UnixMilli(), record.AddedAt.UnixMilli())

	// Re-registration replaces the key in place.
	kp2, err := sigproto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	require.NoError(t, container.SaveOwnIdentity(ctx, recipient.ID, aci, kp2.PublicKey(), now))
	record, err = container.GetIdentity(ctx, aci)
	require.NoError(t, err)
	assert.Equal(t, kp2.PublicKey(), record.PublicKey)
}

func TestArchiveAllSessions(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t)
	aciStore := container.ACIStore()
	pniStore := container.PNIStore()

	require.NoError(t, aciStore.StoreSession(ctx, uuid.NewString(), 1, []byte("record-1")))
	require.NoError(t, aciStore.StoreSession(ctx, uuid.NewString(), 2, []byte("record-2")))
	require.NoError(t, pniStore.StoreSession(ctx, uuid.NewString(), 1, []byte("record-3")))

	require.NoError(t, aciStore.ArchiveAllSessions(ctx))

	active, err := aciStore.ActiveSessionCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, active)
	archived, err := aciStore.ArchivedSessionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, archived)

	// The other identity's sessions are untouched.
	active, err = pniStore.ActiveSessionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestClearAllSenderKeys(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t)
	aciStore := container.ACIStore()

	require.NoError(t, aciStore.StoreSenderKey(ctx, uuid.NewString(), 1, uuid.NewString(), []byte("sk-1")))
	require.NoError(t, aciStore.StoreSenderKey(ctx, uuid.NewString(), 1, uuid.NewString(), []byte("sk-2")))

	count, err := aciStore.SenderKeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, aciStore.ClearAllSenderKeys(ctx))
	count, err = aciStore.SenderKeyCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPreKeyStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t)
	aciStore := container.ACIStore()
	identity, err := sigproto.GenerateIdentityKeyPair()
	require.NoError(t, err)

	signed, err := sigproto.GenerateSignedPreKey(11, identity)
	require.NoError(t, err)
	require.NoError(t, aciStore.SaveSignedPreKey(ctx, signed))
	loadedSigned, err := aciStore.SignedPreKey(ctx, 11)
	require.NoError(t, err)
	require.NotNil(t, loadedSigned)
	assert.Equal(t, signed.KeyPair.PublicKey, loadedSigned.KeyPair.PublicKey)

	kyber, err := sigproto.GenerateLastResortKyberPreKey(12, identity)
	require.NoError(t, err)
	require.NoError(t, aciStore.SaveKyberPreKey(ctx, kyber))
	loadedKyber, err := aciStore.KyberPreKey(ctx, 12)
	require.NoError(t, err)
	require.NotNil(t, loadedKyber)
	assert.True(t, loadedKyber.LastResort)

	missing, err := aciStore.SignedPreKey(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMarkOneTimePreKeysUploaded(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t)
	aciStore := container.ACIStore()

	for id := uint32(1); id <= 5; id++ {
		record, err := sigproto.GeneratePreKey(id)
		require.NoError(t, err)
		require.NoError(t, aciStore.SaveOneTimePreKey(ctx, record))
	}

	count, err := aciStore.UploadedOneTimePreKeyCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, aciStore.MarkOneTimePreKeysUploaded(ctx, 3))
	count, err = aciStore.UploadedOneTimePreKeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
