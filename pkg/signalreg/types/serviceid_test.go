package types_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/signalreg/pkg/signalreg/types"
)

func TestParseACI(t *testing.T) {
	id := uuid.New()
	aci, err := types.ParseACI(id.String())
	require.NoError(t, err)
	assert.Equal(t, types.ServiceIDKindACI, aci.Kind)
	assert.Equal(t, id, aci.UUID)
	assert.Equal(t, id.String(), aci.String())

	_, err = types.ParseACI("not-a-uuid")
	assert.Error(t, err)
}

func TestParsePNI(t *testing.T) {
	id := uuid.New()
	pni, err := types.ParsePNI("PNI:" + id.String())
	require.NoError(t, err)
	assert.Equal(t, types.ServiceIDKindPNI, pni.Kind)
	assert.Equal(t, id, pni.UUID)
	assert.Equal(t, "PNI:"+id.String(), pni.String())

	// Bare UUIDs are accepted too.
	bare, err := types.ParsePNI(id.String())
	require.NoError(t, err)
	assert.Equal(t, pni, bare)
}

func TestServiceIDAddress(t *testing.T) {
	id := uuid.New()
	aci := types.NewACIServiceID(id)
	assert.Equal(t, id.String()+".1", aci.Address(1))
	assert.Equal(t, id.String()+".2", aci.Address(2))

	assert.True(t, types.ServiceID{}.IsEmpty())
	assert.False(t, aci.IsEmpty())
}
