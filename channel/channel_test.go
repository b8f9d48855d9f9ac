package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclarationOrder(t *testing.T) {
	assert.Equal(t, [Count]Kind{
		VendorDatapointPercent,
		VendorDatapointTriState,
		StandardPercent,
		StandardVoltage,
	}, All)
	assert.True(t, VendorDatapointTriState.IsVendor())
	assert.False(t, StandardPercent.IsVendor())
}

func TestParse(t *testing.T) {
	for _, k := range All {
		parsed, err := Parse(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	k, err := Parse(" Standard_Voltage ")
	require.NoError(t, err)
	assert.Equal(t, StandardVoltage, k)

	_, err = Parse("solar")
	assert.Error(t, err)
}

func TestInvalidKind(t *testing.T) {
	assert.False(t, Kind(Count).Valid())
	assert.False(t, Kind(-1).Valid())
	assert.Equal(t, "channel(7)", Kind(7).String())
	_, err := Kind(7).MarshalText()
	assert.Error(t, err)
}
