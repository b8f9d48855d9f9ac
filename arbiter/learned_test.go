package arbiter

import (
	"encoding/json"
	"testing"

	"github.com/TheCacophonyProject/battery-arbiter/channel"
	"github.com/TheCacophonyProject/battery-arbiter/curve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLearnedParametersLayout(t *testing.T) {
	data, err := json.Marshal(LearnedParameters{})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"preferredSource":null,"algorithm":null,"voltageMin":null,"voltageMax":null,"decided":false}`,
		string(data))

	preferred := channel.StandardVoltage
	vmin, vmax := 2.5, 3.0
	data, err = json.Marshal(LearnedParameters{
		PreferredSource:  &preferred,
		Algorithm:        curve.CoinCell,
		VoltageMin:       &vmin,
		VoltageMax:       &vmax,
		Decided:          true,
		DisabledChannels: []channel.Kind{channel.StandardPercent},
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"preferredSource":"standard_voltage","algorithm":"cr2032","voltageMin":2.5,"voltageMax":3,"decided":true,"disabledChannels":["standard_percent"]}`,
		string(data))
}

func TestLearnedParametersFromJSON(t *testing.T) {
	var p LearnedParameters
	require.NoError(t, json.Unmarshal(
		[]byte(`{"preferredSource":"vendor_dp_percent","algorithm":"mult2","decided":true}`), &p))

	preferred, ok := p.Preferred()
	require.True(t, ok)
	assert.Equal(t, channel.VendorDatapointPercent, preferred)
	assert.Equal(t, curve.Multiply2, p.Algorithm)
	assert.True(t, p.Decided)
	assert.Nil(t, p.VoltageMin)

	assert.Error(t, json.Unmarshal([]byte(`{"preferredSource":"carrier_pigeon"}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"algorithm":"cubic"}`), &p))
}

func TestCloneIsDeep(t *testing.T) {
	preferred := channel.StandardPercent
	vmin := 2.0
	p := LearnedParameters{
		PreferredSource:  &preferred,
		VoltageMin:       &vmin,
		DisabledChannels: []channel.Kind{channel.StandardVoltage},
	}
	c := p.Clone()
	*c.PreferredSource = channel.StandardVoltage
	*c.VoltageMin = 9
	c.DisabledChannels[0] = channel.VendorDatapointPercent

	assert.Equal(t, channel.StandardPercent, *p.PreferredSource)
	assert.Equal(t, 2.0, *p.VoltageMin)
	assert.Equal(t, channel.StandardVoltage, p.DisabledChannels[0])
}
