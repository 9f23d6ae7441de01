package systemthermal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagesim/internal/simerr"
	"storagesim/internal/thermal"
)

var t0 = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

func run(m Model, heat float64, steps int) Result {
	var res Result
	for i := 0; i < steps; i++ {
		res = m.Update(t0.Add(time.Duration(i)*time.Minute), time.Minute, heat)
	}
	return res
}

func TestTwentyFtContainer(t *testing.T) {
	h, err := TwentyFtContainer(DefaultContainer())
	require.NoError(t, err)
	assert.Equal(t, TwentyFtContainerName, h.Name)
	assert.InDelta(t, 0.6*73.56, h.Conductance, 1e-9)
	assert.True(t, h.Enclosed())
	assert.False(t, NoHousing().Enclosed())

	cfg := DefaultContainer()
	cfg.HeatCapacity = 0
	_, err = TwentyFtContainer(cfg)
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
}

func TestNoSystemThermalModelFollowsAmbient(t *testing.T) {
	m, err := New(Config{}, thermal.ConstantAmbient(290))
	require.NoError(t, err)
	assert.Equal(t, NoSystemThermalModelName, m.Name())
	assert.Equal(t, 290.0, m.Temperature(t0))
	assert.Equal(t, Result{Temperature: 290}, m.Update(t0, time.Minute, 5000))
}

func TestZeroDNeedsEnclosedHousing(t *testing.T) {
	_, err := New(Config{Model: ZeroDName, Housing: NoHousing()}, nil)
	require.ErrorIs(t, err, simerr.ErrConfiguration)
	assert.Contains(t, err.Error(), NoHousingName)

	_, err = New(Config{Model: "OneD"}, nil)
	require.ErrorIs(t, err, simerr.ErrConfiguration)
	assert.Contains(t, err.Error(), "available")
}

func TestZeroDWarmsTowardsSteadyState(t *testing.T) {
	housing := Housing{Name: "box", Conductance: 10, HeatCapacity: 1e5}
	m, err := NewZeroD(thermal.ConstantAmbient(300), housing, nil)
	require.NoError(t, err)
	assert.Equal(t, 300.0, m.Temperature(t0))

	prev := m.Temperature(t0)
	for i := 0; i < 50; i++ {
		res := m.Update(t0.Add(time.Duration(i)*time.Minute), time.Minute, 500)
		assert.Greater(t, res.Temperature, prev)
		assert.Zero(t, res.HVACPower)
		prev = res.Temperature
	}
	// steady state is ambient + heat/conductance
	assert.Less(t, prev, 350.0)
	res := run(m, 500, 20000)
	assert.InDelta(t, 350, res.Temperature, 1e-3)
	assert.Equal(t, res.Temperature, m.Temperature(t0))
}

func TestFixCOPCoolsToUpperBand(t *testing.T) {
	hvac, err := NewFixCOP(DefaultFixCOP())
	require.NoError(t, err)
	housing, err := TwentyFtContainer(DefaultContainer())
	require.NoError(t, err)
	m, err := NewZeroD(thermal.ConstantAmbient(298.15), housing, hvac)
	require.NoError(t, err)

	res := run(m, 2000, 600)
	assert.InDelta(t, 300.15, res.Temperature, 1e-6)
	assert.Less(t, res.HVACThermal, 0.0)
	// walls carry part of the heat out at 2 K above ambient
	assert.InDelta(t, -(2000 - housing.Conductance*2), res.HVACThermal, 1)
	assert.InDelta(t, -res.HVACThermal/3, res.HVACPower, 1e-9)
}

func TestFixCOPHeatsToLowerBand(t *testing.T) {
	hvac, err := NewFixCOP(DefaultFixCOP())
	require.NoError(t, err)
	housing, err := TwentyFtContainer(DefaultContainer())
	require.NoError(t, err)
	m, err := NewZeroD(thermal.ConstantAmbient(263.15), housing, hvac)
	require.NoError(t, err)

	res := run(m, 0, 2000)
	assert.InDelta(t, 296.15, res.Temperature, 1e-6)
	assert.Greater(t, res.HVACThermal, 0.0)
	assert.Greater(t, res.HVACPower, 0.0)
}

func TestFixCOPSaturates(t *testing.T) {
	cfg := DefaultFixCOP()
	cfg.MaxThermalPower = 100
	hvac, err := NewFixCOP(cfg)
	require.NoError(t, err)
	assert.Equal(t, -100.0, hvac.Regulate(320, 1e-4))
	assert.Equal(t, 0.0, hvac.Regulate(299, 1e-4))
	assert.Equal(t, 0.0, hvac.Regulate(320, 0))

	cfg.COP = 0
	_, err = NewFixCOP(cfg)
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
}
