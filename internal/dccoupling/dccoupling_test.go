package dccoupling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagesim/internal/profile"
	"storagesim/internal/simerr"
)

var t0 = time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)

func TestNoDcCoupling(t *testing.T) {
	c := NoDcCoupling()
	require.NoError(t, c.Validate(1000))
	for i := 0; i < 3; i++ {
		p, err := c.NetPower(t0)
		require.NoError(t, err)
		assert.Equal(t, 0.0, p)
	}
}

func TestBusCharging(t *testing.T) {
	c := BusChargingDcCoupling(10, 4)
	p, err := c.NetPower(t0)
	require.NoError(t, err)
	assert.Equal(t, -6.0, p)
}

func TestBusChargingProfile(t *testing.T) {
	c, err := BusChargingProfileDcCoupling(100, "load.csv", []float64{0.1, 0.5})
	require.NoError(t, err)
	require.NoError(t, c.Validate(2))
	assert.ErrorIs(t, c.Validate(3), simerr.ErrProfileExhausted)

	p, err := c.NetPower(t0)
	require.NoError(t, err)
	assert.InDelta(t, -10.0, p, 1e-12)
	p, _ = c.NetPower(t0)
	assert.InDelta(t, -50.0, p, 1e-12)
	_, err = c.NetPower(t0)
	assert.ErrorIs(t, err, simerr.ErrProfileExhausted)
}

func TestUSPDCCouplingDrawsLoadInWatts(t *testing.T) {
	c := USPDCCoupling("ups.csv", []float64{150, 0})
	assert.Equal(t, USPDcCouplingName, c.Name())
	require.NoError(t, c.Validate(2))
	p, err := c.NetPower(t0)
	require.NoError(t, err)
	assert.Equal(t, -150.0, p)
	p, err = c.NetPower(t0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)
	assert.Contains(t, Names(), USPDcCouplingName)
}

func TestProfileGeneration(t *testing.T) {
	gen := NewProfileGeneration(profile.NewCursor("pv", []float64{3}))
	c := New("pv", FixedLoad(1), gen)
	p, err := c.NetPower(t0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, p)
	assert.Error(t, c.Validate(2))
}

func TestSolarGeneration(t *testing.T) {
	s, err := NewSolarGeneration(SolarConfig{Latitude: 48, Tilt: 30, Area: 10, Efficiency: 0.2})
	require.NoError(t, err)

	night, _ := s.GenerationPower(t0)
	assert.Equal(t, 0.0, night)

	noon, _ := s.GenerationPower(t0.Add(12 * time.Hour))
	assert.Greater(t, noon, 1000.0)
	assert.Less(t, noon, 10*0.2*solarConstant*1.1)

	morning, _ := s.GenerationPower(t0.Add(8 * time.Hour))
	assert.Less(t, morning, noon)
	assert.Greater(t, morning, 0.0)
}

func TestSolarConfigValidate(t *testing.T) {
	_, err := NewSolarGeneration(SolarConfig{Latitude: 100, Area: 1, Efficiency: 0.2})
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
}

func TestUnknownName(t *testing.T) {
	err := UnknownName("Foo")
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
	assert.Contains(t, err.Error(), NoDcCouplingName)
}
