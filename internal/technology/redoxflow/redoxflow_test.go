package redoxflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagesim/internal/degradation"
	"storagesim/internal/simerr"
	"storagesim/internal/technology"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newFlow(t *testing.T, mutate func(*Config), comp technology.Components) *RedoxFlow {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := New("vrfb", cfg, comp)
	require.NoError(t, err)
	return r
}

func TestNernstOCV(t *testing.T) {
	r := newFlow(t, nil, technology.Components{})
	assert.InDelta(t, standardPotential, r.OCV(0.5), 1e-12)
	assert.Greater(t, r.OCV(0.8), r.OCV(0.5))
	assert.Less(t, r.OCV(0.2), r.OCV(0.5))
	// clamped at the edges
	assert.Equal(t, r.OCV(0.99), r.OCV(1))
}

func TestCapacity(t *testing.T) {
	r := newFlow(t, nil, technology.Components{})
	assert.InDelta(t, 1.6*1000*technology.Faraday*1.4/3600, r.State().Capacity, 1e-6)
}

func TestChargeAndDischarge(t *testing.T) {
	r := newFlow(t, nil, technology.Components{})
	st, err := r.Step(t0, time.Hour, 10000)
	require.NoError(t, err)
	assert.InDelta(t, 10000, st.ActualPower, 1)
	assert.Greater(t, st.SOC, 0.5)
	assert.Less(t, st.SOC, 0.5+10000.0/st.Capacity+1e-9)
	assert.Greater(t, st.Losses, 0.0)

	soc := st.SOC
	st, err = r.Step(t0.Add(time.Hour), time.Hour, -10000)
	require.NoError(t, err)
	assert.InDelta(t, -10000, st.ActualPower, 1)
	assert.Less(t, st.SOC, soc)
}

func TestModulePowerLimit(t *testing.T) {
	r := newFlow(t, nil, technology.Components{})
	st, err := r.Step(t0, time.Minute, 1e6)
	require.NoError(t, err)
	assert.InDelta(t, 20000, st.ActualPower, 1)
	assert.Equal(t, 20000.0, st.MaxChargePower)
}

func TestSOCWindow(t *testing.T) {
	r := newFlow(t, func(c *Config) { c.InitialSOC = 0.84 }, technology.Components{})
	st, err := r.Step(t0, time.Hour, 20000)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, st.SOC, 1e-9)
	assert.Less(t, st.ActualPower, 20000.0)
	assert.Equal(t, 0.0, st.MaxChargePower)

	st, err = r.Step(t0.Add(time.Hour), time.Hour, 5000)
	require.NoError(t, err)
	assert.Equal(t, 0.0, st.ActualPower)
}

func TestPumpAlgorithms(t *testing.T) {
	cfg := DefaultConfig()
	stoich, err := NewPump(cfg.Pump)
	require.NoError(t, err)
	fixed, err := NewPump(PumpConfig{Algorithm: FixFlowRate, FixedFlow: 0.5, PressureDrop: 1e5, Efficiency: 0.5})
	require.NoError(t, err)

	assert.Equal(t, 0.0, stoich.Power(0, 0.5, cfg))
	assert.Greater(t, stoich.Power(50, 0.5, cfg), stoich.Power(10, 0.5, cfg))
	// less flow needed where more reactant is available
	assert.Greater(t, stoich.Power(50, 0.9, cfg), stoich.Power(50, 0.2, cfg))

	assert.InDelta(t, 4*2*0.5/1000*1e5/0.5, fixed.Power(10, 0.5, cfg), 1e-9)
	assert.Equal(t, fixed.Power(10, 0.5, cfg), fixed.Power(100, 0.1, cfg))

	_, err = NewPump(PumpConfig{Algorithm: "Turbo", PressureDrop: 1, Efficiency: 1})
	require.ErrorIs(t, err, simerr.ErrConfiguration)
	assert.Contains(t, err.Error(), StoichFlowRate)
}

func TestCalendarFadeReducesCapacity(t *testing.T) {
	m, err := degradation.NewLinearCalendar(0.05)
	require.NoError(t, err)
	r := newFlow(t, nil, technology.Components{Degradation: m})
	initial := r.State().Capacity
	for i := 0; i < 10; i++ {
		_, err := r.Step(t0.Add(time.Duration(i)*24*time.Hour), 24*time.Hour, 0)
		require.NoError(t, err)
	}
	assert.Less(t, r.State().Capacity, initial)
}

func TestZeroStepIsNeutral(t *testing.T) {
	r := newFlow(t, nil, technology.Components{})
	st, err := r.Step(t0, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 0.0, st.ActualPower)
	assert.Equal(t, 0.5, st.SOC)
}
