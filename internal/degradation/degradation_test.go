package degradation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagesim/internal/simerr"
	"storagesim/internal/state"
)

func TestNoDegradation(t *testing.T) {
	var m NoDegradation
	st := state.SystemState{SOC: 0.7}
	assert.Equal(t, 0.0, m.CapacityDegradation(0, st))
	assert.Equal(t, 0.0, m.CapacityDegradation(100, st))
	assert.NoError(t, m.Close())
}

func models(t *testing.T) map[string]Model {
	t.Helper()
	li, err := NewSemiEmpiricalLithium(DefaultLithium())
	require.NoError(t, err)
	stack, err := NewStackDegradation(DefaultStack())
	require.NoError(t, err)
	lin, err := NewLinearCalendar(0.01)
	require.NoError(t, err)
	return map[string]Model{"lithium": li, "stack": stack, "linear": lin}
}

func TestIncrementsNeverNegative(t *testing.T) {
	socs := []float64{0.5, 0.9, 0.2, 0.8, 0.1}
	times := []float64{0, 3600, 7200, 3600, 10800}
	for name, m := range models(t) {
		t.Run(name, func(t *testing.T) {
			for i, tm := range times {
				inc := m.CapacityDegradation(tm, state.SystemState{SOC: socs[i], Current: 10, StackTemperature: 310})
				assert.GreaterOrEqual(t, inc, 0.0)
			}
		})
	}
}

func TestBackwardsTimeReturnsZero(t *testing.T) {
	m, err := NewLinearCalendar(0.02)
	require.NoError(t, err)
	m.CapacityDegradation(0, state.SystemState{})
	assert.Greater(t, m.CapacityDegradation(secondsPerYear, state.SystemState{}), 0.0)
	assert.Equal(t, 0.0, m.CapacityDegradation(100, state.SystemState{}))
}

func TestLinearCalendarRate(t *testing.T) {
	m, _ := NewLinearCalendar(0.02)
	m.CapacityDegradation(0, state.SystemState{})
	assert.InDelta(t, 0.01, m.CapacityDegradation(secondsPerYear/2, state.SystemState{}), 1e-12)
}

func TestLithiumCalendarAndCycles(t *testing.T) {
	cfg := DefaultLithium()
	m, _ := NewSemiEmpiricalLithium(cfg)
	st := state.SystemState{SOC: 0.5, StackTemperature: refTemperature}
	m.CapacityDegradation(0, st)
	got := m.CapacityDegradation(secondsPerYear, st)
	assert.InDelta(t, cfg.CalendarRate, got, 1e-9)

	hot, _ := NewSemiEmpiricalLithium(cfg)
	hot.CapacityDegradation(0, state.SystemState{SOC: 0.5, StackTemperature: 320})
	assert.Greater(t, hot.CapacityDegradation(secondsPerYear, state.SystemState{SOC: 0.5, StackTemperature: 320}), got)

	cyc, _ := NewSemiEmpiricalLithium(LithiumConfig{CycleRate: 1e-3})
	cyc.CapacityDegradation(0, state.SystemState{SOC: 0})
	cyc.CapacityDegradation(1, state.SystemState{SOC: 1})
	cyc.CapacityDegradation(2, state.SystemState{SOC: 0})
	assert.InDelta(t, 1.0, cyc.Cycles(), 1e-12)
}

func TestFirstCallCountsFromZero(t *testing.T) {
	m, _ := NewLinearCalendar(0.02)
	assert.InDelta(t, 0.01, m.CapacityDegradation(secondsPerYear/2, state.SystemState{}), 1e-12)

	cyc, _ := NewSemiEmpiricalLithium(LithiumConfig{CycleRate: 1e-3})
	cyc.Seed(state.SystemState{SOC: 0})
	assert.InDelta(t, 0.5e-3, cyc.CapacityDegradation(60, state.SystemState{SOC: 1}), 1e-12)
	assert.InDelta(t, 0.5, cyc.Cycles(), 1e-12)
}

func TestStackStartStop(t *testing.T) {
	m, _ := NewStackDegradation(StackConfig{RatePerHour: 1e-3, StartStopPenalty: 0.1})
	assert.InDelta(t, 0.1, m.CapacityDegradation(0, state.SystemState{Current: 5}), 1e-12)
	assert.InDelta(t, 1e-3, m.CapacityDegradation(3600, state.SystemState{Current: 5}), 1e-12)
	assert.Equal(t, 0.0, m.CapacityDegradation(7200, state.SystemState{}))
	assert.InDelta(t, 0.1+1e-3, m.CapacityDegradation(10800, state.SystemState{Current: 5}), 1e-12)
	assert.Equal(t, 2, m.Starts())
}

func TestConfigValidation(t *testing.T) {
	_, err := NewLinearCalendar(-1)
	assert.True(t, errors.Is(err, simerr.ErrConfiguration))
	_, err = NewSemiEmpiricalLithium(LithiumConfig{CycleRate: -1})
	assert.True(t, errors.Is(err, simerr.ErrConfiguration))
}

type memSink struct {
	calls   int
	history []Entry
}

func (s *memSink) WriteDegradation(_ string, h []Entry) error {
	s.calls++
	s.history = h
	return nil
}

func TestRecord(t *testing.T) {
	sink := &memSink{}
	r := NewRecord("b1", sink)
	require.NoError(t, r.Add(0, 0.1))
	require.NoError(t, r.Add(60, 0.2))
	assert.ErrorIs(t, r.Add(120, -0.1), simerr.ErrConfiguration)
	assert.InDelta(t, 0.3, r.Cumulative(), 1e-12)

	h := r.History()
	require.Len(t, h, 2)
	assert.InDelta(t, 0.3, h[1].Cumulative, 1e-12)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, sink.calls)
	assert.Len(t, sink.history, 2)
}
