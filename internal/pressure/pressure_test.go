package pressure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagesim/internal/simerr"
)

func TestNoPressureControllerPassThrough(t *testing.T) {
	c := NewNoPressureController()
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.02, c.CalculateNH2Out(30, 30, 0.02, 1))
		assert.Equal(t, 0.03, c.CalculateNH2In(2, 50, 0.03, 1))
	}
	assert.Equal(t, Idle, c.Phase())
	assert.Zero(t, c.Clamped())
}

func TestEveryControllerClampsToRange(t *testing.T) {
	valve, err := NewProportionalValve(DefaultConfig())
	require.NoError(t, err)
	supply, err := NewProportionalSupply(DefaultConfig())
	require.NoError(t, err)
	open := NewNoPressureController()

	outs := map[string]OutflowController{"open": open, "valve": valve}
	for name, c := range outs {
		for _, produced := range []float64{0.5, 2, 100} {
			got := c.CalculateNH2Out(35, 30, produced, 0.4)
			assert.GreaterOrEqual(t, got, 0.0, name)
			assert.LessOrEqual(t, got, 0.4, name)
		}
		assert.Positive(t, c.Clamped(), name)
	}
	ins := map[string]InflowController{"open": NewNoPressureController(), "supply": supply}
	for name, c := range ins {
		got := c.CalculateNH2In(1, 2, 5, 0.1)
		assert.Equal(t, 0.1, got, name)
		assert.Equal(t, 0.0, c.CalculateNH2In(1, 2, -1, 0.1), name)
	}
}

func TestProportionalValve(t *testing.T) {
	v, err := NewProportionalValve(Config{Kp: 0.01, Deadband: 0.1})
	require.NoError(t, err)

	tests := []struct {
		name           string
		actual, target float64
		produced, max  float64
		want           float64
		phase          Phase
	}{
		{"idle in deadband", 30.05, 30, 0, 1, 0, Idle},
		{"above target opens", 31, 30, 0.02, 1, 0.03, Regulating},
		{"below target throttles", 29, 30, 0.02, 1, 0.01, Regulating},
		{"clamp low", 20, 30, 0.02, 1, 0, Regulating},
		{"clamp high", 40, 30, 0.02, 0.05, 0.05, Regulating},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.CalculateNH2Out(tt.actual, tt.target, tt.produced, tt.max)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.Equal(t, tt.phase, v.Phase())
		})
	}
	assert.Equal(t, 2, v.Clamped())
}

func TestProportionalSupply(t *testing.T) {
	s, err := NewProportionalSupply(DefaultConfig())
	require.NoError(t, err)

	got := s.CalculateNH2In(1.5, 2, 0.01, 1)
	assert.InDelta(t, 0.01+0.5e-3, got, 1e-12)
	assert.Equal(t, Regulating, s.Phase())

	assert.Equal(t, 0.0, s.CalculateNH2In(2, 2, 0, 1))
	assert.Equal(t, Idle, s.Phase())

	assert.Equal(t, 0.0, s.CalculateNH2In(2, 2, 0.5, -1))
	assert.Equal(t, 1, s.Clamped())
}

func TestConfigValidate(t *testing.T) {
	_, err := NewProportionalValve(Config{Kp: 0})
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
}

func TestUpdate(t *testing.T) {
	// 1 mol into 0.1 m³ at 300 K raises pressure by ~0.2494 bar
	p := Update(1, 0.1, 300, 1, 1)
	assert.InDelta(t, 1.24943, p, 1e-4)
	assert.Equal(t, 0.0, Update(0.1, 0.1, 300, -100, 1))
	assert.Equal(t, 5.0, Update(5, 0, 300, 1, 1))
}
