package thermal

import (
	"fmt"
	"time"

	"storagesim/internal/profile"
)

// DefaultAmbientTemperature is 25 °C in K.
const DefaultAmbientTemperature = 298.15

// Ambient supplies the temperature around the storage.
type Ambient interface {
	Temperature(t time.Time) float64
}

// ConstantAmbient returns the same temperature at every time.
type ConstantAmbient float64

func (c ConstantAmbient) Temperature(time.Time) float64 { return float64(c) }

// ProfileAmbient looks temperatures up on a resampled grid. Times outside the
// grid use the nearest edge value.
type ProfileAmbient struct {
	start  time.Time
	step   time.Duration
	values []float64
}

// NewProfileAmbient resamples s onto n steps from start.
func NewProfileAmbient(s *profile.Series, start time.Time, step time.Duration, n int) (*ProfileAmbient, error) {
	vals, err := s.Resample(start, step, n, profile.Linear, 1)
	if err != nil {
		return nil, fmt.Errorf("ambient temperature: %w", err)
	}
	return &ProfileAmbient{start: start, step: step, values: vals}, nil
}

func (p *ProfileAmbient) Temperature(t time.Time) float64 {
	if len(p.values) == 0 {
		return DefaultAmbientTemperature
	}
	i := int(t.Sub(p.start) / p.step)
	switch {
	case i < 0:
		i = 0
	case i >= len(p.values):
		i = len(p.values) - 1
	}
	return p.values[i]
}
