package systemthermal

import (
	"math"

	"storagesim/internal/simerr"
	"storagesim/internal/technology"
)

// HVAC variant names.
const (
	NoHVACName = "NoHeatingVentilationAirConditioning"
	FixCOPName = "FixCOPHeatingVentilationAirConditioning"
)

func HVACNames() []string { return []string{NoHVACName, FixCOPName} }

// HVAC heats or cools the housing air.
type HVAC interface {
	Name() string
	// Regulate returns the thermal power in W put into the air, negative
	// when cooling, that moves the predicted end-of-step temperature back
	// into the comfort band. gain is the end temperature change per W.
	Regulate(predicted, gain float64) float64
	// ElectricalPower returns the draw in W for thermal power q.
	ElectricalPower(q float64) float64
}

// NoHVAC never acts.
type NoHVAC struct{}

func (NoHVAC) Name() string                      { return NoHVACName }
func (NoHVAC) Regulate(float64, float64) float64 { return 0 }
func (NoHVAC) ElectricalPower(float64) float64   { return 0 }

// FixCOPConfig parameterises FixCOP.
type FixCOPConfig struct {
	MaxThermalPower float64 `yaml:"max_thermal_power"` // W
	COP             float64 `yaml:"cop"`
	SetPoint        float64 `yaml:"set_point"` // K
	Deadband        float64 `yaml:"deadband"`  // K either side of the set point
}

// DefaultFixCOP returns a 5 kW split unit holding 25 °C.
func DefaultFixCOP() FixCOPConfig {
	return FixCOPConfig{MaxThermalPower: 5000, COP: 3, SetPoint: 298.15, Deadband: 2}
}

func (c FixCOPConfig) Validate() error {
	if err := simerr.Positive("hvac", "max_thermal_power", c.MaxThermalPower); err != nil {
		return err
	}
	if err := simerr.Positive("hvac", "cop", c.COP); err != nil {
		return err
	}
	if err := simerr.Positive("hvac", "set_point", c.SetPoint); err != nil {
		return err
	}
	return simerr.NonNegative("hvac", "deadband", c.Deadband)
}

// FixCOP heats and cools with a constant coefficient of performance up to
// its thermal rating.
type FixCOP struct{ cfg FixCOPConfig }

func NewFixCOP(cfg FixCOPConfig) (*FixCOP, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FixCOP{cfg: cfg}, nil
}

func (*FixCOP) Name() string { return FixCOPName }

func (h *FixCOP) Regulate(predicted, gain float64) float64 {
	if gain <= 0 {
		return 0
	}
	hi, lo := h.cfg.SetPoint+h.cfg.Deadband, h.cfg.SetPoint-h.cfg.Deadband
	var q float64
	switch {
	case predicted > hi:
		q = (hi - predicted) / gain
	case predicted < lo:
		q = (lo - predicted) / gain
	}
	return technology.Clamp(q, -h.cfg.MaxThermalPower, h.cfg.MaxThermalPower)
}

func (h *FixCOP) ElectricalPower(q float64) float64 { return math.Abs(q) / h.cfg.COP }
