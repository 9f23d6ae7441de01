package hydrogen

import (
	"math"

	"storagesim/internal/simerr"
	"storagesim/internal/technology"
	"storagesim/internal/thermal"
)

// TankConfig describes a compressed hydrogen tank.
type TankConfig struct {
	Volume      float64 `yaml:"volume"`       // m³
	MaxPressure float64 `yaml:"max_pressure"` // bar
	InitialFill float64 `yaml:"initial_fill"` // fraction of max moles
	Temperature float64 `yaml:"temperature"`  // K, 0 means 25 °C
}

// DefaultTank is a 1 m³ tank at 200 bar, half full.
func DefaultTank() TankConfig {
	return TankConfig{Volume: 1, MaxPressure: 200, InitialFill: 0.5}
}

func (c TankConfig) Validate() error {
	if err := simerr.Positive("tank", "volume", c.Volume); err != nil {
		return err
	}
	if err := simerr.Positive("tank", "max_pressure", c.MaxPressure); err != nil {
		return err
	}
	if err := simerr.InRange("tank", "initial_fill", c.InitialFill, 0, 1); err != nil {
		return err
	}
	return simerr.NonNegative("tank", "temperature", c.Temperature)
}

// Tank holds hydrogen as an ideal gas at constant temperature.
type Tank struct {
	volume, maxPressure, temperature float64
	moles                            float64
}

func NewTank(cfg TankConfig) (*Tank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = thermal.DefaultAmbientTemperature
	}
	t := &Tank{volume: cfg.Volume, maxPressure: cfg.MaxPressure, temperature: temp}
	t.moles = cfg.InitialFill * t.MaxMoles()
	return t, nil
}

// MaxMoles is the content at maximum pressure.
func (t *Tank) MaxMoles() float64 {
	return t.maxPressure * 1e5 * t.volume / (technology.GasConstant * t.temperature)
}

func (t *Tank) Moles() float64    { return t.moles }
func (t *Tank) Headroom() float64 { return math.Max(t.MaxMoles()-t.moles, 0) }
func (t *Tank) Fill() float64     { return t.moles / t.MaxMoles() }

// Pressure in bar.
func (t *Tank) Pressure() float64 {
	return t.moles * technology.GasConstant * t.temperature / t.volume / 1e5
}

// EnergyCapacity is the full tank content in Wh (lower heating value).
func (t *Tank) EnergyCapacity() float64 { return t.MaxMoles() * technology.H2LowerHeatingValue }

// Add stores up to n moles and returns the amount accepted.
func (t *Tank) Add(n float64) float64 {
	n = math.Min(math.Max(n, 0), t.Headroom())
	t.moles += n
	return n
}

// Remove draws up to n moles and returns the amount delivered.
func (t *Tank) Remove(n float64) float64 {
	n = math.Min(math.Max(n, 0), t.moles)
	t.moles -= n
	return n
}
