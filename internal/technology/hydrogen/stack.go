// Package hydrogen models PEM electrolyzers, PEM fuel cells and hydrogen
// systems built from both around a shared tank.
package hydrogen

import (
	"math"

	"storagesim/internal/simerr"
	"storagesim/internal/technology"
)

const (
	// thermoneutral cell voltage on the higher heating value
	thermoneutralVoltage = 1.48
	refTemperature       = 298.15
	bisectIterations     = 60
)

// StackConfig parameterises a PEM stack and its gas side.
type StackConfig struct {
	MaxPower               float64 `yaml:"max_power"` // W
	Cells                  int     `yaml:"cells"`
	CellArea               float64 `yaml:"cell_area"`                // cm²
	ExchangeCurrentDensity float64 `yaml:"exchange_current_density"` // A/cm²
	ChargeTransfer         float64 `yaml:"charge_transfer"`
	AreaResistance         float64 `yaml:"area_resistance"`     // ohm cm²
	MaxCurrentDensity      float64 `yaml:"max_current_density"` // A/cm²
	FaradayEfficiency      float64 `yaml:"faraday_efficiency"`
	TargetPressure         float64 `yaml:"target_pressure"` // bar
	GasVolume              float64 `yaml:"gas_volume"`      // m³
	MaxFlow                float64 `yaml:"max_flow"`        // mol/s
	MinWaterFlow           float64 `yaml:"min_water_flow"`  // mol/s

	Thermal technology.ThermalConfig `yaml:"thermal_node"`
}

// DefaultElectrolyzer returns a 50 kW stack at 30 bar cathode pressure.
func DefaultElectrolyzer() StackConfig {
	return StackConfig{
		MaxPower: 50000, Cells: 50, CellArea: 300,
		ExchangeCurrentDensity: 1e-3, ChargeTransfer: 0.5, AreaResistance: 0.15,
		MaxCurrentDensity: 2, FaradayEfficiency: 0.99,
		TargetPressure: 30, GasVolume: 0.05, MaxFlow: 1, MinWaterFlow: 0.5,
		Thermal: technology.ThermalConfig{HeatCapacity: 2e5, Conductance: 20, InitialTemperature: 333.15},
	}
}

// DefaultFuelCell returns a 20 kW stack with 2 bar anode supply.
func DefaultFuelCell() StackConfig {
	return StackConfig{
		MaxPower: 20000, Cells: 60, CellArea: 500,
		ExchangeCurrentDensity: 1e-3, ChargeTransfer: 0.5, AreaResistance: 0.2,
		MaxCurrentDensity: 1.2, FaradayEfficiency: 1,
		TargetPressure: 2, GasVolume: 0.01, MaxFlow: 1, MinWaterFlow: 0.2,
		Thermal: technology.ThermalConfig{HeatCapacity: 1e5, Conductance: 15, InitialTemperature: 323.15},
	}
}

func (c StackConfig) Validate(component string) error {
	if c.Cells <= 0 {
		return simerr.Config(component, "cells", "must be > 0")
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"max_power", c.MaxPower},
		{"cell_area", c.CellArea},
		{"exchange_current_density", c.ExchangeCurrentDensity},
		{"charge_transfer", c.ChargeTransfer},
		{"max_current_density", c.MaxCurrentDensity},
		{"target_pressure", c.TargetPressure},
		{"gas_volume", c.GasVolume},
		{"max_flow", c.MaxFlow},
	} {
		if err := simerr.Positive(component, f.name, f.v); err != nil {
			return err
		}
	}
	if err := simerr.NonNegative(component, "area_resistance", c.AreaResistance); err != nil {
		return err
	}
	if err := simerr.InRange(component, "faraday_efficiency", c.FaradayEfficiency, 0.5, 1); err != nil {
		return err
	}
	return c.Thermal.Validate(component)
}

// polarisation returns the cell voltage at current density j and temperature T.
type polarisation func(j, temp float64) float64

func (c StackConfig) activation(j, temp float64) float64 {
	return technology.GasConstant * temp / (c.ChargeTransfer * technology.Faraday) *
		math.Asinh(j/(2*c.ExchangeCurrentDensity))
}

func (c StackConfig) electrolysis(j, temp float64) float64 {
	rev := 1.229 - 0.9e-3*(temp-refTemperature)
	return rev + c.activation(j, temp) + c.AreaResistance*j
}

func (c StackConfig) fuelCell(j, temp float64) float64 {
	oc := 1.229 - 0.85e-3*(temp-refTemperature)
	return math.Max(oc-c.activation(j, temp)-c.AreaResistance*j, 0)
}

// current returns the stack current for density j.
func (c StackConfig) current(j float64) float64 { return j * c.CellArea }

func (c StackConfig) power(v polarisation, j, temp float64) float64 {
	return float64(c.Cells) * c.current(j) * v(j, temp)
}

// density solves v for the current density drawing power p, capped at the
// maximum current density.
func (c StackConfig) density(v polarisation, p, temp float64) float64 {
	if p <= 0 {
		return 0
	}
	lo, hi := 0.0, c.MaxCurrentDensity
	if c.power(v, hi, temp) <= p {
		return hi
	}
	for i := 0; i < bisectIterations; i++ {
		mid := (lo + hi) / 2
		if c.power(v, mid, temp) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// molarFlow is the hydrogen flow in mol/s for density j.
func (c StackConfig) molarFlow(j float64) float64 {
	return float64(c.Cells) * c.current(j) / (2 * technology.Faraday)
}

// densityForFlow inverts molarFlow.
func (c StackConfig) densityForFlow(n float64) float64 {
	return n * 2 * technology.Faraday / (float64(c.Cells) * c.CellArea)
}
