// Package thermal provides stack thermal controllers and ambient temperature
// models.
package thermal

import (
	"math"

	"storagesim/internal/simerr"
)

// Phase is the regulation state of a controller.
type Phase string

const (
	Idle       Phase = "idle"
	Regulating Phase = "regulating"
)

// WaterHeatCapacity is the molar heat capacity of liquid water in J/(mol K).
const WaterHeatCapacity = 75.3

// Controller computes the coolant command for one stack and timestep.
type Controller interface {
	// Calculate updates the command from the current stack measurement.
	Calculate(stackTemperature, heatGenerated, timestep, minFlow, currentDensity float64)
	// H2OFlow returns the commanded water flow in mol/s; never negative.
	H2OFlow() float64
	// DeltaWaterTempIn returns the commanded water inlet temperature in K.
	// An idle controller returns the stack temperature, i.e. no heat exchange.
	DeltaWaterTempIn() float64
	Phase() Phase
}

// Command is the read back of a controller after Calculate.
type Command struct {
	WaterFlow   float64
	WaterTempIn float64
}

// Read returns the current command of c.
func Read(c Controller) Command {
	return Command{WaterFlow: c.H2OFlow(), WaterTempIn: c.DeltaWaterTempIn()}
}

// HeatRemoved returns the heat in W carried away by a command from a stack at
// stackTemperature.
func HeatRemoved(cmd Command, stackTemperature float64) float64 {
	return cmd.WaterFlow * WaterHeatCapacity * (stackTemperature - cmd.WaterTempIn)
}

// NoThermalController never regulates.
type NoThermalController struct {
	stackTemperature float64
}

// NewNoThermalController returns a permanently idle controller.
func NewNoThermalController() *NoThermalController { return &NoThermalController{} }

func (c *NoThermalController) Calculate(stackTemperature, _, _, _, _ float64) {
	c.stackTemperature = stackTemperature
}

func (c *NoThermalController) H2OFlow() float64          { return 0 }
func (c *NoThermalController) DeltaWaterTempIn() float64 { return c.stackTemperature }
func (c *NoThermalController) Phase() Phase              { return Idle }

// WaterCoolingConfig parameterises WaterCooling. Temperatures in K.
type WaterCoolingConfig struct {
	TargetTemperature float64 `yaml:"target_temperature"`
	MaxDeltaWaterTemp float64 `yaml:"max_delta_water_temp"`
	MaxFlow           float64 `yaml:"max_flow"`
	Kp                float64 `yaml:"kp"`
	Ki                float64 `yaml:"ki"`
}

// Validate checks the configuration.
func (c WaterCoolingConfig) Validate() error {
	if err := simerr.Positive("thermal", "target_temperature", c.TargetTemperature); err != nil {
		return err
	}
	if err := simerr.Positive("thermal", "max_delta_water_temp", c.MaxDeltaWaterTemp); err != nil {
		return err
	}
	if err := simerr.Positive("thermal", "max_flow", c.MaxFlow); err != nil {
		return err
	}
	if err := simerr.NonNegative("thermal", "kp", c.Kp); err != nil {
		return err
	}
	return simerr.NonNegative("thermal", "ki", c.Ki)
}

// ElectrolyzerCooling returns defaults for a PEM electrolyzer stack at 70 °C.
func ElectrolyzerCooling() WaterCoolingConfig {
	return WaterCoolingConfig{TargetTemperature: 343.15, MaxDeltaWaterTemp: 10, MaxFlow: 50, Kp: 0.5, Ki: 0.001}
}

// FuelCellCooling returns defaults for a PEM fuel cell stack at 65 °C.
func FuelCellCooling() WaterCoolingConfig {
	return WaterCoolingConfig{TargetTemperature: 338.15, MaxDeltaWaterTemp: 8, MaxFlow: 50, Kp: 0.5, Ki: 0.001}
}

// BatteryCooling returns defaults for a liquid cooled battery rack at 30 °C.
func BatteryCooling() WaterCoolingConfig {
	return WaterCoolingConfig{TargetTemperature: 303.15, MaxDeltaWaterTemp: 5, MaxFlow: 5, Kp: 0.2, Ki: 0}
}

// WaterCooling is a PI cooling loop. It regulates while the stack carries
// current and holds the water inlet MaxDeltaWaterTemp below the stack.
type WaterCooling struct {
	cfg      WaterCoolingConfig
	phase    Phase
	integral float64
	flow     float64
	tempIn   float64
}

// NewWaterCooling creates a controller; cfg must be valid.
func NewWaterCooling(cfg WaterCoolingConfig) (*WaterCooling, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &WaterCooling{cfg: cfg, phase: Idle}, nil
}

func (c *WaterCooling) Calculate(stackTemperature, heatGenerated, timestep, minFlow, currentDensity float64) {
	if currentDensity <= 0 {
		c.phase = Idle
		c.integral = 0
		c.flow = 0
		c.tempIn = stackTemperature
		return
	}
	c.phase = Regulating
	c.tempIn = stackTemperature - c.cfg.MaxDeltaWaterTemp

	// feed forward: flow that removes the generated heat at full delta
	ff := math.Max(heatGenerated, 0) / (WaterHeatCapacity * c.cfg.MaxDeltaWaterTemp)
	errT := stackTemperature - c.cfg.TargetTemperature
	if timestep > 0 {
		c.integral += errT * timestep
	}
	flow := ff + c.cfg.Kp*errT + c.cfg.Ki*c.integral
	if flow < minFlow {
		flow = minFlow
	}
	if flow > c.cfg.MaxFlow {
		flow = c.cfg.MaxFlow
		// anti windup
		c.integral -= errT * timestep
	}
	c.flow = math.Max(flow, 0)
}

func (c *WaterCooling) H2OFlow() float64          { return c.flow }
func (c *WaterCooling) DeltaWaterTempIn() float64 { return c.tempIn }
func (c *WaterCooling) Phase() Phase              { return c.phase }
