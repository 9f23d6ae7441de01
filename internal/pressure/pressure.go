// Package pressure regulates hydrogen flows in and out of PEM stacks.
//
// Every controller clamps its flow to [0, max] and never fails a step.
// Each clamp is counted so owners can report saturated valves.
package pressure

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

// Regulator is the part common to every pressure controller.
type Regulator interface {
	Phase() Phase
	// Clamped counts commands cut to the valve range.
	Clamped() int
}

// OutflowController meters hydrogen leaving an electrolyzer cathode, mol/s.
type OutflowController interface {
	Regulator
	CalculateNH2Out(pressureActual, pressureTarget, nH2Produced, maxOutflow float64) float64
}

// InflowController meters hydrogen supplied to a fuel cell anode, mol/s.
type InflowController interface {
	Regulator
	CalculateNH2In(pressureActual, pressureTarget, nH2Consumed, maxInflow float64) float64
}

// Controller is implemented by controllers usable on both sides.
type Controller interface {
	OutflowController
	InflowController
}

// NoPressureController keeps the valve fully open: every mole produced leaves,
// every mole consumed is supplied, up to the valve limit.
type NoPressureController struct{ clamped int }

// NewNoPressureController returns the open valve controller.
func NewNoPressureController() *NoPressureController { return &NoPressureController{} }

func (c *NoPressureController) CalculateNH2Out(_, _, nH2Produced, maxOutflow float64) float64 {
	return clampFlow(nH2Produced, maxOutflow, &c.clamped)
}

func (c *NoPressureController) CalculateNH2In(_, _, nH2Consumed, maxInflow float64) float64 {
	return clampFlow(nH2Consumed, maxInflow, &c.clamped)
}

func (c *NoPressureController) Phase() Phase { return Idle }
func (c *NoPressureController) Clamped() int { return c.clamped }

// clampFlow bounds n to [0, limit] and counts every cut.
func clampFlow(n, limit float64, count *int) float64 {
	if limit < 0 {
		limit = 0
	}
	switch {
	case n < 0:
		*count++
		return 0
	case n > limit:
		*count++
		return limit
	}
	return n
}

// Config holds proportional gains. Kp is in mol/(s bar).
type Config struct {
	Kp       float64 `yaml:"kp"`
	Deadband float64 `yaml:"deadband"`
}

// DefaultConfig is a gentle valve for kW-scale stacks.
func DefaultConfig() Config { return Config{Kp: 1e-3, Deadband: 0.05} }

func (c Config) Validate() error {
	if err := simerr.Positive("pressure", "kp", c.Kp); err != nil {
		return err
	}
	return simerr.NonNegative("pressure", "deadband", c.Deadband)
}

type proportional struct {
	cfg     Config
	phase   Phase
	clamped int
}

func (p *proportional) regulate(deviation, flow, limit float64) float64 {
	if flow == 0 && math.Abs(deviation) <= p.cfg.Deadband {
		p.phase = Idle
		return 0
	}
	p.phase = Regulating
	n := flow + p.cfg.Kp*deviation
	return p.clamp(n, limit)
}

func (p *proportional) clamp(n, limit float64) float64 {
	return clampFlow(n, limit, &p.clamped)
}

func (p *proportional) Phase() Phase { return p.phase }
func (p *proportional) Clamped() int { return p.clamped }

// ProportionalValve bleeds cathode hydrogen so the pressure follows its target.
type ProportionalValve struct{ proportional }

// NewProportionalValve validates cfg and returns an idle valve.
func NewProportionalValve(cfg Config) (*ProportionalValve, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ProportionalValve{proportional{cfg: cfg, phase: Idle}}, nil
}

// CalculateNH2Out opens further when pressure is above target.
func (v *ProportionalValve) CalculateNH2Out(pressureActual, pressureTarget, nH2Produced, maxOutflow float64) float64 {
	return v.regulate(pressureActual-pressureTarget, nH2Produced, maxOutflow)
}

// ProportionalSupply feeds the anode so its pressure follows the target.
type ProportionalSupply struct{ proportional }

// NewProportionalSupply validates cfg and returns an idle supply.
func NewProportionalSupply(cfg Config) (*ProportionalSupply, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ProportionalSupply{proportional{cfg: cfg, phase: Idle}}, nil
}

// CalculateNH2In supplies more when pressure is below target.
func (s *ProportionalSupply) CalculateNH2In(pressureActual, pressureTarget, nH2Consumed, maxInflow float64) float64 {
	return s.regulate(pressureTarget-pressureActual, nH2Consumed, maxInflow)
}

// Gas constant in J/(mol K).
const R = 8.314462618

// Update integrates ideal gas pressure of a fixed volume in m³ given a net
// molar inflow in mol/s over dt seconds. Returns the new pressure in bar,
// never below zero.
func Update(pressure, volume, temperature, netFlow, dt float64) float64 {
	if volume <= 0 {
		return pressure
	}
	dp := netFlow * dt * R * temperature / volume / 1e5
	return math.Max(pressure+dp, 0)
}
