// Package technology defines the contract shared by storage technology
// models and the physical helpers they have in common.
package technology

import (
	"fmt"
	"math"
	"strings"
	"time"

	"storagesim/internal/degradation"
	"storagesim/internal/pressure"
	"storagesim/internal/simerr"
	"storagesim/internal/state"
	"storagesim/internal/thermal"
)

// Kind names a technology in configuration.
type Kind string

const (
	LithiumIon   Kind = "lithium_ion"
	Electrolyzer Kind = "electrolyzer"
	FuelCell     Kind = "fuel_cell"
	Hydrogen     Kind = "hydrogen"
	RedoxFlow    Kind = "redox_flow"
)

// Kinds lists every supported technology.
func Kinds() []Kind { return []Kind{LithiumIon, Electrolyzer, FuelCell, Hydrogen, RedoxFlow} }

// ParseKind validates a technology name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	names := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		names = append(names, string(k))
	}
	return "", simerr.Config("technology", "type",
		fmt.Sprintf("unknown technology %q, available: %s", s, strings.Join(names, ", ")))
}

// Model is one storage technology stepped by a storage system.
type Model interface {
	ID() string
	Kind() Kind
	// Step applies power in W (positive charges) for dt starting at t.
	// Zero power or zero dt yield a neutral state, not an error.
	Step(t time.Time, dt time.Duration, power float64) (state.SystemState, error)
	// State returns the last emitted state, or the initial state before
	// the first step.
	State() state.SystemState
	Close() error
}

// Physical constants.
const (
	Faraday     = 96485.33212 // C/mol
	GasConstant = 8.314462618 // J/(mol K)
	// H2LowerHeatingValue is the energy content of hydrogen in Wh/mol.
	H2LowerHeatingValue = 241.8e3 / 3600
)

// Components are the collaborators every model owns.
type Components struct {
	Thermal     thermal.Controller
	Pressure    pressure.Regulator
	Degradation degradation.Model
	Ambient     thermal.Ambient
}

// WithDefaults fills missing collaborators with their no-op variants.
func (c Components) WithDefaults() Components {
	if c.Thermal == nil {
		c.Thermal = thermal.NewNoThermalController()
	}
	if c.Pressure == nil {
		c.Pressure = pressure.NewNoPressureController()
	}
	if c.Degradation == nil {
		c.Degradation = degradation.NoDegradation{}
	}
	if c.Ambient == nil {
		c.Ambient = thermal.ConstantAmbient(thermal.DefaultAmbientTemperature)
	}
	return c
}

// ThermalNode is a lumped heat capacity exchanging heat with its
// surroundings through a conductance.
type ThermalNode struct {
	Temperature  float64 // K
	HeatCapacity float64 // J/K
	Conductance  float64 // W/K
}

// Step integrates heat in W (generated minus actively removed) over dt
// seconds with an implicit Euler step.
func (n *ThermalNode) Step(heat, ambient, dt float64) {
	if dt <= 0 || n.HeatCapacity <= 0 {
		return
	}
	n.Temperature = (n.HeatCapacity*n.Temperature + dt*(heat+n.Conductance*ambient)) /
		(n.HeatCapacity + n.Conductance*dt)
}

// ThermalConfig configures a ThermalNode.
type ThermalConfig struct {
	HeatCapacity       float64 `yaml:"heat_capacity"`
	Conductance        float64 `yaml:"conductance"`
	InitialTemperature float64 `yaml:"initial_temperature"`
}

func (c ThermalConfig) Validate(component string) error {
	if err := simerr.Positive(component, "heat_capacity", c.HeatCapacity); err != nil {
		return err
	}
	if err := simerr.NonNegative(component, "conductance", c.Conductance); err != nil {
		return err
	}
	return simerr.NonNegative(component, "initial_temperature", c.InitialTemperature)
}

// Node builds a node starting at the configured temperature or ambient.
func (c ThermalConfig) Node(ambient float64) ThermalNode {
	t := c.InitialTemperature
	if t == 0 {
		t = ambient
	}
	return ThermalNode{Temperature: t, HeatCapacity: c.HeatCapacity, Conductance: c.Conductance}
}

// Aging feeds a degradation model with elapsed run time and tracks the
// cumulative capacity loss.
type Aging struct {
	model   degradation.Model
	start   time.Time
	started bool
	loss    float64
}

func NewAging(m degradation.Model) *Aging {
	if m == nil {
		m = degradation.NoDegradation{}
	}
	return &Aging{model: m}
}

// Apply queries the model for the step [t, t+dt] and returns the cumulative
// loss, capped at 1. prev is the state before the step; the first call uses
// it to seed models implementing degradation.Seeder.
func (a *Aging) Apply(t time.Time, dt time.Duration, prev, st state.SystemState) float64 {
	if !a.started {
		a.start, a.started = t, true
		if s, ok := a.model.(degradation.Seeder); ok {
			s.Seed(prev)
		}
	}
	inc := a.model.CapacityDegradation(t.Add(dt).Sub(a.start).Seconds(), st)
	if inc > 0 {
		a.loss = math.Min(a.loss+inc, 1)
	}
	return a.loss
}

func (a *Aging) Loss() float64 { return a.loss }
func (a *Aging) SOH() float64  { return 1 - a.loss }
func (a *Aging) Close() error  { return a.model.Close() }

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }

// Neutral copies prev as the state of an idle step at t.
func Neutral(prev state.SystemState, t time.Time, requested float64) state.SystemState {
	st := prev
	st.Timestamp = t
	st.RequestedPower = requested
	st.ActualPower = 0
	st.Losses = 0
	st.Current = 0
	st.WaterFlow = 0
	st.H2Production = 0
	st.H2Consumption = 0
	st.Fulfillment = state.Fulfillment(requested, 0)
	return st
}
