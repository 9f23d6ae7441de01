// Package redoxflow models a vanadium redox-flow battery.
package redoxflow

import (
	"fmt"
	"math"
	"strings"
	"time"

	"storagesim/internal/pressure"
	"storagesim/internal/simerr"
	"storagesim/internal/state"
	"storagesim/internal/technology"
	"storagesim/internal/thermal"
)

// standard cell potential of the vanadium couple, V
const standardPotential = 1.4

const pumpIterations = 5

// Config are the static redox-flow parameters. Modules are electrically
// parallel and share one electrolyte.
type Config struct {
	Modules           int     `yaml:"modules"`
	StackModulePower  float64 `yaml:"stack_module_power"` // W per module
	CellsPerStack     int     `yaml:"cells_per_stack"`
	CellArea          float64 `yaml:"cell_area"`          // cm²
	AreaResistance    float64 `yaml:"area_resistance"`    // ohm cm²
	ElectrolyteVolume float64 `yaml:"electrolyte_volume"` // l per side
	Concentration     float64 `yaml:"concentration"`      // mol/l vanadium
	InitialSOC        float64 `yaml:"initial_soc"`
	MinSOC            float64 `yaml:"min_soc"`
	MaxSOC            float64 `yaml:"max_soc"`

	Pump    PumpConfig               `yaml:"pump"`
	Thermal technology.ThermalConfig `yaml:"thermal_node"`
}

// DefaultConfig returns a 4 x 5 kW system with about 60 kWh of electrolyte.
func DefaultConfig() Config {
	return Config{
		Modules: 4, StackModulePower: 5000, CellsPerStack: 40, CellArea: 2000,
		AreaResistance: 1.5, ElectrolyteVolume: 1000, Concentration: 1.6,
		InitialSOC: 0.5, MinSOC: 0.15, MaxSOC: 0.85,
		Pump:    DefaultPump(),
		Thermal: technology.ThermalConfig{HeatCapacity: 4.2e6, Conductance: 30},
	}
}

func (c Config) Validate() error {
	const comp = "redox_flow"
	if c.Modules <= 0 {
		return simerr.Config(comp, "modules", "must be > 0")
	}
	if c.CellsPerStack <= 0 {
		return simerr.Config(comp, "cells_per_stack", "must be > 0")
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"stack_module_power", c.StackModulePower},
		{"cell_area", c.CellArea},
		{"electrolyte_volume", c.ElectrolyteVolume},
		{"concentration", c.Concentration},
	} {
		if err := simerr.Positive(comp, f.name, f.v); err != nil {
			return err
		}
	}
	if err := simerr.NonNegative(comp, "area_resistance", c.AreaResistance); err != nil {
		return err
	}
	if err := simerr.InRange(comp, "min_soc", c.MinSOC, 0.01, 0.99); err != nil {
		return err
	}
	if err := simerr.InRange(comp, "max_soc", c.MaxSOC, c.MinSOC, 0.99); err != nil {
		return err
	}
	if err := simerr.InRange(comp, "initial_soc", c.InitialSOC, c.MinSOC, c.MaxSOC); err != nil {
		return err
	}
	if err := c.Pump.Validate(); err != nil {
		return err
	}
	return c.Thermal.Validate(comp)
}

// RedoxFlow is a vanadium flow battery with pumps as auxiliary load.
type RedoxFlow struct {
	id   string
	cfg  Config
	comp technology.Components
	pump Pump

	soc   float64
	node  technology.ThermalNode
	aging *technology.Aging
	last  state.SystemState
	steps int
}

// New builds a flow battery; missing components default to no-op variants.
func New(id string, cfg Config, comp technology.Components) (*RedoxFlow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("redox flow %s: %w", id, err)
	}
	pump, err := NewPump(cfg.Pump)
	if err != nil {
		return nil, fmt.Errorf("redox flow %s: %w", id, err)
	}
	comp = comp.WithDefaults()
	r := &RedoxFlow{id: id, cfg: cfg, comp: comp, pump: pump, soc: cfg.InitialSOC, aging: technology.NewAging(comp.Degradation)}
	r.node = cfg.Thermal.Node(comp.Ambient.Temperature(time.Time{}))
	r.last = r.snapshot(time.Time{})
	return r, nil
}

func (r *RedoxFlow) ID() string               { return r.id }
func (r *RedoxFlow) Kind() technology.Kind    { return technology.RedoxFlow }
func (r *RedoxFlow) State() state.SystemState { return r.last }
func (r *RedoxFlow) Close() error             { return r.aging.Close() }

// Pressure returns the pressure regulator; the electrolyte loop is open.
func (r *RedoxFlow) Pressure() pressure.Regulator { return r.comp.Pressure }

// OCV returns the cell open circuit voltage from the Nernst equation.
func (r *RedoxFlow) OCV(soc float64) float64 {
	soc = technology.Clamp(soc, 0.01, 0.99)
	return standardPotential + 2*technology.GasConstant*r.node.Temperature/technology.Faraday*math.Log(soc/(1-soc))
}

// charge is the electrolyte capacity in C after degradation.
func (r *RedoxFlow) charge() float64 {
	return r.cfg.Concentration * r.cfg.ElectrolyteVolume * technology.Faraday * r.aging.SOH()
}

// Capacity is the usable energy in Wh at standard potential.
func (r *RedoxFlow) capacity() float64 {
	return r.charge() * standardPotential / 3600
}

func (r *RedoxFlow) cells() float64 { return float64(r.cfg.Modules * r.cfg.CellsPerStack) }

func (r *RedoxFlow) cellResistance() float64 { return r.cfg.AreaResistance / r.cfg.CellArea }

func (r *RedoxFlow) maxPower() float64 { return float64(r.cfg.Modules) * r.cfg.StackModulePower }

// current solves stack power p for the cell current; positive charges.
func (r *RedoxFlow) current(p, ocv float64) float64 {
	n, rc := r.cells(), r.cellResistance()
	if rc == 0 {
		return p / (n * ocv)
	}
	d := ocv*ocv + 4*rc*p/n
	if d < 0 {
		d = 0
	}
	return (-ocv + math.Sqrt(d)) / (2 * rc)
}

func (r *RedoxFlow) Step(t time.Time, dt time.Duration, power float64) (state.SystemState, error) {
	r.steps++
	secs := dt.Seconds()
	if secs <= 0 {
		r.last = technology.Neutral(r.last, t, power)
		r.last.Step = r.steps
		return r.last, nil
	}
	limit := r.maxPower()
	req := power
	if r.soc >= r.cfg.MaxSOC-1e-9 {
		req = math.Min(req, 0)
	}
	if r.soc <= r.cfg.MinSOC+1e-9 {
		req = math.Max(req, 0)
	}
	req = technology.Clamp(req, -limit, limit)

	ocv := r.OCV(r.soc)
	n, rc := r.cells(), r.cellResistance()

	// pumps are fed from the request: the stacks see req minus pump power
	var i, pump float64
	if req != 0 {
		for k := 0; k < pumpIterations; k++ {
			i = r.current(req-pump, ocv)
			if (req > 0 && i < 0) || (req < 0 && i > 0) {
				i = 0
			}
			pump = r.pump.Power(i, r.soc, r.cfg)
		}
	}

	// SOC window on the reacting charge
	q := r.charge()
	dsoc := n * i * secs / q
	if room := r.cfg.MaxSOC - r.soc; dsoc > room {
		i = math.Max(room, 0) * q / (n * secs)
	} else if avail := r.soc - r.cfg.MinSOC; -dsoc > avail {
		i = -math.Max(avail, 0) * q / (n * secs)
	}
	pump = r.pump.Power(i, r.soc, r.cfg)
	r.soc = technology.Clamp(r.soc+n*i*secs/q, 0, 1)

	stack := n * (ocv*i + rc*i*i)
	actual := stack + pump
	heat := n * rc * i * i

	ambient := r.comp.Ambient.Temperature(t)
	temp := r.node.Temperature
	r.comp.Thermal.Calculate(temp, heat, secs, 0, math.Abs(i)/r.cfg.CellArea)
	removed := thermal.HeatRemoved(thermal.Read(r.comp.Thermal), temp)
	r.node.Step(heat-removed, ambient, secs)

	st := r.snapshot(t)
	st.RequestedPower = power
	st.ActualPower = actual
	st.Fulfillment = state.Fulfillment(power, actual)
	st.Voltage = float64(r.cfg.CellsPerStack) * (ocv + rc*i)
	st.Current = i * float64(r.cfg.Modules)
	st.Losses = heat + pump
	st.AmbientTemperature = ambient
	loss := r.aging.Apply(t, dt, r.last, st)
	st.CapacityLoss, st.SOH = loss, 1-loss
	st.Capacity = r.capacity()
	r.last = st
	return st, nil
}

func (r *RedoxFlow) snapshot(t time.Time) state.SystemState {
	charge, discharge := r.maxPower(), r.maxPower()
	if r.soc >= r.cfg.MaxSOC-1e-9 {
		charge = 0
	}
	if r.soc <= r.cfg.MinSOC+1e-9 {
		discharge = 0
	}
	return state.SystemState{
		StorageID:          r.id,
		Technology:         string(technology.RedoxFlow),
		Step:               r.steps,
		Timestamp:          t,
		Fulfillment:        1,
		Voltage:            float64(r.cfg.CellsPerStack) * r.OCV(r.soc),
		SOC:                r.soc,
		SOH:                r.aging.SOH(),
		Capacity:           r.capacity(),
		CapacityLoss:       r.aging.Loss(),
		AmbientTemperature: r.comp.Ambient.Temperature(t),
		StackTemperature:   r.node.Temperature,
		WaterFlow:          r.comp.Thermal.H2OFlow(),
		MaxChargePower:     charge,
		MaxDischargePower:  discharge,
	}
}

// PumpNames lists the pump algorithms.
func PumpNames() []string { return []string{StoichFlowRate, FixFlowRate} }

// Pump algorithm names.
const (
	StoichFlowRate = "StoichFlowRate"
	FixFlowRate    = "FixFlowRate"
)

// PumpConfig parameterises the electrolyte pumps.
type PumpConfig struct {
	Algorithm     string  `yaml:"algorithm"`
	Stoichiometry float64 `yaml:"stoichiometry"`
	// FixedFlow per module in l/s, FixFlowRate only.
	FixedFlow    float64 `yaml:"fixed_flow"`
	PressureDrop float64 `yaml:"pressure_drop"` // Pa
	Efficiency   float64 `yaml:"efficiency"`
}

func DefaultPump() PumpConfig {
	return PumpConfig{Algorithm: StoichFlowRate, Stoichiometry: 8, FixedFlow: 0.5, PressureDrop: 1e5, Efficiency: 0.7}
}

func (c PumpConfig) Validate() error {
	if err := simerr.Positive("pump", "pressure_drop", c.PressureDrop); err != nil {
		return err
	}
	return simerr.InRange("pump", "efficiency", c.Efficiency, 0.01, 1)
}

// Pump returns the electrical pump power for a cell current.
type Pump interface {
	Power(cellCurrent, soc float64, cfg Config) float64
}

// NewPump selects a pump algorithm; "" and "Default" pick StoichFlowRate.
func NewPump(cfg PumpConfig) (Pump, error) {
	switch cfg.Algorithm {
	case "", "Default", StoichFlowRate:
		if err := simerr.Positive("pump", "stoichiometry", cfg.Stoichiometry); err != nil {
			return nil, err
		}
		return stoichPump{cfg}, nil
	case FixFlowRate:
		if err := simerr.Positive("pump", "fixed_flow", cfg.FixedFlow); err != nil {
			return nil, err
		}
		return fixPump{cfg}, nil
	}
	return nil, simerr.Config("pump", "algorithm",
		fmt.Sprintf("unknown pump algorithm %q, available: %s", cfg.Algorithm, strings.Join(PumpNames(), ", ")))
}

// hydraulic returns pump power in W for a flow in l/s through both half cells.
func hydraulic(flow float64, cfg PumpConfig) float64 {
	return 2 * flow / 1000 * cfg.PressureDrop / cfg.Efficiency
}

// stoichPump supplies stoichiometry times the vanadium the cells convert.
type stoichPump struct{ cfg PumpConfig }

func (p stoichPump) Power(i, soc float64, c Config) float64 {
	if i == 0 {
		return 0
	}
	avail := soc
	if i > 0 {
		avail = 1 - soc
	}
	avail = math.Max(avail, 0.05)
	flow := p.cfg.Stoichiometry * float64(c.CellsPerStack) * math.Abs(i) / (technology.Faraday * c.Concentration * avail)
	return float64(c.Modules) * hydraulic(flow, p.cfg)
}

// fixPump runs a constant flow whenever the stacks carry current.
type fixPump struct{ cfg PumpConfig }

func (p fixPump) Power(i, _ float64, c Config) float64 {
	if i == 0 {
		return 0
	}
	return float64(c.Modules) * hydraulic(p.cfg.FixedFlow, p.cfg)
}
