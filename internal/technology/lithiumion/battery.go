// Package lithiumion models a lithium-ion battery rack.
package lithiumion

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/interp"

	"storagesim/internal/pressure"
	"storagesim/internal/simerr"
	"storagesim/internal/state"
	"storagesim/internal/technology"
	"storagesim/internal/thermal"
)

// defaultOCV is an NMC cell open circuit voltage at SOC 0, 0.1, ..., 1.
var defaultOCV = []float64{3.00, 3.45, 3.55, 3.62, 3.67, 3.73, 3.80, 3.88, 3.96, 4.06, 4.18}

const (
	cellNominalVoltage = 3.7
	socTolerance       = 1e-9
)

// Config are the static battery parameters.
type Config struct {
	Capacity          float64 `yaml:"capacity"`        // Wh
	NominalVoltage    float64 `yaml:"nominal_voltage"` // V
	InitialSOC        float64 `yaml:"initial_soc"`
	MinSOC            float64 `yaml:"min_soc"`
	MaxSOC            float64 `yaml:"max_soc"`
	MaxChargeCRate    float64 `yaml:"max_charge_c_rate"`
	MaxDischargeCRate float64 `yaml:"max_discharge_c_rate"`
	Resistance        float64 `yaml:"resistance"` // ohm, rack level
	// SelfDischarge is the SOC fraction lost per 30 days.
	SelfDischarge float64 `yaml:"self_discharge"`
	// OCV overrides the cell curve; values are equally spaced over SOC 0..1
	// and scaled by NominalVoltage/3.7.
	OCV     []float64                `yaml:"ocv"`
	Thermal technology.ThermalConfig `yaml:"thermal_node"`
}

// DefaultConfig returns a 10 kWh, 1C rack.
func DefaultConfig() Config {
	return Config{
		Capacity:          10000,
		NominalVoltage:    400,
		InitialSOC:        0.5,
		MinSOC:            0,
		MaxSOC:            1,
		MaxChargeCRate:    1,
		MaxDischargeCRate: 1,
		Resistance:        0.1,
		SelfDischarge:     0.02,
		Thermal:           technology.ThermalConfig{HeatCapacity: 8e4, Conductance: 5},
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	const comp = "lithium_ion"
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"capacity", c.Capacity},
		{"nominal_voltage", c.NominalVoltage},
		{"max_charge_c_rate", c.MaxChargeCRate},
		{"max_discharge_c_rate", c.MaxDischargeCRate},
	} {
		if err := simerr.Positive(comp, f.name, f.v); err != nil {
			return err
		}
	}
	if err := simerr.NonNegative(comp, "resistance", c.Resistance); err != nil {
		return err
	}
	if err := simerr.InRange(comp, "self_discharge", c.SelfDischarge, 0, 1); err != nil {
		return err
	}
	if err := simerr.InRange(comp, "min_soc", c.MinSOC, 0, 1); err != nil {
		return err
	}
	if err := simerr.InRange(comp, "max_soc", c.MaxSOC, c.MinSOC, 1); err != nil {
		return err
	}
	if err := simerr.InRange(comp, "initial_soc", c.InitialSOC, c.MinSOC, c.MaxSOC); err != nil {
		return err
	}
	if c.OCV != nil && len(c.OCV) < 2 {
		return simerr.Config(comp, "ocv", "needs at least two points")
	}
	return c.Thermal.Validate(comp)
}

// Battery is a rack with an OCV-R equivalent circuit and a lumped thermal node.
type Battery struct {
	id   string
	cfg  Config
	comp technology.Components

	ocv   interp.PiecewiseLinear
	soc   float64
	node  technology.ThermalNode
	aging *technology.Aging
	last  state.SystemState
	steps int
}

// New builds a battery; missing components default to no-op variants.
func New(id string, cfg Config, comp technology.Components) (*Battery, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("battery %s: %w", id, err)
	}
	comp = comp.WithDefaults()
	curve := cfg.OCV
	if curve == nil {
		curve = defaultOCV
	}
	xs := make([]float64, len(curve))
	ys := make([]float64, len(curve))
	for i, v := range curve {
		xs[i] = float64(i) / float64(len(curve)-1)
		ys[i] = v * cfg.NominalVoltage / cellNominalVoltage
	}
	b := &Battery{id: id, cfg: cfg, comp: comp, soc: cfg.InitialSOC, aging: technology.NewAging(comp.Degradation)}
	if err := b.ocv.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("battery %s ocv: %w", id, err)
	}
	b.node = cfg.Thermal.Node(comp.Ambient.Temperature(time.Time{}))
	b.last = b.snapshot(time.Time{}, 0, 0, 0, 0, 0)
	return b, nil
}

func (b *Battery) ID() string               { return b.id }
func (b *Battery) Kind() technology.Kind    { return technology.LithiumIon }
func (b *Battery) State() state.SystemState { return b.last }
func (b *Battery) Close() error             { return b.aging.Close() }

// Pressure returns the pressure regulator; batteries vent passively.
func (b *Battery) Pressure() pressure.Regulator { return b.comp.Pressure }

// OCV returns the open circuit voltage at soc.
func (b *Battery) OCV(soc float64) float64 {
	return b.ocv.Predict(technology.Clamp(soc, 0, 1))
}

func (b *Battery) capacity() float64 { return b.cfg.Capacity * b.aging.SOH() }

// limits returns terminal power limits (charge >= 0, discharge >= 0).
func (b *Battery) limits() (float64, float64) {
	charge, discharge := b.cfg.MaxChargeCRate*b.capacity(), b.cfg.MaxDischargeCRate*b.capacity()
	if b.soc >= b.cfg.MaxSOC-socTolerance {
		charge = 0
	}
	if b.soc <= b.cfg.MinSOC+socTolerance {
		discharge = 0
	}
	return charge, discharge
}

// current solves P = U0 I + R I² for I; positive charges.
func current(p, u0, r float64) float64 {
	if r == 0 {
		return p / u0
	}
	d := u0*u0 + 4*r*p
	if d < 0 {
		d = 0
	}
	return (-u0 + math.Sqrt(d)) / (2 * r)
}

func (b *Battery) Step(t time.Time, dt time.Duration, power float64) (state.SystemState, error) {
	b.steps++
	secs := dt.Seconds()
	ambient := b.comp.Ambient.Temperature(t)
	if secs <= 0 {
		b.last = technology.Neutral(b.last, t, power)
		return b.last, nil
	}

	charge, discharge := b.limits()
	p := technology.Clamp(power, -discharge, charge)
	u0 := b.OCV(b.soc)
	r := b.cfg.Resistance
	i := current(p, u0, r)

	// SOC window on internal energy
	capWh := b.capacity()
	internal := u0 * i
	energy := internal * secs / 3600
	if room := (b.cfg.MaxSOC - b.soc) * capWh; energy > room {
		internal = math.Max(room, 0) * 3600 / secs
	} else if avail := (b.soc - b.cfg.MinSOC) * capWh; -energy > avail {
		internal = -math.Max(avail, 0) * 3600 / secs
	}
	if internal != u0*i {
		i = internal / u0
		p = internal + r*i*i
	}
	b.soc += internal * secs / 3600 / capWh

	// self discharge
	b.soc -= b.soc * b.cfg.SelfDischarge * secs / (30 * 24 * 3600)
	b.soc = technology.Clamp(b.soc, 0, 1)

	heat := r * i * i
	b.comp.Thermal.Calculate(b.node.Temperature, heat, secs, 0, math.Abs(i)/(capWh/b.cfg.NominalVoltage))
	removed := thermal.HeatRemoved(thermal.Read(b.comp.Thermal), b.node.Temperature)
	b.node.Step(heat-removed, ambient, secs)

	st := b.snapshot(t, power, p, heat, u0+r*i, i)
	st.AmbientTemperature = ambient
	loss := b.aging.Apply(t, dt, b.last, st)
	st.CapacityLoss = loss
	st.SOH = 1 - loss
	st.Capacity = b.capacity()
	b.last = st
	return st, nil
}

func (b *Battery) snapshot(t time.Time, requested, actual, losses, voltage, i float64) state.SystemState {
	charge, discharge := b.limits()
	if voltage == 0 {
		voltage = b.OCV(b.soc)
	}
	return state.SystemState{
		StorageID:          b.id,
		Technology:         string(technology.LithiumIon),
		Step:               b.steps,
		Timestamp:          t,
		RequestedPower:     requested,
		ActualPower:        actual,
		Fulfillment:        state.Fulfillment(requested, actual),
		Losses:             losses,
		Voltage:            voltage,
		Current:            i,
		SOC:                b.soc,
		SOH:                b.aging.SOH(),
		Capacity:           b.capacity(),
		CapacityLoss:       b.aging.Loss(),
		AmbientTemperature: b.comp.Ambient.Temperature(t),
		StackTemperature:   b.node.Temperature,
		WaterFlow:          b.comp.Thermal.H2OFlow(),
		MaxChargePower:     charge,
		MaxDischargePower:  discharge,
	}
}
