// Package degradation models capacity fade of storage technologies.
package degradation

import (
	"math"

	"storagesim/internal/simerr"
	"storagesim/internal/state"
)

// Model returns the capacity loss accumulated since its previous call.
type Model interface {
	// CapacityDegradation takes elapsed simulated seconds since the run
	// start and returns the incremental loss as a fraction of nominal
	// capacity. The result is never negative; a time earlier than the
	// previous call returns 0.
	CapacityDegradation(time float64, st state.SystemState) float64
	Close() error
}

// NoDegradation never fades.
type NoDegradation struct{}

func (NoDegradation) CapacityDegradation(float64, state.SystemState) float64 { return 0 }
func (NoDegradation) Close() error                                           { return nil }

// Seeder is implemented by models that need the state at the run start
// before the first CapacityDegradation call.
type Seeder interface {
	Seed(initial state.SystemState)
}

// clock tracks the last seen time and yields the elapsed interval. The run
// starts at time 0.
type clock struct {
	last float64
}

func (c *clock) advance(t float64) float64 {
	if t <= c.last {
		return 0
	}
	dt := t - c.last
	c.last = t
	return dt
}

const (
	secondsPerHour = 3600.0
	secondsPerYear = 365.25 * 24 * secondsPerHour
	gasConstant    = 8.314462618
	// reference temperature for Arrhenius stress, 25 °C
	refTemperature = 298.15
)

// LithiumConfig parameterises SemiEmpiricalLithium.
type LithiumConfig struct {
	// CalendarRate is the fade per sqrt(year) at reference temperature and SOC 0.5.
	CalendarRate float64 `yaml:"calendar_rate"`
	// ActivationEnergy for the Arrhenius term in J/mol.
	ActivationEnergy float64 `yaml:"activation_energy"`
	// SocStress scales calendar fade linearly above SOC 0.5.
	SocStress float64 `yaml:"soc_stress"`
	// CycleRate is the fade per full equivalent cycle.
	CycleRate float64 `yaml:"cycle_rate"`
}

// DefaultLithium returns parameters for an NMC cell.
func DefaultLithium() LithiumConfig {
	return LithiumConfig{CalendarRate: 0.02, ActivationEnergy: 24000, SocStress: 0.5, CycleRate: 2e-5}
}

func (c LithiumConfig) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"calendar_rate", c.CalendarRate},
		{"activation_energy", c.ActivationEnergy},
		{"soc_stress", c.SocStress},
		{"cycle_rate", c.CycleRate},
	} {
		if err := simerr.NonNegative("degradation", f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

// SemiEmpiricalLithium combines square-root-of-time calendar fade stressed by
// temperature and SOC with linear full-equivalent-cycle fade.
type SemiEmpiricalLithium struct {
	cfg     LithiumConfig
	clk     clock
	virtual float64 // stress normalised calendar age in years
	lastSOC float64
	haveSOC bool
	cycles  float64
}

// NewSemiEmpiricalLithium validates cfg.
func NewSemiEmpiricalLithium(cfg LithiumConfig) (*SemiEmpiricalLithium, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SemiEmpiricalLithium{cfg: cfg}, nil
}

func (m *SemiEmpiricalLithium) stress(st state.SystemState) float64 {
	temp := st.StackTemperature
	if temp <= 0 {
		temp = refTemperature
	}
	arrhenius := math.Exp(-m.cfg.ActivationEnergy / gasConstant * (1/temp - 1/refTemperature))
	soc := 1 + m.cfg.SocStress*math.Max(st.SOC-0.5, 0)
	return arrhenius * soc
}

func (m *SemiEmpiricalLithium) CapacityDegradation(t float64, st state.SystemState) float64 {
	dt := m.clk.advance(t)
	var loss float64
	if dt > 0 {
		// virtual age grows with stress squared so constant stress gives rate*s*sqrt(t)
		before := m.cfg.CalendarRate * math.Sqrt(m.virtual)
		s := m.stress(st)
		m.virtual += dt / secondsPerYear * s * s
		loss += m.cfg.CalendarRate*math.Sqrt(m.virtual) - before
	}
	if m.haveSOC {
		fec := math.Abs(st.SOC-m.lastSOC) / 2
		m.cycles += fec
		loss += fec * m.cfg.CycleRate
	}
	m.lastSOC, m.haveSOC = st.SOC, true
	return math.Max(loss, 0)
}

// Seed records the SOC at the run start so the first step's swing counts.
func (m *SemiEmpiricalLithium) Seed(initial state.SystemState) {
	m.lastSOC, m.haveSOC = initial.SOC, true
}

// Cycles returns the full equivalent cycles counted so far.
func (m *SemiEmpiricalLithium) Cycles() float64 { return m.cycles }

func (m *SemiEmpiricalLithium) Close() error { return nil }

// StackConfig parameterises StackDegradation.
type StackConfig struct {
	RatePerHour      float64 `yaml:"rate_per_hour"`
	StartStopPenalty float64 `yaml:"start_stop_penalty"`
}

// DefaultStack returns parameters for a PEM stack (about 10 µV/h equivalent).
func DefaultStack() StackConfig { return StackConfig{RatePerHour: 5e-6, StartStopPenalty: 1e-5} }

func (c StackConfig) Validate() error {
	if err := simerr.NonNegative("degradation", "rate_per_hour", c.RatePerHour); err != nil {
		return err
	}
	return simerr.NonNegative("degradation", "start_stop_penalty", c.StartStopPenalty)
}

// StackDegradation fades per operating hour and charges a penalty for every
// transition from standby to operation.
type StackDegradation struct {
	cfg     StackConfig
	clk     clock
	running bool
	starts  int
}

func NewStackDegradation(cfg StackConfig) (*StackDegradation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &StackDegradation{cfg: cfg}, nil
}

func (m *StackDegradation) CapacityDegradation(t float64, st state.SystemState) float64 {
	dt := m.clk.advance(t)
	operating := st.Current > 0
	var loss float64
	if operating {
		loss += m.cfg.RatePerHour * dt / secondsPerHour
		if !m.running {
			m.starts++
			loss += m.cfg.StartStopPenalty
		}
	}
	m.running = operating
	return loss
}

// Starts returns the number of standby to operation transitions.
func (m *StackDegradation) Starts() int { return m.starts }

func (m *StackDegradation) Close() error { return nil }

// LinearCalendar fades by a constant fraction per year regardless of load.
type LinearCalendar struct {
	ratePerYear float64
	clk         clock
}

func NewLinearCalendar(ratePerYear float64) (*LinearCalendar, error) {
	if err := simerr.NonNegative("degradation", "rate_per_year", ratePerYear); err != nil {
		return nil, err
	}
	return &LinearCalendar{ratePerYear: ratePerYear}, nil
}

func (m *LinearCalendar) CapacityDegradation(t float64, _ state.SystemState) float64 {
	return m.ratePerYear * m.clk.advance(t) / secondsPerYear
}

func (m *LinearCalendar) Close() error { return nil }
