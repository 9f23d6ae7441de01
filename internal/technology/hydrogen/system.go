package hydrogen

import (
	"errors"
	"fmt"
	"math"
	"time"

	"storagesim/internal/state"
	"storagesim/internal/technology"
)

// SystemConfig combines an electrolyzer and a fuel cell over one tank.
type SystemConfig struct {
	Electrolyzer StackConfig `yaml:"electrolyzer"`
	FuelCell     StackConfig `yaml:"fuel_cell"`
	Tank         TankConfig  `yaml:"tank"`
}

func DefaultSystem() SystemConfig {
	return SystemConfig{Electrolyzer: DefaultElectrolyzer(), FuelCell: DefaultFuelCell(), Tank: DefaultTank()}
}

// System charges through its electrolyzer and discharges through its fuel
// cell. SOC is the tank fill.
type System struct {
	id   string
	el   *Electrolyzer
	fc   *FuelCell
	tank *Tank
	last state.SystemState
}

// NewSystem builds both stacks; each takes its own components.
func NewSystem(id string, cfg SystemConfig, elComp, fcComp technology.Components) (*System, error) {
	tank, err := NewTank(cfg.Tank)
	if err != nil {
		return nil, fmt.Errorf("hydrogen %s: %w", id, err)
	}
	el, err := NewElectrolyzer(id+"/electrolyzer", cfg.Electrolyzer, tank, elComp)
	if err != nil {
		return nil, err
	}
	fc, err := NewFuelCell(id+"/fuel_cell", cfg.FuelCell, tank, fcComp)
	if err != nil {
		return nil, err
	}
	s := &System{id: id, el: el, fc: fc, tank: tank}
	s.last = s.merge(el.State(), fc.State(), 0)
	return s, nil
}

func (s *System) ID() string               { return s.id }
func (s *System) Kind() technology.Kind    { return technology.Hydrogen }
func (s *System) State() state.SystemState { return s.last }

// Tank exposes the shared tank.
func (s *System) Tank() *Tank { return s.tank }

func (s *System) Close() error {
	return errors.Join(s.el.Close(), s.fc.Close())
}

// Step routes positive power to the electrolyzer and negative power to the
// fuel cell. The idle stack is stepped with zero power so it cools down.
func (s *System) Step(t time.Time, dt time.Duration, power float64) (state.SystemState, error) {
	var elPower, fcPower float64
	if power > 0 {
		elPower = power
	} else {
		fcPower = power
	}
	el, err := s.el.Step(t, dt, elPower)
	if err != nil {
		return state.SystemState{}, err
	}
	fc, err := s.fc.Step(t, dt, fcPower)
	if err != nil {
		return state.SystemState{}, err
	}
	s.last = s.merge(el, fc, power)
	return s.last, nil
}

func (s *System) merge(el, fc state.SystemState, requested float64) state.SystemState {
	st := el
	st.StorageID = s.id
	st.Technology = string(technology.Hydrogen)
	st.RequestedPower = requested
	st.ActualPower = el.ActualPower + fc.ActualPower
	st.Fulfillment = state.Fulfillment(requested, st.ActualPower)
	st.Losses = el.Losses + fc.Losses
	st.H2Consumption = fc.H2Consumption
	st.PressureAnode = fc.PressureAnode
	st.WaterFlow = el.WaterFlow + fc.WaterFlow
	st.StackTemperature = math.Max(el.StackTemperature, fc.StackTemperature)
	if requested < 0 {
		st.Voltage, st.Current = fc.Voltage, -fc.Current
	}
	st.SOC = s.tank.Fill()
	st.TankPressure = s.tank.Pressure()
	st.SOH = math.Min(el.SOH, fc.SOH)
	st.CapacityLoss = math.Max(el.CapacityLoss, fc.CapacityLoss)
	st.MaxChargePower = el.MaxChargePower
	st.MaxDischargePower = fc.MaxDischargePower
	return st
}
