package hydrogen

import (
	"fmt"
	"math"
	"time"

	"storagesim/internal/pressure"
	"storagesim/internal/simerr"
	"storagesim/internal/state"
	"storagesim/internal/technology"
	"storagesim/internal/thermal"
)

// atmospheric anode side pressure, bar
const atmosphere = 1.01325

// Electrolyzer converts charging power to hydrogen delivered into a tank.
type Electrolyzer struct {
	id      string
	cfg     StackConfig
	comp    technology.Components
	valve   pressure.OutflowController
	tank    *Tank
	node    technology.ThermalNode
	cathode float64
	aging   *technology.Aging
	last    state.SystemState
	steps   int
}

// NewElectrolyzer builds a stack feeding tank. The pressure regulator, when
// set, must control outflow.
func NewElectrolyzer(id string, cfg StackConfig, tank *Tank, comp technology.Components) (*Electrolyzer, error) {
	if err := cfg.Validate("electrolyzer"); err != nil {
		return nil, fmt.Errorf("electrolyzer %s: %w", id, err)
	}
	if tank == nil {
		return nil, simerr.Config("electrolyzer", "tank", "required")
	}
	comp = comp.WithDefaults()
	valve, ok := comp.Pressure.(pressure.OutflowController)
	if !ok {
		return nil, simerr.Config("electrolyzer", "pressure", fmt.Sprintf("%T can not regulate outflow", comp.Pressure))
	}
	e := &Electrolyzer{
		id: id, cfg: cfg, comp: comp, valve: valve, tank: tank,
		cathode: cfg.TargetPressure,
		aging:   technology.NewAging(comp.Degradation),
	}
	e.node = cfg.Thermal.Node(comp.Ambient.Temperature(time.Time{}))
	e.last = e.snapshot(time.Time{})
	return e, nil
}

func (e *Electrolyzer) ID() string               { return e.id }
func (e *Electrolyzer) Kind() technology.Kind    { return technology.Electrolyzer }
func (e *Electrolyzer) State() state.SystemState { return e.last }
func (e *Electrolyzer) Close() error             { return e.aging.Close() }

func (e *Electrolyzer) maxPower() float64 {
	if e.tank.Headroom() <= 0 {
		return 0
	}
	return e.cfg.MaxPower * e.aging.SOH()
}

func (e *Electrolyzer) Step(t time.Time, dt time.Duration, power float64) (state.SystemState, error) {
	e.steps++
	secs := dt.Seconds()
	if secs <= 0 {
		e.last = technology.Neutral(e.last, t, power)
		e.last.Step = e.steps
		return e.last, nil
	}
	temp := e.node.Temperature
	p := technology.Clamp(power, 0, e.maxPower())
	j := e.cfg.density(e.cfg.electrolysis, p, temp)
	produced := e.cfg.molarFlow(j) * e.cfg.FaradayEfficiency

	// tank full: curtail to what fits
	if limit := e.tank.Headroom() / secs; produced > limit {
		produced = limit
		j = e.cfg.densityForFlow(produced / e.cfg.FaradayEfficiency)
	}
	if j > 0 {
		p = e.cfg.power(e.cfg.electrolysis, j, temp)
	} else {
		p = 0
	}
	cell := e.cfg.electrolysis(j, temp)
	heat := float64(e.cfg.Cells) * e.cfg.current(j) * (cell - thermoneutralVoltage)

	ambient := e.comp.Ambient.Temperature(t)
	e.comp.Thermal.Calculate(temp, heat, secs, e.cfg.MinWaterFlow, j)
	removed := thermal.HeatRemoved(thermal.Read(e.comp.Thermal), temp)
	e.node.Step(heat-removed, ambient, secs)

	out := e.valve.CalculateNH2Out(e.cathode, e.cfg.TargetPressure, produced, e.cfg.MaxFlow)
	delivered := e.tank.Add(out*secs) / secs
	e.cathode = pressure.Update(e.cathode, e.cfg.GasVolume, temp, produced-delivered, secs)

	st := e.snapshot(t)
	st.RequestedPower = power
	st.ActualPower = p
	st.Fulfillment = state.Fulfillment(power, p)
	st.Voltage = cell * float64(e.cfg.Cells)
	st.Current = e.cfg.current(j)
	st.H2Production = produced
	st.Losses = math.Max(p-produced*technology.H2LowerHeatingValue*3600, 0)
	st.AmbientTemperature = ambient
	loss := e.aging.Apply(t, dt, e.last, st)
	st.CapacityLoss, st.SOH = loss, 1-loss
	st.MaxChargePower = e.maxPower()
	e.last = st
	return st, nil
}

func (e *Electrolyzer) snapshot(t time.Time) state.SystemState {
	return state.SystemState{
		StorageID:          e.id,
		Technology:         string(technology.Electrolyzer),
		Step:               e.steps,
		Timestamp:          t,
		Fulfillment:        1,
		SOC:                e.tank.Fill(),
		SOH:                e.aging.SOH(),
		Capacity:           e.tank.EnergyCapacity(),
		CapacityLoss:       e.aging.Loss(),
		AmbientTemperature: e.comp.Ambient.Temperature(t),
		StackTemperature:   e.node.Temperature,
		WaterFlow:          e.comp.Thermal.H2OFlow(),
		PressureAnode:      atmosphere,
		PressureCathode:    e.cathode,
		TankPressure:       e.tank.Pressure(),
		MaxChargePower:     e.maxPower(),
	}
}
