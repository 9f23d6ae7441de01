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

// FuelCell converts hydrogen from a tank to discharging power.
type FuelCell struct {
	id     string
	cfg    StackConfig
	comp   technology.Components
	supply pressure.InflowController
	tank   *Tank
	node   technology.ThermalNode
	anode  float64
	aging  *technology.Aging
	last   state.SystemState
	steps  int
}

// NewFuelCell builds a stack drawing from tank. The pressure regulator, when
// set, must control inflow.
func NewFuelCell(id string, cfg StackConfig, tank *Tank, comp technology.Components) (*FuelCell, error) {
	if err := cfg.Validate("fuel_cell"); err != nil {
		return nil, fmt.Errorf("fuel cell %s: %w", id, err)
	}
	if tank == nil {
		return nil, simerr.Config("fuel_cell", "tank", "required")
	}
	comp = comp.WithDefaults()
	supply, ok := comp.Pressure.(pressure.InflowController)
	if !ok {
		return nil, simerr.Config("fuel_cell", "pressure", fmt.Sprintf("%T can not regulate inflow", comp.Pressure))
	}
	f := &FuelCell{
		id: id, cfg: cfg, comp: comp, supply: supply, tank: tank,
		anode: cfg.TargetPressure,
		aging: technology.NewAging(comp.Degradation),
	}
	f.node = cfg.Thermal.Node(comp.Ambient.Temperature(time.Time{}))
	f.last = f.snapshot(time.Time{})
	return f, nil
}

func (f *FuelCell) ID() string               { return f.id }
func (f *FuelCell) Kind() technology.Kind    { return technology.FuelCell }
func (f *FuelCell) State() state.SystemState { return f.last }
func (f *FuelCell) Close() error             { return f.aging.Close() }

func (f *FuelCell) maxPower() float64 {
	if f.tank.Moles() <= 0 {
		return 0
	}
	return f.cfg.MaxPower * f.aging.SOH()
}

// Step discharges for negative power; charging requests are not served.
func (f *FuelCell) Step(t time.Time, dt time.Duration, power float64) (state.SystemState, error) {
	f.steps++
	secs := dt.Seconds()
	if secs <= 0 {
		f.last = technology.Neutral(f.last, t, power)
		f.last.Step = f.steps
		return f.last, nil
	}
	temp := f.node.Temperature
	demand := technology.Clamp(-power, 0, f.maxPower())
	j := f.cfg.density(f.cfg.fuelCell, demand, temp)
	consumed := f.cfg.molarFlow(j) / f.cfg.FaradayEfficiency

	if limit := f.tank.Moles() / secs; consumed > limit {
		consumed = limit
		j = f.cfg.densityForFlow(consumed * f.cfg.FaradayEfficiency)
	}
	delivered := 0.0
	if j > 0 {
		delivered = f.cfg.power(f.cfg.fuelCell, j, temp)
	}
	cell := f.cfg.fuelCell(j, temp)
	heat := float64(f.cfg.Cells) * f.cfg.current(j) * (thermoneutralVoltage - cell)

	ambient := f.comp.Ambient.Temperature(t)
	f.comp.Thermal.Calculate(temp, heat, secs, f.cfg.MinWaterFlow, j)
	removed := thermal.HeatRemoved(thermal.Read(f.comp.Thermal), temp)
	f.node.Step(heat-removed, ambient, secs)

	in := f.supply.CalculateNH2In(f.anode, f.cfg.TargetPressure, consumed, f.cfg.MaxFlow)
	drawn := f.tank.Remove(in*secs) / secs
	f.anode = pressure.Update(f.anode, f.cfg.GasVolume, temp, drawn-consumed, secs)

	st := f.snapshot(t)
	st.RequestedPower = power
	st.ActualPower = -delivered
	st.Fulfillment = state.Fulfillment(power, -delivered)
	st.Voltage = cell * float64(f.cfg.Cells)
	st.Current = f.cfg.current(j)
	st.H2Consumption = consumed
	st.Losses = math.Max(consumed*technology.H2LowerHeatingValue*3600-delivered, 0)
	st.AmbientTemperature = ambient
	loss := f.aging.Apply(t, dt, f.last, st)
	st.CapacityLoss, st.SOH = loss, 1-loss
	st.MaxDischargePower = f.maxPower()
	f.last = st
	return st, nil
}

func (f *FuelCell) snapshot(t time.Time) state.SystemState {
	return state.SystemState{
		StorageID:          f.id,
		Technology:         string(technology.FuelCell),
		Step:               f.steps,
		Timestamp:          t,
		Fulfillment:        1,
		SOC:                f.tank.Fill(),
		SOH:                f.aging.SOH(),
		Capacity:           f.tank.EnergyCapacity(),
		CapacityLoss:       f.aging.Loss(),
		AmbientTemperature: f.comp.Ambient.Temperature(t),
		StackTemperature:   f.node.Temperature,
		WaterFlow:          f.comp.Thermal.H2OFlow(),
		PressureAnode:      f.anode,
		PressureCathode:    atmosphere,
		TankPressure:       f.tank.Pressure(),
		MaxDischargePower:  f.maxPower(),
	}
}
