package systemthermal

import (
	"time"

	"storagesim/internal/simerr"
	"storagesim/internal/technology"
	"storagesim/internal/thermal"
)

// System thermal model names.
const (
	NoSystemThermalModelName = "NoSystemThermalModel"
	ZeroDName                = "ZeroDSystemThermalModel"
)

func ModelNames() []string { return []string{NoSystemThermalModelName, ZeroDName} }

// Result is the air state after one step.
type Result struct {
	Temperature float64 // K at the end of the step
	HVACThermal float64 // W into the air, negative when cooling
	HVACPower   float64 // electrical W
}

// Model tracks the air around the storages of one AC system. It is an
// ambient for the technology models inside the housing. Update must not
// run concurrently with Temperature.
type Model interface {
	thermal.Ambient
	Name() string
	// Update advances the air over [t, t+dt] with heat in W released inside
	// the housing.
	Update(t time.Time, dt time.Duration, heat float64) Result
}

// Config selects a model with its housing and HVAC.
type Config struct {
	Model   string
	Housing Housing
	HVAC    HVAC
}

// New builds the model named in cfg around ambient.
func New(cfg Config, ambient thermal.Ambient) (Model, error) {
	if ambient == nil {
		ambient = thermal.ConstantAmbient(thermal.DefaultAmbientTemperature)
	}
	switch cfg.Model {
	case "", NoSystemThermalModelName:
		return NoSystemThermalModel{ambient: ambient}, nil
	case ZeroDName:
		return NewZeroD(ambient, cfg.Housing, cfg.HVAC)
	}
	return nil, unknown("system_thermal", "system thermal model", cfg.Model, ModelNames())
}

// NoSystemThermalModel keeps the air at ambient and never runs an HVAC.
type NoSystemThermalModel struct{ ambient thermal.Ambient }

func NewNoSystemThermalModel(ambient thermal.Ambient) NoSystemThermalModel {
	return NoSystemThermalModel{ambient: ambient}
}

func (NoSystemThermalModel) Name() string { return NoSystemThermalModelName }

func (m NoSystemThermalModel) Temperature(t time.Time) float64 { return m.ambient.Temperature(t) }

func (m NoSystemThermalModel) Update(t time.Time, dt time.Duration, _ float64) Result {
	return Result{Temperature: m.ambient.Temperature(t.Add(dt))}
}

// ZeroD treats the housing air as one lumped node. Each step the HVAC sees
// the unregulated end temperature and adds the heat that brings it into band.
type ZeroD struct {
	ambient thermal.Ambient
	hvac    HVAC
	node    technology.ThermalNode
}

// NewZeroD needs an enclosed housing. A nil hvac is NoHVAC.
func NewZeroD(ambient thermal.Ambient, housing Housing, hvac HVAC) (*ZeroD, error) {
	if !housing.Enclosed() {
		return nil, simerr.Config("system_thermal", "housing", ZeroDName+" needs an enclosed housing, got "+housing.Name)
	}
	if ambient == nil {
		ambient = thermal.ConstantAmbient(thermal.DefaultAmbientTemperature)
	}
	if hvac == nil {
		hvac = NoHVAC{}
	}
	cfg := technology.ThermalConfig{
		HeatCapacity:       housing.HeatCapacity,
		Conductance:        housing.Conductance,
		InitialTemperature: housing.InitialTemperature,
	}
	return &ZeroD{ambient: ambient, hvac: hvac, node: cfg.Node(ambient.Temperature(time.Time{}))}, nil
}

func (*ZeroD) Name() string { return ZeroDName }

// Temperature returns the air temperature reached at the end of the last step.
func (z *ZeroD) Temperature(time.Time) float64 { return z.node.Temperature }

func (z *ZeroD) Update(t time.Time, dt time.Duration, heat float64) Result {
	secs := dt.Seconds()
	if secs <= 0 {
		return Result{Temperature: z.node.Temperature}
	}
	amb := z.ambient.Temperature(t)
	free := z.node
	free.Step(heat, amb, secs)
	// implicit Euler end temperature is linear in the added heat
	gain := secs / (z.node.HeatCapacity + z.node.Conductance*secs)
	q := z.hvac.Regulate(free.Temperature, gain)
	z.node.Step(heat+q, amb, secs)
	return Result{Temperature: z.node.Temperature, HVACThermal: q, HVACPower: z.hvac.ElectricalPower(q)}
}
