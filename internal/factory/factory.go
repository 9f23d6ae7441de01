// Package factory turns a validated configuration into a ready-to-run storage
// system and its requested power source.
package factory

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"storagesim/internal/config"
	"storagesim/internal/dccoupling"
	"storagesim/internal/degradation"
	"storagesim/internal/distribution"
	"storagesim/internal/powerelectronics"
	"storagesim/internal/pressure"
	"storagesim/internal/profile"
	"storagesim/internal/scenario"
	"storagesim/internal/simerr"
	"storagesim/internal/state"
	"storagesim/internal/storage"
	"storagesim/internal/systemthermal"
	"storagesim/internal/technology"
	"storagesim/internal/technology/hydrogen"
	"storagesim/internal/technology/lithiumion"
	"storagesim/internal/technology/redoxflow"
	"storagesim/internal/thermal"
)

// Component variant names.
const (
	NoThermalName    = "NoThermalController"
	WaterCoolingName = "WaterCooling"

	NoPressureName         = "NoPressureController"
	ProportionalValveName  = "ProportionalValve"
	ProportionalSupplyName = "ProportionalSupply"

	NoDegradationName        = "NoDegradation"
	SemiEmpiricalLithiumName = "SemiEmpiricalLithium"
	StackDegradationName     = "StackDegradation"
	LinearCalendarName       = "LinearCalendar"
)

// PowerSource yields the requested AC power for a step. total is the
// aggregated state after the previous step.
type PowerSource interface {
	Power(step int, total state.SystemState) (float64, error)
}

// Plan is everything a simulator needs for one run.
type Plan struct {
	Name     string
	System   *storage.Plant
	Power    PowerSource
	Start    time.Time
	Timestep time.Duration
	Steps    int
	Pace     time.Duration
}

// Option customises Build.
type Option func(*builder)

// WithBaseDir resolves relative profile paths against dir.
func WithBaseDir(dir string) Option { return func(b *builder) { b.baseDir = dir } }

// WithDegradationSink receives every storage's degradation history on close.
func WithDegradationSink(sink degradation.Sink) Option {
	return func(b *builder) { b.sink = sink }
}

// WithCache shares loaded profiles between builds.
func WithCache(c *profile.Cache) Option { return func(b *builder) { b.cache = c } }

type builder struct {
	cfg     *config.SimulationConfig
	baseDir string
	sink    degradation.Sink
	cache   *profile.Cache
	start   time.Time
	dt      time.Duration
	steps   int
	ambient thermal.Ambient
}

// Build constructs and configures the storage system described by cfg. Every
// profile is loaded and checked against the horizon before Build returns.
func Build(cfg *config.SimulationConfig, opts ...Option) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &builder{cfg: cfg, dt: cfg.Simulation.Timestep.Std(), steps: cfg.Simulation.Steps}
	for _, o := range opts {
		o(b)
	}
	if b.cache == nil {
		b.cache = profile.NewCache()
	}
	var err error
	if b.start, err = cfg.Simulation.StartTime(); err != nil {
		return nil, err
	}
	if b.ambient, err = b.buildAmbient(); err != nil {
		return nil, err
	}
	explicit := len(cfg.System.AcSystems) > 0
	var systems []*storage.System
	closeAll := func() {
		for _, sys := range systems {
			sys.Close()
		}
	}
	for _, ac := range cfg.System.ACSystems() {
		sys, err := b.buildACSystem(ac)
		if err != nil {
			closeAll()
			if explicit {
				return nil, fmt.Errorf("ac system %s: %w", ac.Name, err)
			}
			return nil, err
		}
		systems = append(systems, sys)
	}
	var dist distribution.PowerDistributor
	if explicit {
		if dist, err = distribution.New(cfg.System.Distributor, cfg.System.Priority); err != nil {
			closeAll()
			return nil, err
		}
	}
	sys, err := storage.NewPlant(cfg.System.Name, dist, systems...)
	if err != nil {
		closeAll()
		return nil, err
	}
	if err := sys.Configure(b.steps); err != nil {
		sys.Close()
		return nil, err
	}
	power, err := b.buildPower()
	if err != nil {
		sys.Close()
		return nil, err
	}
	name := cfg.Simulation.RunName
	if name == "" {
		name = cfg.System.Name
	}
	return &Plan{
		Name:     name,
		System:   sys,
		Power:    power,
		Start:    b.start,
		Timestep: b.dt,
		Steps:    b.steps,
		Pace:     cfg.Simulation.Pace.Std(),
	}, nil
}

func (b *builder) path(p string) string {
	if b.baseDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(b.baseDir, p)
}

func (b *builder) buildAmbient() (thermal.Ambient, error) {
	a := b.cfg.Ambient
	if a.File != "" {
		s, err := b.cache.Load(b.path(a.File))
		if err != nil {
			return nil, err
		}
		return thermal.NewProfileAmbient(s, b.start, b.dt, b.steps)
	}
	if a.Temperature > 0 {
		return thermal.ConstantAmbient(a.Temperature), nil
	}
	return thermal.ConstantAmbient(thermal.DefaultAmbientTemperature), nil
}

func interpolation(name string) (profile.Interpolation, error) {
	switch profile.Interpolation(name) {
	case "", profile.Linear:
		return profile.Linear, nil
	case profile.Hold:
		return profile.Hold, nil
	}
	return "", simerr.Config("power_profile", "interpolation",
		fmt.Sprintf("unknown interpolation %q, available: %s, %s", name, profile.Linear, profile.Hold))
}

func (b *builder) buildPower() (PowerSource, error) {
	pp := b.cfg.PowerProfile
	scale := pp.ScaleOrDefault()
	switch {
	case pp.File != "":
		mode, err := interpolation(pp.Interpolation)
		if err != nil {
			return nil, err
		}
		s, err := b.cache.Load(b.path(pp.File))
		if err != nil {
			return nil, err
		}
		vals, err := s.Resample(b.start, b.dt, b.steps, mode, scale)
		if err != nil {
			return nil, fmt.Errorf("power profile: %w", err)
		}
		return scenario.Series(vals), nil
	case len(pp.Phases) > 0:
		sc := &scenario.Scenario{Name: "inline", Phases: pp.Phases}
		if err := sc.Validate(); err != nil {
			return nil, err
		}
		return scenario.NewPlayer(sc, scale), nil
	}
	if sc, ok := scenario.BuiltIn()[pp.Scenario]; ok {
		return scenario.NewPlayer(&sc, scale), nil
	}
	if strings.HasSuffix(pp.Scenario, ".yaml") || strings.HasSuffix(pp.Scenario, ".yml") {
		sc, err := scenario.Load(b.path(pp.Scenario))
		if err != nil {
			return nil, err
		}
		return scenario.NewPlayer(sc, scale), nil
	}
	return nil, simerr.Config("power_profile", "scenario",
		fmt.Sprintf("unknown scenario %q, available: %s or a .yaml file", pp.Scenario, strings.Join(scenario.Names(), ", ")))
}

// buildACSystem builds the converter, housing air and storages of one AC
// system. Storages see the housing air as their ambient.
func (b *builder) buildACSystem(ac config.AcSystem) (*storage.System, error) {
	dist, err := distribution.New(ac.Distributor, ac.Priority)
	if err != nil {
		return nil, err
	}
	conv, err := powerelectronics.New(ac.Converter)
	if err != nil {
		return nil, err
	}
	air, err := b.buildSystemThermal(ac)
	if err != nil {
		return nil, err
	}
	subs := make([]storage.Subsystem, 0, len(ac.Storages))
	for _, sc := range ac.Storages {
		sub, err := b.buildStorage(sc, air)
		if err != nil {
			closeSubsystems(subs)
			return nil, fmt.Errorf("storage %s: %w", sc.Name, err)
		}
		subs = append(subs, sub)
	}
	sys, err := storage.New(ac.Name, dist, conv, subs,
		storage.WithTimestep(b.dt),
		storage.WithParallel(b.cfg.Simulation.Parallel),
		storage.WithDegradationSink(b.sink),
		storage.WithSystemThermal(air),
	)
	if err != nil {
		closeSubsystems(subs)
		return nil, err
	}
	return sys, nil
}

// closeSubsystems releases models that never made it into a system.
func closeSubsystems(subs []storage.Subsystem) {
	for _, sub := range subs {
		sub.Model.Close()
	}
}

func (b *builder) buildSystemThermal(ac config.AcSystem) (systemthermal.Model, error) {
	housing, err := Housing(ac.Housing)
	if err != nil {
		return nil, err
	}
	hvac, err := HVAC(ac.HVAC)
	if err != nil {
		return nil, err
	}
	return systemthermal.New(systemthermal.Config{Model: ac.ThermalModel, Housing: housing, HVAC: hvac}, b.ambient)
}

func (b *builder) buildStorage(sc config.Storage, ambient thermal.Ambient) (storage.Subsystem, error) {
	kind, err := technology.ParseKind(sc.Technology)
	if err != nil {
		return storage.Subsystem{}, err
	}
	coupling, err := b.buildCoupling(sc.DcCoupling)
	if err != nil {
		return storage.Subsystem{}, err
	}
	dcdc, err := powerelectronics.NewDcDc(sc.DcDc)
	if err != nil {
		return storage.Subsystem{}, err
	}
	model, err := b.buildModel(kind, sc, ambient)
	if err != nil {
		return storage.Subsystem{}, err
	}
	return storage.Subsystem{Model: model, Coupling: coupling, DcDc: dcdc}, nil
}

// stackParams is the parameter block of a standalone electrolyzer or fuel cell.
type stackParams struct {
	hydrogen.StackConfig `yaml:",inline"`
	Tank                 hydrogen.TankConfig `yaml:"tank"`
}

func components(kind technology.Kind, ambient thermal.Ambient, th, pr, dg config.Block) (technology.Components, error) {
	tc, err := Thermal(kind, th)
	if err != nil {
		return technology.Components{}, err
	}
	pc, err := Pressure(kind, pr)
	if err != nil {
		return technology.Components{}, err
	}
	dm, err := Degradation(kind, dg)
	if err != nil {
		return technology.Components{}, err
	}
	return technology.Components{Thermal: tc, Pressure: pc, Degradation: dm, Ambient: ambient}, nil
}

func (b *builder) buildModel(kind technology.Kind, sc config.Storage, ambient thermal.Ambient) (technology.Model, error) {
	switch kind {
	case technology.LithiumIon:
		cfg := lithiumion.DefaultConfig()
		if err := sc.DecodeParameters(&cfg); err != nil {
			return nil, err
		}
		comp, err := components(kind, ambient, sc.Thermal, sc.Pressure, sc.Degradation)
		if err != nil {
			return nil, err
		}
		return lithiumion.New(sc.Name, cfg, comp)

	case technology.Electrolyzer, technology.FuelCell:
		p := stackParams{StackConfig: hydrogen.DefaultElectrolyzer(), Tank: hydrogen.DefaultTank()}
		if kind == technology.FuelCell {
			p.StackConfig = hydrogen.DefaultFuelCell()
		}
		if err := sc.DecodeParameters(&p); err != nil {
			return nil, err
		}
		comp, err := components(kind, ambient, sc.Thermal, sc.Pressure, sc.Degradation)
		if err != nil {
			return nil, err
		}
		tank, err := hydrogen.NewTank(p.Tank)
		if err != nil {
			return nil, err
		}
		if kind == technology.FuelCell {
			return hydrogen.NewFuelCell(sc.Name, p.StackConfig, tank, comp)
		}
		return hydrogen.NewElectrolyzer(sc.Name, p.StackConfig, tank, comp)

	case technology.Hydrogen:
		cfg := hydrogen.DefaultSystem()
		if err := sc.DecodeParameters(&cfg); err != nil {
			return nil, err
		}
		el, err := components(technology.Electrolyzer, ambient, sc.Thermal, sc.Pressure, sc.Degradation)
		if err != nil {
			return nil, err
		}
		fc, err := components(technology.FuelCell, ambient, sc.FuelCellThermal, sc.FuelCellPressure, sc.Degradation)
		if err != nil {
			return nil, err
		}
		return hydrogen.NewSystem(sc.Name, cfg, el, fc)

	case technology.RedoxFlow:
		cfg := redoxflow.DefaultConfig()
		if err := sc.DecodeParameters(&cfg); err != nil {
			return nil, err
		}
		comp, err := components(kind, ambient, sc.Thermal, sc.Pressure, sc.Degradation)
		if err != nil {
			return nil, err
		}
		return redoxflow.New(sc.Name, cfg, comp)
	}
	return nil, simerr.Config(sc.Name, "technology", fmt.Sprintf("unsupported technology %q", kind))
}

func unknown(component, kind, name string, options ...string) error {
	return simerr.Config(component, "type",
		fmt.Sprintf("unknown %s %q, available: %s", kind, name, strings.Join(options, ", ")))
}

// Thermal builds a thermal controller. Water cooling starts from the preset
// of the technology and is overlaid with the block parameters.
func Thermal(kind technology.Kind, blk config.Block) (thermal.Controller, error) {
	switch blk.Type {
	case "", NoThermalName:
		return thermal.NewNoThermalController(), nil
	case WaterCoolingName:
		var cfg thermal.WaterCoolingConfig
		switch kind {
		case technology.Electrolyzer:
			cfg = thermal.ElectrolyzerCooling()
		case technology.FuelCell:
			cfg = thermal.FuelCellCooling()
		default:
			cfg = thermal.BatteryCooling()
		}
		if err := blk.Decode(&cfg); err != nil {
			return nil, simerr.Config("thermal", "params", err.Error())
		}
		return thermal.NewWaterCooling(cfg)
	}
	return nil, unknown("thermal", "thermal controller", blk.Type, NoThermalName, WaterCoolingName)
}

// Pressure builds a pressure controller.
func Pressure(_ technology.Kind, blk config.Block) (pressure.Regulator, error) {
	cfg := pressure.DefaultConfig()
	if err := blk.Decode(&cfg); err != nil {
		return nil, simerr.Config("pressure", "params", err.Error())
	}
	switch blk.Type {
	case "", NoPressureName:
		return pressure.NewNoPressureController(), nil
	case ProportionalValveName:
		return pressure.NewProportionalValve(cfg)
	case ProportionalSupplyName:
		return pressure.NewProportionalSupply(cfg)
	}
	return nil, unknown("pressure", "pressure controller", blk.Type, NoPressureName, ProportionalValveName, ProportionalSupplyName)
}

// Housing builds the enclosure of an AC system. A container starts from
// DefaultContainer and is overlaid with the block parameters.
func Housing(blk config.Block) (systemthermal.Housing, error) {
	switch blk.Type {
	case "", systemthermal.NoHousingName:
		return systemthermal.NoHousing(), nil
	case systemthermal.TwentyFtContainerName:
		cfg := systemthermal.DefaultContainer()
		if err := blk.Decode(&cfg); err != nil {
			return systemthermal.Housing{}, simerr.Config("housing", "params", err.Error())
		}
		return systemthermal.TwentyFtContainer(cfg)
	}
	return systemthermal.Housing{}, unknown("housing", "housing", blk.Type, systemthermal.HousingNames()...)
}

// HVAC builds the heating and cooling unit of an AC system.
func HVAC(blk config.Block) (systemthermal.HVAC, error) {
	switch blk.Type {
	case "", systemthermal.NoHVACName:
		return systemthermal.NoHVAC{}, nil
	case systemthermal.FixCOPName:
		cfg := systemthermal.DefaultFixCOP()
		if err := blk.Decode(&cfg); err != nil {
			return nil, simerr.Config("hvac", "params", err.Error())
		}
		return systemthermal.NewFixCOP(cfg)
	}
	return nil, unknown("hvac", "hvac", blk.Type, systemthermal.HVACNames()...)
}

// linearCalendar is the parameter block of LinearCalendar.
type linearCalendar struct {
	RatePerYear float64 `yaml:"rate_per_year"`
}

// Degradation builds a degradation model. Every call returns a fresh,
// independent instance.
func Degradation(_ technology.Kind, blk config.Block) (degradation.Model, error) {
	decode := func(into interface{}) error {
		if err := blk.Decode(into); err != nil {
			return simerr.Config("degradation", "params", err.Error())
		}
		return nil
	}
	switch blk.Type {
	case "", NoDegradationName:
		return degradation.NoDegradation{}, nil
	case SemiEmpiricalLithiumName:
		cfg := degradation.DefaultLithium()
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		return degradation.NewSemiEmpiricalLithium(cfg)
	case StackDegradationName:
		cfg := degradation.DefaultStack()
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		return degradation.NewStackDegradation(cfg)
	case LinearCalendarName:
		cfg := linearCalendar{RatePerYear: 0.01}
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		return degradation.NewLinearCalendar(cfg.RatePerYear)
	}
	return nil, unknown("degradation", "degradation model", blk.Type,
		NoDegradationName, SemiEmpiricalLithiumName, StackDegradationName, LinearCalendarName)
}

// couplingValues resamples a DC profile for the queries made after each step.
func (b *builder) couplingValues(file string) ([]float64, error) {
	s, err := b.cache.Load(b.path(file))
	if err != nil {
		return nil, err
	}
	vals, err := s.Resample(b.start.Add(b.dt), b.dt, b.steps, profile.Linear, 1)
	if err != nil {
		return nil, fmt.Errorf("dc coupling: %w", err)
	}
	return vals, nil
}

func (b *builder) buildCoupling(dc config.DcCoupling) (*dccoupling.Coupling, error) {
	switch dc.Type {
	case "", dccoupling.NoDcCouplingName:
		return dccoupling.NoDcCoupling(), nil

	case dccoupling.BusChargingDcCouplingName:
		return dccoupling.BusChargingDcCoupling(dc.ChargingPower, dc.GenerationPower), nil

	case dccoupling.BusChargingProfileDcCouplingName:
		if dc.LoadFile == "" {
			return nil, simerr.Config("dc_coupling", "load_file", "required")
		}
		vals, err := b.couplingValues(dc.LoadFile)
		if err != nil {
			return nil, err
		}
		return dccoupling.BusChargingProfileDcCoupling(dc.Capacity, dc.LoadFile, vals)

	case dccoupling.SolarDcCouplingName:
		gen, err := dccoupling.NewSolarGeneration(dc.Solar)
		if err != nil {
			return nil, err
		}
		var load dccoupling.Load = dccoupling.NoLoad{}
		if dc.ChargingPower > 0 {
			load = dccoupling.FixedLoad(dc.ChargingPower)
		}
		return dccoupling.New(dccoupling.SolarDcCouplingName, load, gen), nil

	case dccoupling.ProfileDcCouplingName:
		if dc.LoadFile == "" && dc.GenerationFile == "" {
			return nil, simerr.Config("dc_coupling", "load_file", "load_file or generation_file required")
		}
		var load dccoupling.Load = dccoupling.NoLoad{}
		var gen dccoupling.Generation = dccoupling.NoGeneration{}
		if dc.LoadFile != "" {
			vals, err := b.couplingValues(dc.LoadFile)
			if err != nil {
				return nil, err
			}
			load = dccoupling.NewProfileLoad(profile.NewCursor(dc.LoadFile, vals))
		}
		if dc.GenerationFile != "" {
			vals, err := b.couplingValues(dc.GenerationFile)
			if err != nil {
				return nil, err
			}
			gen = dccoupling.NewProfileGeneration(profile.NewCursor(dc.GenerationFile, vals))
		}
		return dccoupling.New(dccoupling.ProfileDcCouplingName, load, gen), nil

	case dccoupling.USPDcCouplingName:
		if dc.LoadFile == "" {
			return nil, simerr.Config("dc_coupling", "load_file", "required")
		}
		vals, err := b.couplingValues(dc.LoadFile)
		if err != nil {
			return nil, err
		}
		return dccoupling.USPDCCoupling(dc.LoadFile, vals), nil
	}
	return nil, dccoupling.UnknownName(dc.Type)
}
