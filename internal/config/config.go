// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"storagesim/internal/dccoupling"
	"storagesim/internal/powerelectronics"
	"storagesim/internal/scenario"
	"storagesim/internal/simerr"
)

// DefaultStart is used when simulation.start is empty.
const DefaultStart = "2024-01-01T00:00:00Z"

// Duration decodes Go duration strings such as "15m" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) { return time.Duration(d).String(), nil }

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Simulation defines the time grid of a run
type Simulation struct {
	Start    string   `yaml:"start"`
	Timestep Duration `yaml:"timestep"`
	Steps    int      `yaml:"steps"`
	Pace     Duration `yaml:"pace"`
	Parallel int      `yaml:"parallel"`
	RunName  string   `yaml:"run_name"`
}

// StartTime parses Start, falling back to DefaultStart.
func (s Simulation) StartTime() (time.Time, error) {
	v := s.Start
	if v == "" {
		v = DefaultStart
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, simerr.Config("simulation", "start", err.Error())
	}
	return t, nil
}

// PowerProfile selects the requested AC power series.
// Exactly one of File, Scenario or Phases is set.
type PowerProfile struct {
	File          string           `yaml:"file"`
	Scenario      string           `yaml:"scenario"`
	Phases        []scenario.Phase `yaml:"phases"`
	Scale         float64          `yaml:"scale"`
	Interpolation string           `yaml:"interpolation"`
}

// ScaleOrDefault returns Scale, or 1 when unset.
func (p PowerProfile) ScaleOrDefault() float64 {
	if p.Scale == 0 {
		return 1
	}
	return p.Scale
}

// Ambient defines the temperature outside the storages
type Ambient struct {
	Temperature float64 `yaml:"temperature"`
	File        string  `yaml:"file"`
}

// Block names a component variant and carries its parameters undecoded.
type Block struct {
	Type   string    `yaml:"type"`
	Params yaml.Node `yaml:"params"`
}

// Decode overlays the block parameters onto into. An empty block leaves it untouched.
func (b Block) Decode(into interface{}) error {
	if b.Params.Kind == 0 {
		return nil
	}
	return b.Params.Decode(into)
}

// DcCoupling defines the DC-side load and generation of one storage
type DcCoupling struct {
	Type            string                 `yaml:"type"`
	ChargingPower   float64                `yaml:"charging_power"`
	GenerationPower float64                `yaml:"generation_power"`
	Capacity        float64                `yaml:"capacity"`
	LoadFile        string                 `yaml:"load_file"`
	GenerationFile  string                 `yaml:"generation_file"`
	Solar           dccoupling.SolarConfig `yaml:"solar"`
}

// Storage defines one technology model and its components
type Storage struct {
	Name        string     `yaml:"name"`
	Technology  string     `yaml:"technology"`
	Parameters  yaml.Node  `yaml:"parameters"`
	Thermal     Block      `yaml:"thermal"`
	Pressure    Block      `yaml:"pressure"`
	Degradation Block      `yaml:"degradation"`
	DcCoupling  DcCoupling `yaml:"dc_coupling"`

	// Fuel-cell side of a hydrogen system; the plain blocks serve the electrolyzer.
	FuelCellThermal  Block `yaml:"fuel_cell_thermal"`
	FuelCellPressure Block `yaml:"fuel_cell_pressure"`

	// DcDc sits between the AC system's DC bus and this storage.
	DcDc powerelectronics.DcDcConfig `yaml:"dcdc_converter"`
}

// DecodeParameters overlays the technology parameters onto into.
func (s Storage) DecodeParameters(into interface{}) error {
	if s.Parameters.Kind == 0 {
		return nil
	}
	if err := s.Parameters.Decode(into); err != nil {
		return simerr.Config(s.Name, "parameters", err.Error())
	}
	return nil
}

// AcSystem defines one AC/DC converter with its housing and the storages on
// its DC bus
type AcSystem struct {
	Name         string                  `yaml:"name"`
	Distributor  string                  `yaml:"distributor"`
	Priority     []string                `yaml:"priority"`
	Converter    powerelectronics.Config `yaml:"converter"`
	Housing      Block                   `yaml:"housing"`
	HVAC         Block                   `yaml:"hvac"`
	ThermalModel string                  `yaml:"thermal_model"`
	Storages     []Storage               `yaml:"storages"`
}

// System defines the storage plant. Either it lists storages directly and
// is a single AC system of the same name, or it lists ac_systems and
// Distributor and Priority split power between them.
type System struct {
	Name         string                  `yaml:"name"`
	Distributor  string                  `yaml:"distributor"`
	Priority     []string                `yaml:"priority"`
	Converter    powerelectronics.Config `yaml:"converter"`
	Housing      Block                   `yaml:"housing"`
	HVAC         Block                   `yaml:"hvac"`
	ThermalModel string                  `yaml:"thermal_model"`
	Storages     []Storage               `yaml:"storages"`
	AcSystems    []AcSystem              `yaml:"ac_systems"`
}

// ACSystems returns the AC systems of the plant.
func (s System) ACSystems() []AcSystem {
	if len(s.AcSystems) > 0 {
		return s.AcSystems
	}
	return []AcSystem{{
		Name:         s.Name,
		Distributor:  s.Distributor,
		Priority:     s.Priority,
		Converter:    s.Converter,
		Housing:      s.Housing,
		HVAC:         s.HVAC,
		ThermalModel: s.ThermalModel,
		Storages:     s.Storages,
	}}
}

func (s System) validate() error {
	if s.Name == "" {
		return simerr.Config("system", "name", "required")
	}
	if len(s.AcSystems) == 0 {
		return s.ACSystems()[0].validate("system", map[string]bool{})
	}
	if len(s.Storages) > 0 {
		return simerr.Config("system", "storages", "storages and ac_systems are exclusive")
	}
	if s.Converter.Type != "" || s.Housing.Type != "" || s.HVAC.Type != "" || s.ThermalModel != "" {
		return simerr.Config("system", "ac_systems", "converter, housing, hvac and thermal_model belong to each ac system")
	}
	names := make(map[string]bool, len(s.AcSystems))
	storages := make(map[string]bool)
	for i, ac := range s.AcSystems {
		field := fmt.Sprintf("ac_systems[%d]", i)
		if ac.Name == "" {
			return simerr.Config("system", field+".name", "required")
		}
		if names[ac.Name] {
			return simerr.Config("system", field+".name", fmt.Sprintf("duplicate ac system %q", ac.Name))
		}
		names[ac.Name] = true
		if err := ac.validate(ac.Name, storages); err != nil {
			return err
		}
	}
	for _, p := range s.Priority {
		if !names[p] {
			return simerr.Config("system", "priority", fmt.Sprintf("unknown ac system %q", p))
		}
	}
	return nil
}

// validate checks the storages of one AC system; seen collects storage names
// across the plant.
func (a AcSystem) validate(component string, seen map[string]bool) error {
	if len(a.Storages) == 0 {
		return simerr.Config(component, "storages", "at least one storage required")
	}
	own := make(map[string]bool, len(a.Storages))
	for i, s := range a.Storages {
		if s.Name == "" {
			return simerr.Config(component, fmt.Sprintf("storages[%d].name", i), "required")
		}
		if seen[s.Name] {
			return simerr.Config(component, fmt.Sprintf("storages[%d].name", i), fmt.Sprintf("duplicate storage %q", s.Name))
		}
		seen[s.Name] = true
		own[s.Name] = true
	}
	for _, p := range a.Priority {
		if !own[p] {
			return simerr.Config(component, "priority", fmt.Sprintf("unknown storage %q", p))
		}
	}
	return nil
}

// SimulationConfig is the root configuration
type SimulationConfig struct {
	Simulation   Simulation   `yaml:"simulation"`
	PowerProfile PowerProfile `yaml:"power_profile"`
	Ambient      Ambient      `yaml:"ambient"`
	System       System       `yaml:"system"`
}

// Validate checks the cross-field rules the schema cannot express.
func (c *SimulationConfig) Validate() error {
	if c.Simulation.Timestep <= 0 {
		return simerr.Config("simulation", "timestep", "must be > 0")
	}
	if c.Simulation.Steps <= 0 {
		return simerr.Config("simulation", "steps", "must be > 0")
	}
	if c.Simulation.Parallel < 0 {
		return simerr.Config("simulation", "parallel", "must be >= 0")
	}
	if _, err := c.Simulation.StartTime(); err != nil {
		return err
	}
	set := 0
	for _, ok := range []bool{c.PowerProfile.File != "", c.PowerProfile.Scenario != "", len(c.PowerProfile.Phases) > 0} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return simerr.Config("power_profile", "file", "exactly one of file, scenario or phases required")
	}
	return c.System.validate()
}

// Parse decodes and validates YAML configuration bytes against schema.
// An empty schema selects the embedded one.
func Parse(name string, data, schema []byte) (*SimulationConfig, error) {
	if err := ValidateWithCue(name, data, schema); err != nil {
		return nil, err
	}
	var cfg SimulationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load loads YAML config and validates it against a CUE schema.
// An empty cueSchemaPath selects the embedded schema.
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read YAML config: %w", err)
	}
	var schema []byte
	if cueSchemaPath != "" {
		schema, err = os.ReadFile(cueSchemaPath)
		if err != nil {
			return nil, fmt.Errorf("cannot read CUE schema: %w", err)
		}
	}
	return Parse(configPath, data, schema)
}
