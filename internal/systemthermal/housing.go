// Package systemthermal models the air inside the housing of an AC storage
// system. Storages, converters and the HVAC exchange heat with that air, and
// the air exchanges heat with the ambient through the housing walls.
package systemthermal

import (
	"fmt"
	"strings"

	"storagesim/internal/simerr"
)

// Housing variant names.
const (
	NoHousingName         = "NoHousing"
	TwentyFtContainerName = "TwentyFtContainer"
)

func HousingNames() []string { return []string{NoHousingName, TwentyFtContainerName} }

// Outer surface of an ISO 20 ft container, 6.058 x 2.438 x 2.591 m.
const twentyFtArea = 73.56

// ContainerConfig parameterises a TwentyFtContainer.
type ContainerConfig struct {
	// UValue is the wall heat transfer coefficient in W/(m² K).
	UValue float64 `yaml:"u_value"`
	// Area is the wall surface in m².
	Area float64 `yaml:"area"`
	// HeatCapacity of the air and fittings in J/K.
	HeatCapacity float64 `yaml:"heat_capacity"`
	// InitialTemperature of the air in K; 0 starts at ambient.
	InitialTemperature float64 `yaml:"initial_temperature"`
}

// DefaultContainer returns an insulated steel container with racks inside.
func DefaultContainer() ContainerConfig {
	return ContainerConfig{UValue: 0.6, Area: twentyFtArea, HeatCapacity: 150000}
}

func (c ContainerConfig) Validate() error {
	if err := simerr.NonNegative("housing", "u_value", c.UValue); err != nil {
		return err
	}
	if err := simerr.Positive("housing", "area", c.Area); err != nil {
		return err
	}
	if err := simerr.Positive("housing", "heat_capacity", c.HeatCapacity); err != nil {
		return err
	}
	return simerr.NonNegative("housing", "initial_temperature", c.InitialTemperature)
}

// Housing is the enclosure of one AC system. A zero heat capacity means
// the storages stand in the open.
type Housing struct {
	Name               string
	Conductance        float64 // W/K
	HeatCapacity       float64 // J/K
	InitialTemperature float64 // K, 0 for ambient
}

// NoHousing leaves the storages exposed to the ambient.
func NoHousing() Housing { return Housing{Name: NoHousingName} }

// TwentyFtContainer builds the housing of a standard container.
func TwentyFtContainer(cfg ContainerConfig) (Housing, error) {
	if err := cfg.Validate(); err != nil {
		return Housing{}, err
	}
	return Housing{
		Name:               TwentyFtContainerName,
		Conductance:        cfg.UValue * cfg.Area,
		HeatCapacity:       cfg.HeatCapacity,
		InitialTemperature: cfg.InitialTemperature,
	}, nil
}

// Enclosed reports whether the housing holds an air volume.
func (h Housing) Enclosed() bool { return h.HeatCapacity > 0 }

func unknown(component, kind, name string, options []string) error {
	return simerr.Config(component, "type",
		fmt.Sprintf("unknown %s %q, available: %s", kind, name, strings.Join(options, ", ")))
}
