// Package dccoupling models loads and generators attached to a storage's
// DC bus. Net power is generation minus load, in W.
package dccoupling

import (
	"fmt"
	"strings"
	"time"

	"storagesim/internal/profile"
	"storagesim/internal/simerr"
)

// Load draws power from the bus.
type Load interface {
	LoadPower(t time.Time) (float64, error)
	Validate(steps int) error
}

// Generation feeds power into the bus.
type Generation interface {
	GenerationPower(t time.Time) (float64, error)
	Validate(steps int) error
}

// Coupling is one load and one generator on a bus.
type Coupling struct {
	name       string
	load       Load
	generation Generation
}

// New composes a coupling; nil parts default to NoLoad and NoGeneration.
func New(name string, load Load, gen Generation) *Coupling {
	if load == nil {
		load = NoLoad{}
	}
	if gen == nil {
		gen = NoGeneration{}
	}
	return &Coupling{name: name, load: load, generation: gen}
}

// Name returns the composition name.
func (c *Coupling) Name() string { return c.name }

// NetPower returns generation minus load at t.
func (c *Coupling) NetPower(t time.Time) (float64, error) {
	l, err := c.load.LoadPower(t)
	if err != nil {
		return 0, fmt.Errorf("%s load: %w", c.name, err)
	}
	g, err := c.generation.GenerationPower(t)
	if err != nil {
		return 0, fmt.Errorf("%s generation: %w", c.name, err)
	}
	return g - l, nil
}

// Validate checks that every profile covers the horizon.
func (c *Coupling) Validate(steps int) error {
	if err := c.load.Validate(steps); err != nil {
		return fmt.Errorf("%s load: %w", c.name, err)
	}
	if err := c.generation.Validate(steps); err != nil {
		return fmt.Errorf("%s generation: %w", c.name, err)
	}
	return nil
}

// NoLoad draws nothing.
type NoLoad struct{}

func (NoLoad) LoadPower(time.Time) (float64, error) { return 0, nil }
func (NoLoad) Validate(int) error                   { return nil }

// FixedLoad draws a constant power.
type FixedLoad float64

func (f FixedLoad) LoadPower(time.Time) (float64, error) { return float64(f), nil }
func (FixedLoad) Validate(int) error                     { return nil }

// NoGeneration generates nothing.
type NoGeneration struct{}

func (NoGeneration) GenerationPower(time.Time) (float64, error) { return 0, nil }
func (NoGeneration) Validate(int) error                         { return nil }

// FixedGeneration feeds a constant power.
type FixedGeneration float64

func (f FixedGeneration) GenerationPower(time.Time) (float64, error) { return float64(f), nil }
func (FixedGeneration) Validate(int) error                           { return nil }

// ProfileLoad replays a resampled series one value per query.
type ProfileLoad struct{ cur *profile.Cursor }

func NewProfileLoad(cur *profile.Cursor) *ProfileLoad { return &ProfileLoad{cur: cur} }

func (p *ProfileLoad) LoadPower(time.Time) (float64, error) { return p.cur.Next() }
func (p *ProfileLoad) Validate(steps int) error             { return p.cur.Validate(steps) }

// ProfileGeneration replays a resampled series one value per query.
type ProfileGeneration struct{ cur *profile.Cursor }

func NewProfileGeneration(cur *profile.Cursor) *ProfileGeneration {
	return &ProfileGeneration{cur: cur}
}

func (p *ProfileGeneration) GenerationPower(time.Time) (float64, error) { return p.cur.Next() }
func (p *ProfileGeneration) Validate(steps int) error                   { return p.cur.Validate(steps) }

// Named compositions.
const (
	NoDcCouplingName                 = "NoDcCoupling"
	BusChargingDcCouplingName        = "BusChargingDcCoupling"
	BusChargingProfileDcCouplingName = "BusChargingProfileDcCoupling"
	SolarDcCouplingName              = "SolarDcCoupling"
	ProfileDcCouplingName            = "ProfileDcCoupling"
	USPDcCouplingName                = "USPDCCoupling"
)

// Names lists the composition names understood by the factory.
func Names() []string {
	return []string{
		NoDcCouplingName, BusChargingDcCouplingName, BusChargingProfileDcCouplingName,
		SolarDcCouplingName, ProfileDcCouplingName, USPDcCouplingName,
	}
}

// NoDcCoupling contributes nothing.
func NoDcCoupling() *Coupling { return New(NoDcCouplingName, NoLoad{}, NoGeneration{}) }

// BusChargingDcCoupling is a constant charging load with constant generation.
func BusChargingDcCoupling(chargingPower, generationPower float64) *Coupling {
	return New(BusChargingDcCouplingName, FixedLoad(chargingPower), FixedGeneration(generationPower))
}

// BusChargingProfileDcCoupling is a normalised load profile scaled by capacity.
// values must already be resampled; they are multiplied by capacity.
func BusChargingProfileDcCoupling(capacity float64, name string, values []float64) (*Coupling, error) {
	if err := simerr.NonNegative("dc_coupling", "capacity", capacity); err != nil {
		return nil, err
	}
	scaled := make([]float64, len(values))
	for i, v := range values {
		scaled[i] = v * capacity
	}
	return New(BusChargingProfileDcCouplingName, NewProfileLoad(profile.NewCursor(name, scaled)), NoGeneration{}), nil
}

// USPDCCoupling is an uninterruptible power supply fed from the bus. values
// are its load in W, already resampled.
func USPDCCoupling(name string, values []float64) *Coupling {
	return New(USPDcCouplingName, NewProfileLoad(profile.NewCursor(name, values)), NoGeneration{})
}

// UnknownName returns the configuration error for an unknown composition.
func UnknownName(name string) error {
	return simerr.Config("dc_coupling", "type",
		fmt.Sprintf("unknown dc coupling %q, available: %s", name, strings.Join(Names(), ", ")))
}
