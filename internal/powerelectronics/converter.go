// Package powerelectronics models the AC/DC converter between the grid
// connection and the storage DC bus.
package powerelectronics

import (
	"fmt"
	"math"
	"strings"

	"storagesim/internal/simerr"
)

// Converter maps AC requests onto the DC bus and back. Positive power charges.
type Converter interface {
	Name() string
	// MaxPower is the AC rating in W; 0 means unlimited.
	MaxPower() float64
	// ToDC returns the DC power reaching the bus for an AC request.
	ToDC(ac float64) float64
	// ToAC returns the AC power corresponding to the DC power achieved.
	ToAC(dc float64) float64
}

// Names accepted by New.
const (
	NoLossName        = "NoLossAcDcConverter"
	FixEfficiencyName = "FixEfficiencyAcDcConverter"
	NottonName        = "NottonAcDcConverter"
)

func Names() []string { return []string{NoLossName, FixEfficiencyName, NottonName} }

// Config selects and parameterises a converter.
type Config struct {
	Type       string  `yaml:"type"`
	MaxPower   float64 `yaml:"max_power"`
	Efficiency float64 `yaml:"efficiency"`
	// Number > 1 stacks identical converters switched on as load grows.
	Number int `yaml:"number"`
}

// New builds a converter from cfg. An empty type is lossless.
func New(cfg Config) (Converter, error) {
	if err := simerr.NonNegative("converter", "max_power", cfg.MaxPower); err != nil {
		return nil, err
	}
	var conv Converter
	switch cfg.Type {
	case "", NoLossName:
		conv = NoLoss{max: cfg.MaxPower}
	case FixEfficiencyName:
		eff := cfg.Efficiency
		if eff == 0 {
			eff = DefaultEfficiency
		}
		c, err := NewFixEfficiency(cfg.MaxPower, eff)
		if err != nil {
			return nil, err
		}
		conv = c
	case NottonName:
		if cfg.MaxPower <= 0 {
			return nil, simerr.Config("converter", "max_power", "required for "+NottonName)
		}
		conv = NewNotton(cfg.MaxPower)
	default:
		return nil, simerr.Config("converter", "type",
			fmt.Sprintf("unknown converter %q, available: %s", cfg.Type, strings.Join(Names(), ", ")))
	}
	if cfg.Number > 1 {
		return NewStacked(cfg.Number, conv, func(max float64) Converter { return rebuild(cfg, max) })
	}
	return conv, nil
}

func rebuild(cfg Config, max float64) Converter {
	cfg.MaxPower, cfg.Number = max, 0
	c, _ := New(cfg)
	return c
}

func limit(p, max float64) float64 {
	if max <= 0 {
		return p
	}
	return math.Max(-max, math.Min(max, p))
}

// NoLoss passes power unchanged up to its rating.
type NoLoss struct{ max float64 }

func NewNoLoss(maxPower float64) NoLoss { return NoLoss{max: maxPower} }

func (NoLoss) Name() string              { return NoLossName }
func (c NoLoss) MaxPower() float64       { return c.max }
func (c NoLoss) ToDC(ac float64) float64 { return limit(ac, c.max) }
func (c NoLoss) ToAC(dc float64) float64 { return dc }

// DefaultEfficiency is used by FixEfficiency when none is configured.
const DefaultEfficiency = 0.95

// FixEfficiency loses a constant fraction in both directions.
type FixEfficiency struct {
	max, eff float64
}

func NewFixEfficiency(maxPower, efficiency float64) (*FixEfficiency, error) {
	if efficiency <= 0 || efficiency > 1 {
		return nil, simerr.Config("converter", "efficiency", fmt.Sprintf("must be within (0, 1], got %g", efficiency))
	}
	return &FixEfficiency{max: maxPower, eff: efficiency}, nil
}

func (*FixEfficiency) Name() string        { return FixEfficiencyName }
func (c *FixEfficiency) MaxPower() float64 { return c.max }

func (c *FixEfficiency) ToDC(ac float64) float64 {
	ac = limit(ac, c.max)
	if ac >= 0 {
		return ac * c.eff
	}
	return ac / c.eff
}

func (c *FixEfficiency) ToAC(dc float64) float64 {
	if dc >= 0 {
		return dc / c.eff
	}
	return dc * c.eff
}

// Notton loss coefficients for a type 2 inverter, normalised to rated power.
const (
	nottonP0 = 0.0072
	nottonK  = 0.0345
)

// Notton has a load dependent efficiency p/(p + p0 + k p²) with p the
// normalised power.
type Notton struct{ max float64 }

func NewNotton(maxPower float64) *Notton { return &Notton{max: maxPower} }

func (*Notton) Name() string        { return NottonName }
func (c *Notton) MaxPower() float64 { return c.max }

// Efficiency at AC power p.
func (c *Notton) Efficiency(p float64) float64 {
	x := math.Abs(p) / c.max
	if x == 0 {
		return 0
	}
	return x / (x + nottonP0 + nottonK*x*x)
}

func (c *Notton) ToDC(ac float64) float64 {
	ac = limit(ac, c.max)
	eff := c.Efficiency(ac)
	if ac >= 0 {
		return ac * eff
	}
	if eff == 0 {
		return 0
	}
	return ac / eff
}

// ToAC inverts ToDC by bisection on the monotone branch.
func (c *Notton) ToAC(dc float64) float64 {
	if dc == 0 {
		return 0
	}
	lo, hi := 0.0, c.max*2
	target := math.Abs(dc)
	sign := 1.0
	if dc < 0 {
		sign = -1
	}
	for i := 0; i < 60; i++ {
		mid := (lo + hi) / 2
		if math.Abs(c.ToDC(sign*mid)) < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return sign * math.Min((lo+hi)/2, c.max)
}

// Stacked runs n identical converters and switches on only as many as the
// request needs, keeping each near its efficient operating point.
type Stacked struct {
	n    int
	unit Converter
	max  float64
}

// NewStacked builds n units of total rating unit.MaxPower(); build returns a
// single unit with the given rating.
func NewStacked(n int, total Converter, build func(max float64) Converter) (*Stacked, error) {
	if total.MaxPower() <= 0 {
		return nil, simerr.Config("converter", "max_power", "required for stacked converters")
	}
	unit := build(total.MaxPower() / float64(n))
	if unit == nil {
		return nil, simerr.Config("converter", "type", "can not build stacked unit")
	}
	return &Stacked{n: n, unit: unit, max: total.MaxPower()}, nil
}

func (s *Stacked) Name() string      { return fmt.Sprintf("%dx%s", s.n, s.unit.Name()) }
func (s *Stacked) MaxPower() float64 { return s.max }

func (s *Stacked) active(p float64) int {
	k := int(math.Ceil(math.Abs(p) / s.unit.MaxPower()))
	return max(1, min(k, s.n))
}

func (s *Stacked) ToDC(ac float64) float64 {
	ac = limit(ac, s.max)
	k := s.active(ac)
	return float64(k) * s.unit.ToDC(ac/float64(k))
}

func (s *Stacked) ToAC(dc float64) float64 {
	k := s.active(dc)
	return float64(k) * s.unit.ToAC(dc/float64(k))
}
