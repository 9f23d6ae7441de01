package powerelectronics

import (
	"fmt"
	"strings"

	"storagesim/internal/simerr"
)

// DcDcConverter sits between the DC bus and one storage. Positive power
// charges the storage.
type DcDcConverter interface {
	Name() string
	// ToStorage returns the power reaching the storage for a bus side share.
	ToStorage(bus float64) float64
	// ToBus returns the bus side power for the power the storage took.
	ToBus(storage float64) float64
}

// DC/DC converter names accepted by NewDcDc.
const (
	NoLossDcDcName        = "NoLossDcDcConverter"
	FixEfficiencyDcDcName = "FixEfficiencyDcDcConverter"
)

func DcDcNames() []string { return []string{NoLossDcDcName, FixEfficiencyDcDcName} }

// DcDcConfig selects a DC/DC converter.
type DcDcConfig struct {
	Type       string  `yaml:"type"`
	Efficiency float64 `yaml:"efficiency"`
}

// NewDcDc builds a DC/DC converter. An empty type is lossless.
func NewDcDc(cfg DcDcConfig) (DcDcConverter, error) {
	switch cfg.Type {
	case "", NoLossDcDcName:
		return NoLossDcDc{}, nil
	case FixEfficiencyDcDcName:
		eff := cfg.Efficiency
		if eff == 0 {
			eff = DefaultEfficiency
		}
		return NewFixEfficiencyDcDc(eff)
	}
	return nil, simerr.Config("dcdc_converter", "type",
		fmt.Sprintf("unknown dcdc converter %q, available: %s", cfg.Type, strings.Join(DcDcNames(), ", ")))
}

// NoLossDcDc passes power unchanged.
type NoLossDcDc struct{}

func (NoLossDcDc) Name() string                  { return NoLossDcDcName }
func (NoLossDcDc) ToStorage(bus float64) float64 { return bus }
func (NoLossDcDc) ToBus(p float64) float64       { return p }

// FixEfficiencyDcDc loses a constant fraction in both directions.
type FixEfficiencyDcDc struct{ eff float64 }

func NewFixEfficiencyDcDc(efficiency float64) (*FixEfficiencyDcDc, error) {
	if efficiency <= 0 || efficiency > 1 {
		return nil, simerr.Config("dcdc_converter", "efficiency", fmt.Sprintf("must be within (0, 1], got %g", efficiency))
	}
	return &FixEfficiencyDcDc{eff: efficiency}, nil
}

func (*FixEfficiencyDcDc) Name() string { return FixEfficiencyDcDcName }

func (c *FixEfficiencyDcDc) ToStorage(bus float64) float64 {
	if bus >= 0 {
		return bus * c.eff
	}
	return bus / c.eff
}

func (c *FixEfficiencyDcDc) ToBus(p float64) float64 {
	if p >= 0 {
		return p / c.eff
	}
	return p * c.eff
}
