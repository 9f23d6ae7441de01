package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"storagesim/internal/simerr"
	"storagesim/internal/state"
)

// Scenario defines a requested power programme with ordered phases.
// Phase powers are normalised and scaled by the caller.
type Scenario struct {
	Name        string  `yaml:"name,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Phases      []Phase `yaml:"phases"`
}

// Phase requests a constant or linearly ramped power for a number of steps.
type Phase struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Steps       int       `yaml:"steps"`
	Power       float64   `yaml:"power"`
	RampTo      *float64  `yaml:"ramp_to,omitempty"`
	Triggers    []Trigger `yaml:"triggers,omitempty"`
}

// Trigger moves the scenario to another phase based on the system state.
type Trigger struct {
	Event string  `yaml:"event"`
	Value float64 `yaml:"value"`
	Next  string  `yaml:"next"`
}

// Trigger events.
const (
	SocAbove = "soc_above"
	SocBelow = "soc_below"
)

// Event represents a runtime observation that may advance the scenario.
type Event struct {
	Type  string
	Value float64
}

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks phase lengths and trigger targets.
func (s *Scenario) Validate() error {
	if len(s.Phases) == 0 {
		return simerr.Config("scenario", "phases", "at least one phase required")
	}
	names := make(map[string]bool, len(s.Phases))
	for _, p := range s.Phases {
		names[p.Name] = true
	}
	for i, p := range s.Phases {
		if p.Steps <= 0 {
			return simerr.Config("scenario", fmt.Sprintf("phases[%d].steps", i), "must be > 0")
		}
		for _, tr := range p.Triggers {
			if tr.Event != SocAbove && tr.Event != SocBelow {
				return simerr.Config("scenario", fmt.Sprintf("phases[%d].triggers", i), fmt.Sprintf("unknown event %q", tr.Event))
			}
			if !names[tr.Next] {
				return simerr.Config("scenario", fmt.Sprintf("phases[%d].triggers", i), fmt.Sprintf("unknown phase %q", tr.Next))
			}
		}
	}
	return nil
}

// NextPhase returns the name of the next phase given the current phase and event.
// If no trigger matches, ok will be false.
func (s *Scenario) NextPhase(current string, ev Event) (next string, ok bool) {
	for _, p := range s.Phases {
		if p.Name != current {
			continue
		}
		for _, tr := range p.Triggers {
			if tr.Event != ev.Type {
				continue
			}
			if (tr.Event == SocAbove && ev.Value >= tr.Value) || (tr.Event == SocBelow && ev.Value <= tr.Value) {
				return tr.Next, true
			}
		}
	}
	return "", false
}

// at returns the phase power k steps into p.
func (p Phase) at(k int) float64 {
	if p.RampTo == nil || p.Steps <= 1 {
		return p.Power
	}
	return p.Power + (*p.RampTo-p.Power)*float64(k)/float64(p.Steps-1)
}

// Expand lays the phases out open loop over n steps, repeating them from the
// start when they are shorter than n. Triggers are ignored.
func (s *Scenario) Expand(n int) []float64 {
	out := make([]float64, 0, n)
	if len(s.Phases) == 0 {
		return make([]float64, n)
	}
	for len(out) < n {
		for _, p := range s.Phases {
			for k := 0; k < p.Steps && len(out) < n; k++ {
				out = append(out, p.at(k))
			}
		}
	}
	return out
}

// Player runs a scenario closed loop, checking triggers against the
// aggregated system state before every step.
type Player struct {
	s     *Scenario
	scale float64
	phase int
	k     int
}

// NewPlayer starts at the first phase; powers are multiplied by scale.
func NewPlayer(s *Scenario, scale float64) *Player {
	return &Player{s: s, scale: scale}
}

// Phase returns the name of the active phase.
func (p *Player) Phase() string { return p.s.Phases[p.phase].Name }

func (p *Player) index(name string) int {
	for i, ph := range p.s.Phases {
		if ph.Name == name {
			return i
		}
	}
	return p.phase
}

// Power returns the request for the next step.
func (p *Player) Power(_ int, total state.SystemState) (float64, error) {
	for _, ev := range []Event{{Type: SocAbove, Value: total.SOC}, {Type: SocBelow, Value: total.SOC}} {
		if next, ok := p.s.NextPhase(p.Phase(), ev); ok {
			p.phase, p.k = p.index(next), 0
			break
		}
	}
	if p.k >= p.s.Phases[p.phase].Steps {
		p.phase, p.k = (p.phase+1)%len(p.s.Phases), 0
	}
	v := p.s.Phases[p.phase].at(p.k) * p.scale
	p.k++
	return v, nil
}

// Series is an open-loop power request, one value per step.
type Series []float64

// Power returns the value for step.
func (s Series) Power(step int, _ state.SystemState) (float64, error) {
	if step < 0 || step >= len(s) {
		return 0, fmt.Errorf("power series step %d of %d: %w", step, len(s), simerr.ErrProfileExhausted)
	}
	return s[step], nil
}
