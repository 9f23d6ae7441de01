package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"storagesim/internal/simerr"
	"storagesim/internal/state"
)

func TestScenarioTransition(t *testing.T) {
	s := Scenario{
		Phases: []Phase{{
			Name:     "charge",
			Steps:    10,
			Triggers: []Trigger{{Event: SocAbove, Value: 0.9, Next: "discharge"}},
		}, {
			Name:  "discharge",
			Steps: 10,
		}},
	}

	next, ok := s.NextPhase("charge", Event{Type: SocAbove, Value: 0.95})
	if !ok || next != "discharge" {
		t.Fatalf("expected transition to discharge, got %s", next)
	}
	if _, ok := s.NextPhase("charge", Event{Type: SocAbove, Value: 0.5}); ok {
		t.Fatalf("unexpected transition below threshold")
	}
	if _, ok := s.NextPhase("discharge", Event{Type: SocAbove, Value: 1}); ok {
		t.Fatalf("discharge has no triggers")
	}
}

func TestLoadScenario(t *testing.T) {
	sc, err := Load("testdata/simple.yaml")
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	if sc.Name != "example" {
		t.Fatalf("unexpected name %s", sc.Name)
	}
	if sc.Description != "basic test scenario" {
		t.Fatalf("unexpected description %s", sc.Description)
	}
	if len(sc.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(sc.Phases))
	}
	if sc.Phases[1].RampTo == nil || *sc.Phases[1].RampTo != -1 {
		t.Fatalf("ramp_to not decoded")
	}
}

func TestLoadRejectsUnknownTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	data := "phases:\n  - name: a\n    steps: 1\n    triggers:\n      - event: soc_above\n        value: 1\n        next: nowhere\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown phase")
	}
}

func TestExpand(t *testing.T) {
	sc, err := Load("testdata/simple.yaml")
	if err != nil {
		t.Fatal(err)
	}
	got := sc.Expand(7)
	want := []float64{1, 1, 1, -0.5, -1, 1, 1}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: expected %v got %v", i, want[i], got[i])
		}
	}
}

func TestPlayerFollowsTriggers(t *testing.T) {
	sc, err := Load("testdata/simple.yaml")
	if err != nil {
		t.Fatal(err)
	}
	p := NewPlayer(sc, 1000)
	v, _ := p.Power(0, state.SystemState{SOC: 0.5})
	if v != 1000 || p.Phase() != "charge" {
		t.Fatalf("expected charge at 1000 W, got %v in %s", v, p.Phase())
	}
	v, _ = p.Power(1, state.SystemState{SOC: 0.85})
	if v != -500 || p.Phase() != "discharge" {
		t.Fatalf("expected trigger into discharge, got %v in %s", v, p.Phase())
	}
	v, _ = p.Power(2, state.SystemState{SOC: 0.8})
	if v != -1000 {
		t.Fatalf("expected ramp end -1000, got %v", v)
	}
	p.Power(3, state.SystemState{SOC: 0.7})
	if p.Phase() != "charge" {
		t.Fatalf("expected wrap to charge, got %s", p.Phase())
	}
}

func TestBuiltInArcs(t *testing.T) {
	arcs := BuiltIn()
	for _, n := range Names() {
		arc, ok := arcs[n]
		if !ok {
			t.Fatalf("arc %s not found", n)
		}
		if arc.Description == "" {
			t.Fatalf("arc %s missing description", n)
		}
		if err := arc.Validate(); err != nil {
			t.Fatalf("arc %s invalid: %v", n, err)
		}
	}
	if len(arcs) != len(Names()) {
		t.Fatalf("Names out of sync with BuiltIn")
	}
}

func TestSeriesExhausted(t *testing.T) {
	s := Series{1, 2}
	v, err := s.Power(1, state.SystemState{})
	if err != nil || v != 2 {
		t.Fatalf("expected 2, got %v (%v)", v, err)
	}
	if _, err := s.Power(2, state.SystemState{}); !errors.Is(err, simerr.ErrProfileExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
}
