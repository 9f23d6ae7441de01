package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storagesim/internal/degradation"
	"storagesim/internal/distribution"
	"storagesim/internal/logging"
	"storagesim/internal/simerr"
	"storagesim/internal/state"
)

// Plant is the grid connection point. It splits the AC request across one
// or more AC systems, each with its own converter, housing and storages.
type Plant struct {
	name        string
	distributor distribution.PowerDistributor
	systems     []*System

	mu    sync.Mutex
	phase Phase
	step  int
	last  Result
}

// NewPlant composes systems under name. The distributor sees one state per
// AC system keyed by the system name and may be nil for a single system.
// Storage ids must be unique across the plant and all systems must share
// one timestep.
func NewPlant(name string, distributor distribution.PowerDistributor, systems ...*System) (*Plant, error) {
	if name == "" {
		return nil, simerr.Config("plant", "name", "required")
	}
	if len(systems) == 0 {
		return nil, simerr.Config("plant", "ac_systems", "at least one system required")
	}
	if distributor == nil {
		if len(systems) > 1 {
			return nil, simerr.Config("plant", "distributor", "required for more than one system")
		}
		distributor = distribution.NewEqual()
	}
	names := make(map[string]bool, len(systems))
	ids := make(map[string]string)
	for _, sys := range systems {
		if sys == nil {
			return nil, simerr.Config("plant", "ac_systems", "nil system")
		}
		if names[sys.Name()] {
			return nil, simerr.Config("plant", "ac_systems", fmt.Sprintf("duplicate system name %q", sys.Name()))
		}
		names[sys.Name()] = true
		if sys.Timestep() != systems[0].Timestep() {
			return nil, simerr.Config("plant", "timestep",
				fmt.Sprintf("system %s steps %s, system %s steps %s", sys.Name(), sys.Timestep(), systems[0].Name(), systems[0].Timestep()))
		}
		for _, id := range sys.Storages() {
			if other, ok := ids[id]; ok {
				return nil, simerr.Config("plant", "storages", fmt.Sprintf("storage %q in both %s and %s", id, other, sys.Name()))
			}
			ids[id] = sys.Name()
		}
	}
	return &Plant{name: name, distributor: distributor, systems: systems, phase: Uninitialized}, nil
}

func (p *Plant) Name() string { return p.name }

// Timestep returns the step length shared by every system.
func (p *Plant) Timestep() time.Duration { return p.systems[0].Timestep() }

// Horizon returns the number of steps passed to Configure.
func (p *Plant) Horizon() int { return p.systems[0].Horizon() }

// Phase returns the lifecycle phase.
func (p *Plant) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Last returns the most recent step result.
func (p *Plant) Last() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Systems returns the AC system names in registration order.
func (p *Plant) Systems() []string {
	out := make([]string, len(p.systems))
	for i, sys := range p.systems {
		out[i] = sys.Name()
	}
	return out
}

// System returns the AC system called name.
func (p *Plant) System(name string) (*System, bool) {
	for _, sys := range p.systems {
		if sys.Name() == name {
			return sys, true
		}
	}
	return nil, false
}

// Storages returns every storage id, system by system.
func (p *Plant) Storages() []string {
	var out []string
	for _, sys := range p.systems {
		out = append(out, sys.Storages()...)
	}
	return out
}

// acState is the view of a system the plant distributor works on.
func acState(sys *System, total state.SystemState) state.SystemState {
	total.StorageID = sys.Name()
	return total
}

func (p *Plant) totals() []state.SystemState {
	out := make([]state.SystemState, len(p.systems))
	for i, sys := range p.systems {
		out[i] = acState(sys, sys.Total())
	}
	return out
}

// Total aggregates the current AC system states.
func (p *Plant) Total() state.SystemState {
	return state.Aggregate(p.name, p.totals())
}

// Configure configures every system for steps and registers their totals
// with the distributor.
func (p *Plant) Configure(steps int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.phase {
	case Closed:
		return simerr.ErrStepAfterClose
	case Running, Failed:
		return fmt.Errorf("plant %s: configure in phase %s", p.name, p.phase)
	}
	for _, sys := range p.systems {
		if err := sys.Configure(steps); err != nil {
			return err
		}
	}
	p.distributor.Set(p.totals())
	p.phase = Configured
	return nil
}

// Step splits an AC power request across the systems for one timestep
// starting at t. A failing system aborts the whole plant.
func (p *Plant) Step(ctx context.Context, t time.Time, power float64) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.phase {
	case Uninitialized:
		return Result{}, simerr.ErrNotConfigured
	case Closed:
		return Result{}, simerr.ErrStepAfterClose
	case Failed:
		return Result{}, simerr.ErrRunAborted
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	p.phase = Running

	res := Result{Step: p.step, Time: t, Requested: power, Systems: make([]state.SystemState, len(p.systems))}
	for i, sys := range p.systems {
		share := power
		if len(p.systems) > 1 {
			share = p.distributor.PowerFor(power, acState(sys, sys.Total()))
		}
		r, err := sys.Step(ctx, t, share)
		if err != nil {
			p.phase = Failed
			return Result{}, err
		}
		res.DC += r.DC
		res.Actual += r.Actual
		res.States = append(res.States, r.States...)
		res.Systems[i] = acState(sys, r.Total)
	}
	p.distributor.Set(res.Systems)

	res.Total = state.Aggregate(p.name, res.Systems)
	res.Total.RequestedPower = power
	res.Total.ActualPower = res.Actual
	res.Total.Fulfillment = state.Fulfillment(power, res.Actual)
	for i := range res.Systems {
		res.Systems[i].StorageID = "total"
	}
	p.last = res
	p.step++
	if len(p.systems) > 1 {
		logging.FromContext(ctx).Debug("plant step", "plant", p.name, "step", res.Step, "requested", power, "actual", res.Actual)
	}
	return res, nil
}

// Degradation returns the cumulative capacity loss per storage.
func (p *Plant) Degradation() map[string]float64 {
	out := make(map[string]float64)
	for _, sys := range p.systems {
		for id, loss := range sys.Degradation() {
			out[id] = loss
		}
	}
	return out
}

// History returns the degradation history of one storage.
func (p *Plant) History(storage string) ([]degradation.Entry, bool) {
	for _, sys := range p.systems {
		if h, ok := sys.History(storage); ok {
			return h, true
		}
	}
	return nil, false
}

// Close closes every system. Only the first call does work.
func (p *Plant) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase == Closed {
		return nil
	}
	var errs []error
	for _, sys := range p.systems {
		if err := sys.Close(); err != nil {
			errs = append(errs, fmt.Errorf("system %s: %w", sys.Name(), err))
		}
	}
	p.phase = Closed
	return errors.Join(errs...)
}
