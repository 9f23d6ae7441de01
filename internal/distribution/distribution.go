// Package distribution splits a system power request across storages.
package distribution

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"storagesim/internal/simerr"
	"storagesim/internal/state"
)

// PowerDistributor returns the share of a system request for one storage.
// Before Set has been called every distributor returns 0.
type PowerDistributor interface {
	Set(states []state.SystemState)
	PowerFor(power float64, st state.SystemState) float64
}

// Names accepted by New.
const (
	EqualName    = "EqualPowerDistributor"
	SocName      = "SocBasedPowerDistributor"
	CapacityName = "CapacityPowerDistributor"
	PriorityName = "PriorityPowerDistributor"
)

// Names lists the registered distributor names.
func Names() []string {
	n := []string{EqualName, SocName, CapacityName, PriorityName}
	sort.Strings(n)
	return n
}

// New builds a distributor by name. order is only used by the priority
// distributor; storages missing from it are served after the listed ones.
func New(name string, order []string) (PowerDistributor, error) {
	switch name {
	case "", EqualName:
		return NewEqual(), nil
	case SocName:
		return NewSocBased(), nil
	case CapacityName:
		return NewCapacityProportional(), nil
	case PriorityName:
		return NewPriority(order), nil
	}
	return nil, simerr.Config("distributor", "name",
		fmt.Sprintf("unknown distributor %q, available: %s", name, strings.Join(Names(), ", ")))
}

// registry holds the last registered states keyed by storage id.
type registry struct {
	mu     sync.RWMutex
	set    bool
	order  []string
	states map[string]state.SystemState
}

func (r *registry) Set(states []state.SystemState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set = true
	r.order = r.order[:0]
	r.states = make(map[string]state.SystemState, len(states))
	for _, s := range states {
		r.order = append(r.order, s.StorageID)
		r.states[s.StorageID] = s
	}
}

// Configured reports whether Set has run.
func (r *registry) Configured() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set
}

// share returns power * w(st) / sum(w) with an equal split fallback.
func (r *registry) share(power float64, st state.SystemState, w func(state.SystemState) float64) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.set || len(r.states) == 0 {
		return 0
	}
	var total float64
	for _, s := range r.states {
		total += math.Max(w(s), 0)
	}
	if total <= 0 {
		return power / float64(len(r.states))
	}
	return power * math.Max(w(st), 0) / total
}

// Equal gives each registered storage power/n.
type Equal struct{ registry }

func NewEqual() *Equal { return &Equal{} }

func (d *Equal) PowerFor(power float64, _ state.SystemState) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.set || len(d.states) == 0 {
		return 0
	}
	return power / float64(len(d.states))
}

// SocBased charges the emptiest and discharges the fullest storages first,
// proportional to free or stored energy.
type SocBased struct{ registry }

func NewSocBased() *SocBased { return &SocBased{} }

func (d *SocBased) PowerFor(power float64, st state.SystemState) float64 {
	// use the registered view of st so weights stay consistent
	d.mu.RLock()
	if reg, ok := d.states[st.StorageID]; ok {
		st = reg
	}
	d.mu.RUnlock()
	if power >= 0 {
		return d.share(power, st, func(s state.SystemState) float64 { return (1 - s.SOC) * s.Capacity })
	}
	return d.share(power, st, func(s state.SystemState) float64 { return s.SOC * s.Capacity })
}

// CapacityProportional weights shares by capacity.
type CapacityProportional struct{ registry }

func NewCapacityProportional() *CapacityProportional { return &CapacityProportional{} }

func (d *CapacityProportional) PowerFor(power float64, st state.SystemState) float64 {
	d.mu.RLock()
	if reg, ok := d.states[st.StorageID]; ok {
		st = reg
	}
	d.mu.RUnlock()
	return d.share(power, st, func(s state.SystemState) float64 { return s.Capacity })
}

// Priority fills storages in a fixed order, each up to its reported limit.
// The last storage in the order takes whatever remains.
type Priority struct {
	registry
	priority []string
}

func NewPriority(order []string) *Priority {
	return &Priority{priority: append([]string(nil), order...)}
}

func (d *Priority) sequence() []string {
	seen := make(map[string]bool, len(d.order))
	seq := make([]string, 0, len(d.order))
	for _, id := range d.priority {
		if _, ok := d.states[id]; ok && !seen[id] {
			seq = append(seq, id)
			seen[id] = true
		}
	}
	for _, id := range d.order {
		if !seen[id] {
			seq = append(seq, id)
			seen[id] = true
		}
	}
	return seq
}

func (d *Priority) PowerFor(power float64, st state.SystemState) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.set || len(d.states) == 0 {
		return 0
	}
	seq := d.sequence()
	rest := math.Abs(power)
	sign := 1.0
	if power < 0 {
		sign = -1
	}
	for i, id := range seq {
		s := d.states[id]
		limit := s.MaxChargePower
		if power < 0 {
			limit = s.MaxDischargePower
		}
		take := math.Min(rest, math.Max(limit, 0))
		if i == len(seq)-1 {
			take = rest
		}
		if id == st.StorageID {
			return sign * take
		}
		rest -= take
	}
	return 0
}
