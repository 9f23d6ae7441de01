// Package storage combines technology models into a steppable storage system.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"storagesim/internal/dccoupling"
	"storagesim/internal/degradation"
	"storagesim/internal/distribution"
	"storagesim/internal/logging"
	"storagesim/internal/powerelectronics"
	"storagesim/internal/simerr"
	"storagesim/internal/state"
	"storagesim/internal/systemthermal"
	"storagesim/internal/technology"
	"storagesim/internal/thermal"
)

// Phase is the lifecycle state of a System.
type Phase string

const (
	Uninitialized Phase = "uninitialized"
	Configured    Phase = "configured"
	Running       Phase = "running"
	Closed        Phase = "closed"
	Failed        Phase = "failed"
)

// Subsystem is one technology model behind its DC/DC converter and the
// coupling on its DC bus.
type Subsystem struct {
	Model    technology.Model
	Coupling *dccoupling.Coupling
	DcDc     powerelectronics.DcDcConverter
}

type subsystem struct {
	model    technology.Model
	coupling *dccoupling.Coupling
	dcdc     powerelectronics.DcDcConverter
	record   *degradation.Record
	net      float64 // coupling power applied on the next step
	prevLoss float64
}

// Result is the outcome of one system step.
type Result struct {
	Step      int
	Time      time.Time
	Requested float64 // AC
	DC        float64 // DC after conversion and coupling
	Actual    float64 // AC
	States    []state.SystemState
	Total     state.SystemState
	// Systems holds one total per AC system of a Plant.
	Systems []state.SystemState
}

// Option configures a System.
type Option func(*System)

// WithTimestep sets the step length; the default is one minute.
func WithTimestep(dt time.Duration) Option { return func(s *System) { s.dt = dt } }

// WithParallel steps up to n models concurrently once the split is known.
func WithParallel(n int) Option { return func(s *System) { s.parallel = n } }

// WithDegradationSink receives each storage's degradation history on Close.
func WithDegradationSink(sink degradation.Sink) Option {
	return func(s *System) { s.sink = sink }
}

// WithSystemThermal tracks the housing air with m. The default keeps the air
// at 25 °C.
func WithSystemThermal(m systemthermal.Model) Option {
	return func(s *System) { s.thermal = m }
}

// System is a set of storages behind one converter and distributor.
type System struct {
	name        string
	distributor distribution.PowerDistributor
	converter   powerelectronics.Converter
	subs        []*subsystem

	dt       time.Duration
	parallel int
	sink     degradation.Sink
	thermal  systemthermal.Model

	mu    sync.Mutex
	phase Phase
	step  int
	steps int
	start time.Time
	last  Result
}

// New validates the composition. Storage ids must be unique.
func New(name string, distributor distribution.PowerDistributor, converter powerelectronics.Converter, subsystems []Subsystem, opts ...Option) (*System, error) {
	if name == "" {
		return nil, simerr.Config("system", "name", "required")
	}
	if distributor == nil {
		return nil, simerr.Config("system", "distributor", "required")
	}
	if len(subsystems) == 0 {
		return nil, simerr.Config("system", "storages", "at least one storage required")
	}
	if converter == nil {
		converter = powerelectronics.NewNoLoss(0)
	}
	s := &System{name: name, distributor: distributor, converter: converter, dt: time.Minute, phase: Uninitialized}
	for _, o := range opts {
		o(s)
	}
	if s.dt <= 0 {
		return nil, simerr.Config("system", "timestep", "must be > 0")
	}
	if s.thermal == nil {
		s.thermal = systemthermal.NewNoSystemThermalModel(thermal.ConstantAmbient(thermal.DefaultAmbientTemperature))
	}
	seen := make(map[string]bool, len(subsystems))
	for _, sub := range subsystems {
		if sub.Model == nil {
			return nil, simerr.Config("system", "storages", "nil model")
		}
		id := sub.Model.ID()
		if seen[id] {
			return nil, simerr.Config("system", "storages", fmt.Sprintf("duplicate storage name %q", id))
		}
		seen[id] = true
		c := sub.Coupling
		if c == nil {
			c = dccoupling.NoDcCoupling()
		}
		dcdc := sub.DcDc
		if dcdc == nil {
			dcdc = powerelectronics.NoLossDcDc{}
		}
		s.subs = append(s.subs, &subsystem{
			model:    sub.Model,
			coupling: c,
			dcdc:     dcdc,
			record:   degradation.NewRecord(id, s.sink),
		})
	}
	return s, nil
}

func (s *System) Name() string { return s.name }

// Timestep returns the step length.
func (s *System) Timestep() time.Duration { return s.dt }

// Horizon returns the number of steps passed to Configure.
func (s *System) Horizon() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// Phase returns the lifecycle phase.
func (s *System) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Last returns the most recent step result.
func (s *System) Last() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Storages returns the storage ids in registration order.
func (s *System) Storages() []string {
	ids := make([]string, len(s.subs))
	for i, sub := range s.subs {
		ids[i] = sub.model.ID()
	}
	return ids
}

// Total aggregates the current storage states.
func (s *System) Total() state.SystemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return state.Aggregate(s.name, s.states())
}

func (s *System) states() []state.SystemState {
	out := make([]state.SystemState, len(s.subs))
	for i, sub := range s.subs {
		out[i] = sub.model.State()
	}
	return out
}

// Configure checks every DC coupling covers steps and registers the initial
// states with the distributor.
func (s *System) Configure(steps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case Closed:
		return simerr.ErrStepAfterClose
	case Running, Failed:
		return fmt.Errorf("system %s: configure in phase %s", s.name, s.phase)
	}
	for _, sub := range s.subs {
		if err := sub.coupling.Validate(steps); err != nil {
			return fmt.Errorf("system %s storage %s: %w", s.name, sub.model.ID(), err)
		}
	}
	s.steps = steps
	s.distributor.Set(s.states())
	s.phase = Configured
	return nil
}

func (s *System) fail(sub string, t time.Time, err error) error {
	s.phase = Failed
	return &simerr.StepError{System: s.name, Storage: sub, Step: s.step, Time: t, Err: err}
}

// Step applies an AC power request for one timestep starting at t.
func (s *System) Step(ctx context.Context, t time.Time, power float64) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
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
	if s.phase == Configured {
		s.start = t
		s.phase = Running
	}
	log := logging.FromContext(ctx)

	dc := s.converter.ToDC(power)
	for _, sub := range s.subs {
		dc += sub.net
	}
	shares := make([]float64, len(s.subs))
	for i, sub := range s.subs {
		shares[i] = sub.dcdc.ToStorage(s.distributor.PowerFor(dc, sub.model.State()))
	}

	states := make([]state.SystemState, len(s.subs))
	if err := s.stepModels(t, shares, states); err != nil {
		return Result{}, err
	}

	end := t.Add(s.dt)
	elapsed := end.Sub(s.start).Seconds()
	var actual, net, heat float64
	for i, sub := range s.subs {
		st := &states[i]
		st.SystemID = s.name
		st.Step = s.step
		st.Timestamp = t
		st.DcCouplingPower = sub.net
		bus := sub.dcdc.ToBus(st.ActualPower)
		actual += bus
		net += sub.net
		heat += st.Losses + math.Abs(bus-st.ActualPower)

		if inc := st.CapacityLoss - sub.prevLoss; inc > 0 {
			if err := sub.record.Add(elapsed, inc); err != nil {
				return Result{}, s.fail(sub.model.ID(), t, err)
			}
			sub.prevLoss = st.CapacityLoss
		}
		next, err := sub.coupling.NetPower(end)
		if err != nil {
			return Result{}, s.fail(sub.model.ID(), t, err)
		}
		sub.net = next
	}
	ac := s.converter.ToAC(actual - net)
	heat += math.Abs(ac - (actual - net))
	air := s.thermal.Update(t, s.dt, heat)
	for i := range states {
		states[i].HousingTemperature = air.Temperature
	}
	s.distributor.Set(states)

	res := Result{
		Step:      s.step,
		Time:      t,
		Requested: power,
		DC:        dc,
		Actual:    ac,
		States:    states,
		Total:     state.Aggregate(s.name, states),
	}
	res.Total.RequestedPower = power
	res.Total.ActualPower = res.Actual
	res.Total.Fulfillment = state.Fulfillment(power, res.Actual)
	res.Total.AuxiliaryPower = air.HVACPower
	s.last = res
	s.step++
	log.Debug("system step", "system", s.name, "step", res.Step, "requested", power, "actual", res.Actual,
		"housing", air.Temperature, "hvac", air.HVACPower)
	return res, nil
}

func (s *System) stepModels(t time.Time, shares []float64, out []state.SystemState) error {
	if s.parallel <= 1 {
		for i, sub := range s.subs {
			st, err := sub.model.Step(t, s.dt, shares[i])
			if err != nil {
				return s.fail(sub.model.ID(), t, err)
			}
			out[i] = st
		}
		return nil
	}
	var g errgroup.Group
	g.SetLimit(s.parallel)
	for i, sub := range s.subs {
		g.Go(func() error {
			st, err := sub.model.Step(t, s.dt, shares[i])
			if err != nil {
				return &simerr.StepError{System: s.name, Storage: sub.model.ID(), Step: s.step, Time: t, Err: err}
			}
			out[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.phase = Failed
		return err
	}
	return nil
}

// Degradation returns the cumulative capacity loss per storage.
func (s *System) Degradation() map[string]float64 {
	out := make(map[string]float64, len(s.subs))
	for _, sub := range s.subs {
		out[sub.model.ID()] = sub.record.Cumulative()
	}
	return out
}

// History returns the degradation history of one storage.
func (s *System) History(storage string) ([]degradation.Entry, bool) {
	for _, sub := range s.subs {
		if sub.model.ID() == storage {
			return sub.record.History(), true
		}
	}
	return nil, false
}

// Close releases every model and flushes degradation records. Only the
// first call does work; later calls return nil.
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Closed {
		return nil
	}
	var errs []error
	for _, sub := range s.subs {
		if err := sub.model.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sub.model.ID(), err))
		}
		if err := sub.record.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.phase = Closed
	return errors.Join(errs...)
}
