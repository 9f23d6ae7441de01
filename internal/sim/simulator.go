// Simulator driving a storage system over the requested power programme
package sim

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"storagesim/internal/factory"
	"storagesim/internal/metrics"
	"storagesim/internal/state"
	"storagesim/internal/storage"
)

// Status is a point-in-time view of a run.
type Status struct {
	RunID    string            `json:"run_id"`
	Run      string            `json:"run"`
	System   string            `json:"system"`
	Phase    string            `json:"phase"`
	Step     int               `json:"step"`
	Steps    int               `json:"steps"`
	SimTime  time.Time         `json:"sim_time"`
	Total    state.SystemState `json:"total"`
	Error    string            `json:"error,omitempty"`
	Finished bool              `json:"finished"`
}

// Simulator steps one storage system through its horizon and hands every
// state to the configured writer.
type Simulator struct {
	plan    *factory.Plan
	writer  StateWriter
	metrics *metrics.Recorder
	runID   string

	mu     sync.RWMutex
	status Status
	states []state.SystemState
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithMetrics records every step on rec.
func WithMetrics(rec *metrics.Recorder) Option { return func(s *Simulator) { s.metrics = rec } }

// NewSimulator prepares a run of plan. writer may be nil.
func NewSimulator(plan *factory.Plan, writer StateWriter, opts ...Option) *Simulator {
	s := &Simulator{plan: plan, writer: writer, runID: uuid.New().String()}
	for _, o := range opts {
		o(s)
	}
	s.status = Status{
		RunID:  s.runID,
		Run:    plan.Name,
		System: plan.System.Name(),
		Phase:  string(plan.System.Phase()),
		Steps:  plan.Steps,
	}
	return s
}

// Info returns the run metadata handed to RunObserver writers.
func (s *Simulator) Info() RunInfo {
	return RunInfo{
		ID:       s.runID,
		Name:     s.plan.Name,
		System:   s.plan.System.Name(),
		Storages: s.plan.System.Storages(),
		Start:    s.plan.Start,
		Timestep: s.plan.Timestep,
		Steps:    s.plan.Steps,
	}
}

// System returns the simulated storage plant.
func (s *Simulator) System() *storage.Plant { return s.plan.System }

// Status returns a snapshot of the run progress.
func (s *Simulator) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// States returns a copy of the storage states of the last step.
func (s *Simulator) States() []state.SystemState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]state.SystemState(nil), s.states...)
}

func (s *Simulator) record(res storage.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states[:0], res.States...)
	s.status.Step = res.Step + 1
	s.status.SimTime = res.Time
	s.status.Total = res.Total
	s.status.Phase = string(s.plan.System.Phase())
}

func (s *Simulator) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Finished = true
	s.status.Phase = string(s.plan.System.Phase())
	if err != nil {
		s.status.Error = err.Error()
	}
}
