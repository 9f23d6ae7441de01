package sim

import (
	"context"
	"errors"
	"time"

	"storagesim/internal/logging"
	"storagesim/internal/state"
)

// Run steps the whole horizon and closes the system. With a pace set, one
// step is taken per tick. When ctx is cancelled no further step is taken and
// ctx.Err() is returned after the system is closed.
func (s *Simulator) Run(ctx context.Context) (err error) {
	log := logging.FromContext(ctx).With("run", s.plan.Name, "run_id", s.runID)
	log.Info("starting simulator", "steps", s.plan.Steps, "timestep", s.plan.Timestep, "pace", s.plan.Pace)
	if ro, ok := s.writer.(RunObserver); ok {
		ro.BeginRun(s.Info())
	}
	defer func() {
		if cerr := s.plan.System.Close(); cerr != nil {
			log.Error("close system failed", "err", cerr)
			err = errors.Join(err, cerr)
		}
		s.finish(err)
	}()

	var tick <-chan time.Time
	if s.plan.Pace > 0 {
		ticker := time.NewTicker(s.plan.Pace)
		defer ticker.Stop()
		tick = ticker.C
	}

	total := s.plan.System.Total()
	for step := 0; step < s.plan.Steps; step++ {
		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				log.Info("stopping simulator", "step", step)
				return ctx.Err()
			}
		} else if ctx.Err() != nil {
			log.Info("stopping simulator", "step", step)
			return ctx.Err()
		}
		if total, err = s.step(ctx, step, total); err != nil {
			log.Error("simulation aborted", "step", step, "err", err)
			return err
		}
	}
	log.Info("simulation finished", "degradation", s.plan.System.Degradation())
	return nil
}

// step requests power for one step, advances the system and writes the states.
func (s *Simulator) step(ctx context.Context, step int, total state.SystemState) (state.SystemState, error) {
	log := logging.FromContext(ctx)
	t := s.plan.Start.Add(time.Duration(step) * s.plan.Timestep)
	power, err := s.plan.Power.Power(step, total)
	if err != nil {
		s.metrics.StepFailed()
		return total, err
	}
	began := time.Now()
	res, err := s.plan.System.Step(ctx, t, power)
	if err != nil {
		s.metrics.StepFailed()
		return total, err
	}
	s.metrics.ObserveStep(time.Since(began), res.Total, res.States)
	s.record(res)

	if s.writer != nil {
		rows := make([]state.SystemState, 0, len(res.States)+len(res.Systems)+1)
		rows = append(rows, res.States...)
		// a single AC system total would repeat the plant total
		if len(res.Systems) > 1 {
			rows = append(rows, res.Systems...)
		}
		rows = append(rows, res.Total)
		if err := writeStates(s.writer, rows); err != nil {
			log.Error("state write failed", "step", step, "err", err)
		}
	}
	return res.Total, nil
}
