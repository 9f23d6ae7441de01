package sim

import (
	"time"

	"storagesim/internal/state"
)

// StateWriter handles per-step storage states.
type StateWriter interface {
	WriteState(state.SystemState) error
}

// Optional: writers may support batch mode for state rows.
type batchStateWriter interface {
	WriteStates([]state.SystemState) error
}

// RunInfo describes the run a writer is about to receive.
type RunInfo struct {
	ID       string        `json:"run_id"`
	Name     string        `json:"name"`
	System   string        `json:"system"`
	Storages []string      `json:"storages"`
	Start    time.Time     `json:"start"`
	Timestep time.Duration `json:"timestep"`
	Steps    int           `json:"steps"`
}

// RunObserver is implemented by writers that want run metadata before the
// first state arrives.
type RunObserver interface {
	BeginRun(RunInfo)
}

// writeStates uses the batch path when w supports it.
func writeStates(w StateWriter, rows []state.SystemState) error {
	if bw, ok := w.(batchStateWriter); ok {
		return bw.WriteStates(rows)
	}
	for _, r := range rows {
		if err := w.WriteState(r); err != nil {
			return err
		}
	}
	return nil
}
