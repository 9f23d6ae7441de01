package sim

import (
	"errors"

	"storagesim/internal/degradation"
	"storagesim/internal/state"
)

// MultiWriter fan-outs states and degradation histories to multiple writers.
type MultiWriter struct {
	writers []StateWriter
}

// NewMultiWriter creates a new MultiWriter. nil writers are skipped.
func NewMultiWriter(ws ...StateWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// WriteState sends a state row to all writers.
func (mw *MultiWriter) WriteState(row state.SystemState) error {
	for _, w := range mw.writers {
		if err := w.WriteState(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteStates sends multiple state rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteStates(rows []state.SystemState) error {
	for _, w := range mw.writers {
		if err := writeStates(w, rows); err != nil {
			return err
		}
	}
	return nil
}

// WriteDegradation forwards to every writer that is a degradation sink.
// All sinks are tried; their errors are joined.
func (mw *MultiWriter) WriteDegradation(storage string, entries []degradation.Entry) error {
	var errs []error
	for _, w := range mw.writers {
		if s, ok := w.(degradation.Sink); ok {
			errs = append(errs, s.WriteDegradation(storage, entries))
		}
	}
	return errors.Join(errs...)
}

// BeginRun forwards run metadata to writers that observe runs.
func (mw *MultiWriter) BeginRun(info RunInfo) {
	for _, w := range mw.writers {
		if ro, ok := w.(RunObserver); ok {
			ro.BeginRun(info)
		}
	}
}

// SetAdminStatus forwards the admin UI status to writers that show it.
func (mw *MultiWriter) SetAdminStatus(listening bool) {
	for _, w := range mw.writers {
		if aw, ok := w.(AdminStatusWriter); ok {
			aw.SetAdminStatus(listening)
		}
	}
}
