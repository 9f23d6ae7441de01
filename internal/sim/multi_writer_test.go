package sim

import (
	"errors"
	"testing"

	"storagesim/internal/degradation"
	"storagesim/internal/state"
)

type recordingWriter struct {
	rows    []state.SystemState
	batches int
	runs    []RunInfo
	deg     map[string][]degradation.Entry
	admin   *bool
	degErr  error
}

func (r *recordingWriter) WriteState(s state.SystemState) error {
	r.rows = append(r.rows, s)
	return nil
}

func (r *recordingWriter) WriteStates(rows []state.SystemState) error {
	r.batches++
	r.rows = append(r.rows, rows...)
	return nil
}

func (r *recordingWriter) BeginRun(info RunInfo) { r.runs = append(r.runs, info) }

func (r *recordingWriter) WriteDegradation(storage string, entries []degradation.Entry) error {
	if r.deg == nil {
		r.deg = make(map[string][]degradation.Entry)
	}
	r.deg[storage] = entries
	return r.degErr
}

func (r *recordingWriter) SetAdminStatus(active bool) { r.admin = &active }

func TestMultiWriterFanOut(t *testing.T) {
	a := &recordingWriter{}
	b := &collectWriter{}
	mw := NewMultiWriter(a, nil, b)
	if len(mw.writers) != 2 {
		t.Fatalf("expected nil writer to be skipped, got %d writers", len(mw.writers))
	}

	rows := []state.SystemState{{StorageID: "x"}, {StorageID: "total"}}
	if err := mw.WriteStates(rows); err != nil {
		t.Fatalf("WriteStates: %v", err)
	}
	if a.batches != 1 || len(a.rows) != 2 {
		t.Fatalf("expected batch path on writer a: %+v", a)
	}
	if len(b.rows) != 2 {
		t.Fatalf("expected 2 rows on writer b, got %d", len(b.rows))
	}

	mw.BeginRun(RunInfo{ID: "r1"})
	if len(a.runs) != 1 || a.runs[0].ID != "r1" {
		t.Fatalf("BeginRun not forwarded: %+v", a.runs)
	}
	mw.SetAdminStatus(true)
	if a.admin == nil || !*a.admin {
		t.Fatalf("admin status not forwarded")
	}
	if err := mw.WriteDegradation("x", []degradation.Entry{{Time: 1}}); err != nil {
		t.Fatalf("WriteDegradation: %v", err)
	}
	if len(a.deg["x"]) != 1 {
		t.Fatalf("degradation not forwarded: %+v", a.deg)
	}
}

func TestMultiWriterJoinsDegradationErrors(t *testing.T) {
	errA := errors.New("a failed")
	a := &recordingWriter{degErr: errA}
	c := &recordingWriter{}
	mw := NewMultiWriter(a, c)
	err := mw.WriteDegradation("x", nil)
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if _, ok := c.deg["x"]; !ok {
		t.Fatalf("second sink should still receive the history")
	}
}
