package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"storagesim/internal/state"
)

type collectWriter struct{ rows []state.SystemState }

func (c *collectWriter) WriteState(r state.SystemState) error {
	c.rows = append(c.rows, r)
	return nil
}

// batchCollector records the batches handed to WriteStates.
type batchCollector struct{ batches [][]state.SystemState }

func (b *batchCollector) WriteState(r state.SystemState) error {
	b.batches = append(b.batches, []state.SystemState{r})
	return nil
}

func (b *batchCollector) WriteStates(rows []state.SystemState) error {
	b.batches = append(b.batches, rows)
	return nil
}

func encodeRows(t *testing.T, rows []state.SystemState) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	return &buf
}

var replayRows = []state.SystemState{
	{SystemID: "west", StorageID: "rack-1", Step: 0, Timestamp: time.Unix(0, 0)},
	{SystemID: "east", StorageID: "rack-2", Step: 0, Timestamp: time.Unix(0, 0)},
	{SystemID: "site", StorageID: "total", Step: 0, Timestamp: time.Unix(0, 0)},
	{SystemID: "west", StorageID: "rack-1", Step: 1, Timestamp: time.Unix(900, 0)},
	{SystemID: "east", StorageID: "rack-2", Step: 1, Timestamp: time.Unix(900, 0)},
	{SystemID: "site", StorageID: "total", Step: 1, Timestamp: time.Unix(900, 0)},
}

func TestReplayLog(t *testing.T) {
	cw := &collectWriter{}
	steps, err := ReplayLog(context.Background(), encodeRows(t, replayRows), cw, ReplayOptions{})
	if err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if steps != 2 {
		t.Fatalf("expected 2 steps, got %d", steps)
	}
	if len(cw.rows) != len(replayRows) {
		t.Fatalf("expected %d rows, got %d", len(replayRows), len(cw.rows))
	}
	for i, r := range replayRows {
		if cw.rows[i].StorageID != r.StorageID || cw.rows[i].Step != r.Step {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, cw.rows[i], r)
		}
	}
}

func TestReplayLogBatchesSteps(t *testing.T) {
	bc := &batchCollector{}
	if _, err := ReplayLog(context.Background(), encodeRows(t, replayRows), bc, ReplayOptions{}); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if len(bc.batches) != 2 || len(bc.batches[0]) != 3 || len(bc.batches[1]) != 3 {
		t.Fatalf("expected two batches of three rows, got %v", bc.batches)
	}
	if bc.batches[1][0].Step != 1 {
		t.Fatalf("second batch holds step %d", bc.batches[1][0].Step)
	}
}

func TestReplayLogFilters(t *testing.T) {
	cw := &collectWriter{}
	opts := ReplayOptions{SkipTotals: true, Systems: []string{"west", "site"}}
	steps, err := ReplayLog(context.Background(), encodeRows(t, replayRows), cw, opts)
	if err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if steps != 2 || len(cw.rows) != 2 {
		t.Fatalf("expected 2 rows over 2 steps, got %d rows over %d steps", len(cw.rows), steps)
	}
	for _, r := range cw.rows {
		if r.SystemID != "west" || r.StorageID != "rack-1" {
			t.Fatalf("unexpected row %s/%s", r.SystemID, r.StorageID)
		}
	}
}

func TestReplayLogSpeed(t *testing.T) {
	// one simulated second at 10x
	rows := []state.SystemState{
		{StorageID: "battery", Timestamp: time.Unix(0, 0)},
		{StorageID: "battery", Timestamp: time.Unix(1, 0)},
	}
	began := time.Now()
	if _, err := ReplayLog(context.Background(), encodeRows(t, rows), &collectWriter{}, ReplayOptions{Speed: 10}); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if took := time.Since(began); took < 90*time.Millisecond || took > time.Second {
		t.Fatalf("unexpected playback duration %v", took)
	}
}

func TestReplayLogStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	cw := &collectWriter{}
	steps, err := ReplayLog(ctx, encodeRows(t, replayRows), cw, ReplayOptions{Speed: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if steps != 1 || len(cw.rows) != 3 {
		t.Fatalf("expected only the first step, got %d steps %d rows", steps, len(cw.rows))
	}
}

func TestReplayLogBadInput(t *testing.T) {
	if _, err := ReplayLog(context.Background(), bytes.NewBufferString("{not json"), &collectWriter{}, ReplayOptions{}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestReplayLogFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.jsonl")
	fw, err := NewFileWriter(path, "")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	_ = fw.WriteState(state.SystemState{StorageID: "battery", SOC: 0.7})
	_ = fw.Close()

	cw := &collectWriter{}
	if _, err := ReplayLogFile(context.Background(), path, cw, ReplayOptions{}); err != nil {
		t.Fatalf("ReplayLogFile: %v", err)
	}
	if len(cw.rows) != 1 || cw.rows[0].SOC != 0.7 {
		t.Fatalf("unexpected rows: %+v", cw.rows)
	}
	if _, err := ReplayLogFile(context.Background(), path+".missing", cw, ReplayOptions{}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
