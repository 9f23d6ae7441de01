package sim

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"storagesim/internal/degradation"
	"storagesim/internal/state"
)

func TestJSONStdoutWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &JSONStdoutWriter{out: buf}
	row := state.SystemState{SystemID: "plant", StorageID: "battery", SOC: 0.5, Timestamp: time.Unix(0, 0).UTC()}
	if err := w.WriteState(row); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var got state.SystemState
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
	if got.StorageID != "battery" || got.SOC != 0.5 {
		t.Fatalf("unexpected row: %+v", got)
	}

	buf.Reset()
	if err := w.WriteDegradation("battery", []degradation.Entry{{Time: 900, Increment: 1e-5, Cumulative: 1e-5}}); err != nil {
		t.Fatalf("degradation write failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"storage_id":"battery"`) || !strings.Contains(buf.String(), `"time_s":900`) {
		t.Fatalf("unexpected degradation output: %q", buf.String())
	}
}

func TestColorStdoutWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &ColorStdoutWriter{out: buf, storageColors: make(map[string]string)}
	w.BeginRun(RunInfo{ID: "r1", Name: "demo", System: "plant", Storages: []string{"battery"}, Timestep: time.Minute, Steps: 3})
	row := state.SystemState{StorageID: "battery", SOC: 0.5, Fulfillment: 0.3, Timestamp: time.Unix(0, 0)}
	if err := w.WriteState(row); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Simulation Run:") || !strings.Contains(output, "Storages:") {
		t.Fatalf("overview not printed: %q", output)
	}
	if !strings.Contains(output, colorRed+"fulfil=0.30") {
		t.Fatalf("expected low fulfillment in red: %q", output)
	}

	buf.Reset()
	if err := w.WriteState(row); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if strings.Contains(buf.String(), "Simulation Run:") {
		t.Fatalf("overview printed more than once")
	}
}

func TestColorStdoutWriterWithoutRunInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &ColorStdoutWriter{out: buf, storageColors: make(map[string]string)}
	if err := w.WriteStates([]state.SystemState{{StorageID: "a"}, {StorageID: "total"}}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if strings.Contains(buf.String(), "Simulation Run:") {
		t.Fatalf("overview printed without run info")
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("expected 2 lines, got %d", n)
	}
}
