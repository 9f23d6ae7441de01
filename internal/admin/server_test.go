package admin

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storagesim/internal/metrics"
	"storagesim/internal/sim"
	"storagesim/internal/state"
)

type fakeSource struct {
	status sim.Status
	states []state.SystemState
}

func (f *fakeSource) Info() sim.RunInfo           { return sim.RunInfo{ID: f.status.RunID, Name: f.status.Run} }
func (f *fakeSource) Status() sim.Status          { return f.status }
func (f *fakeSource) States() []state.SystemState { return f.states }

func newFake() *fakeSource {
	return &fakeSource{
		status: sim.Status{
			RunID:  "r1",
			Run:    "demo",
			System: "plant",
			Phase:  "running",
			Step:   2,
			Steps:  4,
			Total:  state.SystemState{StorageID: "total", SOC: 0.5},
		},
		states: []state.SystemState{{StorageID: "battery", Technology: "lithium_ion", SOC: 0.5}},
	}
}

func TestHandleStatus(t *testing.T) {
	server := NewServer(newFake(), nil)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status OK, got %v", resp.StatusCode)
	}
	var got sim.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "r1" || got.Step != 2 || got.Total.SOC != 0.5 {
		t.Errorf("unexpected status: %+v", got)
	}
}

func TestHandleStates(t *testing.T) {
	src := newFake()
	server := NewServer(src, nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/states", nil))

	var got []state.SystemState
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].StorageID != "battery" {
		t.Errorf("unexpected states: %+v", got)
	}

	src.states = nil
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/states", nil))
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("expected empty array before first step, got %s", body)
	}
}

func TestHandleIndex(t *testing.T) {
	server := NewServer(newFake(), nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	body := w.Body.String()
	if !strings.Contains(body, "demo") || !strings.Contains(body, "battery") {
		t.Errorf("index missing run data: %s", body)
	}

	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	rec := metrics.New("plant")
	rec.ObserveStep(time.Millisecond, state.SystemState{StorageID: "total", SOC: 0.5}, nil)
	server := NewServer(newFake(), rec)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "storagesim_steps_total") {
		t.Errorf("metrics missing step counter: %s", w.Body.String())
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := NewServer(newFake(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
