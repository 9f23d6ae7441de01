package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"storagesim/internal/degradation"
	"storagesim/internal/state"
)

type mockGreptimeClient struct {
	table *table.Table
	err   error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, m.err
}

func TestGreptimeWriterStates(t *testing.T) {
	ts := time.Unix(0, 0).UTC()
	rows := []state.SystemState{
		{SystemID: "plant", StorageID: "battery", Technology: "lithium_ion", Step: 3, SOC: 0.42, Timestamp: ts},
		{SystemID: "plant", StorageID: "total", Technology: "system", Step: 3, SOC: 0.42, Timestamp: ts},
	}

	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, stateTable: "storage_states"}
	w.BeginRun(RunInfo{ID: "run-1"})

	if err := w.WriteStates(rows); err != nil {
		t.Fatalf("WriteStates: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}

	got := m.table.GetRows()
	if len(got.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got.Rows))
	}
	schema := got.Schema
	if schema[0].ColumnName != "run_id" || schema[0].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("unexpected first column: %+v", schema[0])
	}
	last := schema[len(schema)-1]
	if last.ColumnName != "ts" || last.SemanticType != gpb.SemanticType_TIMESTAMP {
		t.Fatalf("unexpected time index column: %+v", last)
	}
	if v := got.Rows[0].Values[0].GetStringValue(); v != "run-1" {
		t.Fatalf("run_id = %s, want run-1", v)
	}
	if v := got.Rows[1].Values[2].GetStringValue(); v != "total" {
		t.Fatalf("storage_id = %s, want total", v)
	}
	if v := got.Rows[0].Values[4].GetI64Value(); v != 3 {
		t.Fatalf("step = %d, want 3", v)
	}
}

func TestGreptimeWriterEmptyBatch(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, stateTable: "storage_states"}
	if err := w.WriteStates(nil); err != nil {
		t.Fatalf("WriteStates: %v", err)
	}
	if m.table != nil {
		t.Fatalf("expected no write for empty batch")
	}
}

func TestGreptimeWriterDegradation(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, degradationTable: "storage_degradation"}
	w.BeginRun(RunInfo{ID: "run-1", Start: start})

	entries := []degradation.Entry{{Time: 900, Increment: 1e-5, Cumulative: 1e-5}}
	if err := w.WriteDegradation("battery", entries); err != nil {
		t.Fatalf("WriteDegradation: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}
	row := m.table.GetRows().Rows[0]
	if v := row.Values[1].GetStringValue(); v != "battery" {
		t.Fatalf("storage_id = %s, want battery", v)
	}
	want := start.Add(15 * time.Minute).UnixMilli()
	if v := row.Values[5].GetTimestampMillisecondValue(); v != want {
		t.Fatalf("ts = %d, want %d", v, want)
	}
}

func TestGreptimeWriterPropagatesErrors(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("unavailable")}
	w := &GreptimeDBWriter{client: m, stateTable: "storage_states"}
	if err := w.WriteState(state.SystemState{StorageID: "battery"}); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
	}{
		{"localhost", "localhost", defaultGreptimePort},
		{"db:4002", "db", 4002},
	}
	for _, c := range cases {
		host, port, err := splitEndpoint(c.in)
		if err != nil || host != c.host || port != c.port {
			t.Errorf("splitEndpoint(%q) = %s, %d, %v", c.in, host, port, err)
		}
	}
	if _, _, err := splitEndpoint("db:abc"); err == nil {
		t.Errorf("expected error for bad port")
	}
}
