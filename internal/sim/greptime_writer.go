package sim

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"storagesim/internal/degradation"
	"storagesim/internal/state"
)

const defaultGreptimePort = 4001

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes storage states and degradation histories to
// GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client           greptimeClient
	stateTable       string
	degradationTable string

	mu    sync.Mutex
	runID string
	start time.Time
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port") and
// writes into database. Empty table names fall back to defaults.
func NewGreptimeDBWriter(endpoint, database, stateTable, degradationTable string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	if stateTable == "" {
		stateTable = state.StatesTableName
	}
	if degradationTable == "" {
		degradationTable = "storage_degradation"
	}
	return &GreptimeDBWriter{
		client:           client,
		stateTable:       stateTable,
		degradationTable: degradationTable,
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid greptimedb port %q: %w", portStr, err)
	}
	return host, port, nil
}

// BeginRun records the run id tag and the start used for degradation timestamps.
func (w *GreptimeDBWriter) BeginRun(info RunInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runID = info.ID
	w.start = info.Start
}

func (w *GreptimeDBWriter) run() (string, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runID, w.start
}

// WriteState inserts a single state row.
func (w *GreptimeDBWriter) WriteState(row state.SystemState) error {
	return w.WriteStates([]state.SystemState{row})
}

// WriteStates inserts multiple state rows.
func (w *GreptimeDBWriter) WriteStates(rows []state.SystemState) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := w.stateTableFor(rows)
	if err != nil {
		return err
	}
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		slog.Error("greptimedb write failed", "table", w.stateTable, "error", err)
		return err
	}
	slog.Debug("greptimedb wrote states", "rows", len(rows))
	return nil
}

func (w *GreptimeDBWriter) stateTableFor(rows []state.SystemState) (*table.Table, error) {
	tbl, err := table.New(w.stateTable)
	if err != nil {
		return nil, err
	}
	for _, tag := range []string{"run_id", "system_id", "storage_id", "technology"} {
		if err := tbl.AddTagColumn(tag, types.STRING); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddFieldColumn("step", types.INT64); err != nil {
		return nil, err
	}
	fields := []string{
		"requested_power_w", "actual_power_w", "dc_coupling_power_w", "fulfillment",
		"losses_w", "voltage_v", "current_a", "soc", "soh", "capacity_wh",
		"capacity_loss", "ambient_temperature_k", "stack_temperature_k",
		"water_flow_mol_s", "pressure_anode_bar", "pressure_cathode_bar",
		"tank_pressure_bar", "h2_production_mol_s", "h2_consumption_mol_s",
		"max_charge_power_w", "max_discharge_power_w",
		"housing_temperature_k", "auxiliary_power_w",
	}
	for _, f := range fields {
		if err := tbl.AddFieldColumn(f, types.FLOAT64); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}

	runID, _ := w.run()
	for _, r := range rows {
		err := tbl.AddRow(
			runID, r.SystemID, r.StorageID, r.Technology,
			int64(r.Step),
			r.RequestedPower, r.ActualPower, r.DcCouplingPower, r.Fulfillment,
			r.Losses, r.Voltage, r.Current, r.SOC, r.SOH, r.Capacity,
			r.CapacityLoss, r.AmbientTemperature, r.StackTemperature,
			r.WaterFlow, r.PressureAnode, r.PressureCathode,
			r.TankPressure, r.H2Production, r.H2Consumption,
			r.MaxChargePower, r.MaxDischargePower,
			r.HousingTemperature, r.AuxiliaryPower,
			r.Timestamp,
		)
		if err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// WriteDegradation inserts a storage's degradation history, timestamped
// relative to the run start.
func (w *GreptimeDBWriter) WriteDegradation(storage string, entries []degradation.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tbl, err := table.New(w.degradationTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("run_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("storage_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("time_s", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("increment", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("cumulative", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}

	runID, start := w.run()
	for _, e := range entries {
		ts := start.Add(time.Duration(e.Time * float64(time.Second)))
		if err := tbl.AddRow(runID, storage, e.Time, e.Increment, e.Cumulative, ts); err != nil {
			return err
		}
	}
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		slog.Error("greptimedb write failed", "table", w.degradationTable, "error", err)
		return err
	}
	return nil
}
