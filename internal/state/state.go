// Per-step storage state records
package state

import (
	"os"
	"time"
)

// SystemState is the snapshot a technology model emits for one timestep.
// Values are copied on return; producers never mutate an emitted state.
type SystemState struct {
	SystemID   string    `json:"system_id"`  // TAG
	StorageID  string    `json:"storage_id"` // TAG
	Technology string    `json:"technology"` // TAG
	Step       int       `json:"step"`
	Timestamp  time.Time `json:"ts"` // TIME INDEX

	RequestedPower  float64 `json:"requested_power_w"`
	ActualPower     float64 `json:"actual_power_w"`
	DcCouplingPower float64 `json:"dc_coupling_power_w"`
	Fulfillment     float64 `json:"fulfillment"`
	Losses          float64 `json:"losses_w"`
	Voltage         float64 `json:"voltage_v"`
	Current         float64 `json:"current_a"`

	SOC          float64 `json:"soc"`
	SOH          float64 `json:"soh"`
	Capacity     float64 `json:"capacity_wh"`
	CapacityLoss float64 `json:"capacity_loss"`

	AmbientTemperature float64 `json:"ambient_temperature_k"`
	StackTemperature   float64 `json:"stack_temperature_k"`
	HousingTemperature float64 `json:"housing_temperature_k"`
	WaterFlow          float64 `json:"water_flow_mol_s"`

	PressureAnode   float64 `json:"pressure_anode_bar"`
	PressureCathode float64 `json:"pressure_cathode_bar"`
	TankPressure    float64 `json:"tank_pressure_bar"`
	H2Production    float64 `json:"h2_production_mol_s"`
	H2Consumption   float64 `json:"h2_consumption_mol_s"`

	MaxChargePower    float64 `json:"max_charge_power_w"`
	MaxDischargePower float64 `json:"max_discharge_power_w"`
	// AuxiliaryPower is the HVAC draw taken from the grid. It is not part
	// of ActualPower.
	AuxiliaryPower float64 `json:"auxiliary_power_w"`
}

// StatesTableName holds the table name used when writing states to GreptimeDB.
// It defaults to "storage_states" and can be overridden via GREPTIMEDB_TABLE.
var StatesTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "storage_states"
}()

func (SystemState) TableName() string {
	return StatesTableName
}

// Fulfillment returns actual/requested, or 1 when nothing was requested.
func Fulfillment(requested, actual float64) float64 {
	if requested == 0 {
		return 1
	}
	f := actual / requested
	if f < 0 {
		return 0
	}
	return f
}

// Aggregate folds per-storage states into one system-level state.
// SOC and SOH are capacity weighted; temperatures are averaged. Auxiliary
// power is summed.
func Aggregate(systemID string, states []SystemState) SystemState {
	out := SystemState{SystemID: systemID, StorageID: "total", Technology: "system", SOH: 1}
	if len(states) == 0 {
		out.Fulfillment = 1
		return out
	}
	out.Step = states[0].Step
	out.Timestamp = states[0].Timestamp
	var socWeighted, sohWeighted, temp, amb, housing float64
	for _, s := range states {
		out.RequestedPower += s.RequestedPower
		out.ActualPower += s.ActualPower
		out.DcCouplingPower += s.DcCouplingPower
		out.Losses += s.Losses
		out.Capacity += s.Capacity
		out.MaxChargePower += s.MaxChargePower
		out.MaxDischargePower += s.MaxDischargePower
		out.H2Production += s.H2Production
		out.H2Consumption += s.H2Consumption
		out.AuxiliaryPower += s.AuxiliaryPower
		socWeighted += s.SOC * s.Capacity
		sohWeighted += s.SOH * s.Capacity
		temp += s.StackTemperature
		amb += s.AmbientTemperature
		housing += s.HousingTemperature
	}
	n := float64(len(states))
	if out.Capacity > 0 {
		out.SOC = socWeighted / out.Capacity
		out.SOH = sohWeighted / out.Capacity
	}
	out.StackTemperature = temp / n
	out.AmbientTemperature = amb / n
	out.HousingTemperature = housing / n
	out.Fulfillment = Fulfillment(out.RequestedPower, out.ActualPower)
	return out
}
