package scenario

func ptr(v float64) *float64 { return &v }

// BuiltIn returns predefined power programmes.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"idle": {
			Name:        "Idle",
			Description: "No power is requested; shows self-discharge and calendar ageing.",
			Phases:      []Phase{{Name: "rest", Steps: 1}},
		},
		"charge-discharge": {
			Name:        "Charge and discharge",
			Description: "Full cycles between SOC 10 % and 90 % at rated power.",
			Phases: []Phase{
				{
					Name:     "charge",
					Steps:    120,
					Power:    1,
					Triggers: []Trigger{{Event: SocAbove, Value: 0.9, Next: "discharge"}},
				},
				{
					Name:     "discharge",
					Steps:    120,
					Power:    -1,
					Triggers: []Trigger{{Event: SocBelow, Value: 0.1, Next: "charge"}},
				},
			},
		},
		"peak-shaving": {
			Name:        "Peak shaving",
			Description: "Charge at night, hold over the morning and cover the evening peak, hourly steps.",
			Phases: []Phase{
				{Name: "off-peak", Description: "Cheap night energy.", Steps: 8, Power: 0.5},
				{Name: "shoulder", Description: "Morning hold.", Steps: 8},
				{Name: "peak", Description: "Evening ramp.", Steps: 4, Power: -0.2, RampTo: ptr(-1)},
				{Name: "late", Description: "Late evening tail.", Steps: 4, Power: -0.5},
			},
		},
	}
}

// Names lists the built-in scenario names.
func Names() []string { return []string{"charge-discharge", "idle", "peak-shaving"} }
