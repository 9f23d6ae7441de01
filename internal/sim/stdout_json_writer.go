package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"storagesim/internal/degradation"
	"storagesim/internal/state"
)

// JSONStdoutWriter prints states and degradation histories as JSON to STDOUT.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// WriteState outputs a state row in JSON format.
func (w *JSONStdoutWriter) WriteState(row state.SystemState) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteStates outputs multiple state rows in JSON format.
func (w *JSONStdoutWriter) WriteStates(rows []state.SystemState) error {
	for _, r := range rows {
		if err := w.WriteState(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteDegradation outputs one JSON line per history entry.
func (w *JSONStdoutWriter) WriteDegradation(storage string, entries []degradation.Entry) error {
	for _, e := range entries {
		data, err := json.Marshal(DegradationRow{Storage: storage, Entry: e})
		if err != nil {
			return err
		}
		fmt.Fprintln(w.out, string(data))
	}
	return nil
}
