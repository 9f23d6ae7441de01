package sim

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"storagesim/internal/degradation"
	"storagesim/internal/state"
)

// DegradationRow is one degradation history entry as written to logs.
type DegradationRow struct {
	Storage string `json:"storage_id"`
	degradation.Entry
}

// FileWriter writes states and degradation histories to JSONL files.
type FileWriter struct {
	mu        sync.Mutex
	stateFile *os.File
	degFile   *os.File
	stateEnc  *json.Encoder
	degEnc    *json.Encoder
}

// NewFileWriter creates a FileWriter. degradationPath may be empty to skip that log.
func NewFileWriter(statePath, degradationPath string) (*FileWriter, error) {
	sf, err := os.Create(statePath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{stateFile: sf, stateEnc: json.NewEncoder(sf)}
	if degradationPath != "" {
		df, err := os.Create(degradationPath)
		if err != nil {
			sf.Close()
			return nil, err
		}
		fw.degFile = df
		fw.degEnc = json.NewEncoder(df)
	}
	return fw, nil
}

// WriteState logs a single state row.
func (f *FileWriter) WriteState(row state.SystemState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateEnc.Encode(row)
}

// WriteStates logs multiple state rows.
func (f *FileWriter) WriteStates(rows []state.SystemState) error {
	for _, r := range rows {
		if err := f.WriteState(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteDegradation logs the degradation history of one storage, if enabled.
func (f *FileWriter) WriteDegradation(storage string, entries []degradation.Entry) error {
	if f.degEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		if err := f.degEnc.Encode(DegradationRow{Storage: storage, Entry: e}); err != nil {
			return err
		}
	}
	return nil
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var errs []error
	if f.stateFile != nil {
		errs = append(errs, f.stateFile.Close())
	}
	if f.degFile != nil {
		errs = append(errs, f.degFile.Close())
	}
	return errors.Join(errs...)
}
