// ColorStdoutWriter prints human-friendly, colorized storage states to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"storagesim/internal/degradation"
	"storagesim/internal/state"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// ColorStdoutWriter prints state rows using ANSI colors.
type ColorStdoutWriter struct {
	out           io.Writer
	mu            sync.Mutex
	info          *RunInfo
	once          sync.Once
	storageColors map[string]string
	colorIdx      int
}

var storagePalette = []string{colorGreen, colorYellow, colorBlue, colorMagenta, colorCyan}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter() *ColorStdoutWriter {
	return &ColorStdoutWriter{
		out:           os.Stdout,
		storageColors: make(map[string]string),
	}
}

// BeginRun stores the run metadata printed before the first row.
func (w *ColorStdoutWriter) BeginRun(info RunInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.info = &info
}

func (w *ColorStdoutWriter) storageColor(id string) string {
	if id == "total" {
		return colorRed
	}
	if c, ok := w.storageColors[id]; ok {
		return c
	}
	c := storagePalette[w.colorIdx%len(storagePalette)]
	w.storageColors[id] = c
	w.colorIdx++
	return c
}

func (w *ColorStdoutWriter) printOverview() {
	if w.info == nil {
		return
	}

	fmt.Fprintln(w.out, "Simulation Run:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", w.info.Name)
	fmt.Fprintf(tw, "Run ID:\t%s\n", w.info.ID)
	fmt.Fprintf(tw, "System:\t%s\n", w.info.System)
	fmt.Fprintf(tw, "Start:\t%s\n", w.info.Start.Format(time.RFC3339))
	fmt.Fprintf(tw, "Timestep:\t%s\n", w.info.Timestep)
	fmt.Fprintf(tw, "Steps:\t%d\n", w.info.Steps)
	tw.Flush()

	fmt.Fprintln(w.out, "\nStorages:")
	tw = tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	for _, id := range w.info.Storages {
		col := w.storageColor(id)
		fmt.Fprintf(tw, "%s%s%s\n", col, id, colorReset)
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// WriteState outputs a single state row in colorized format.
func (w *ColorStdoutWriter) WriteState(row state.SystemState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)

	fulfilColor := colorGreen
	switch {
	case row.Fulfillment < 0.5:
		fulfilColor = colorRed
	case row.Fulfillment < 0.99:
		fulfilColor = colorYellow
	}

	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, row.Timestamp.Format(time.RFC3339), colorReset)
	fmt.Fprintf(w.out, "%sstep=%d%s ", colorGray, row.Step, colorReset)
	fmt.Fprintf(w.out, "%s%s%s ", w.storageColor(row.StorageID), row.StorageID, colorReset)
	fmt.Fprintf(w.out, "%sreq=%.1fW%s ", colorBlue, row.RequestedPower, colorReset)
	fmt.Fprintf(w.out, "%sact=%.1fW%s ", colorCyan, row.ActualPower, colorReset)
	fmt.Fprintf(w.out, "%ssoc=%.3f%s ", colorGreen, row.SOC, colorReset)
	fmt.Fprintf(w.out, "%ssoh=%.4f%s ", colorMagenta, row.SOH, colorReset)
	fmt.Fprintf(w.out, "%sT=%.1fK%s ", colorYellow, row.StackTemperature, colorReset)
	fmt.Fprintf(w.out, "%sfulfil=%.2f%s", fulfilColor, row.Fulfillment, colorReset)
	if row.TankPressure > 0 {
		fmt.Fprintf(w.out, " %stank=%.1fbar%s", colorBlue, row.TankPressure, colorReset)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteStates outputs multiple state rows.
func (w *ColorStdoutWriter) WriteStates(rows []state.SystemState) error {
	for _, r := range rows {
		_ = w.WriteState(r)
	}
	return nil
}

// WriteDegradation prints a short summary of a storage's degradation history.
func (w *ColorStdoutWriter) WriteDegradation(storage string, entries []degradation.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var cumulative float64
	if n := len(entries); n > 0 {
		cumulative = entries[n-1].Cumulative
	}
	fmt.Fprintf(w.out, "%sDEGRADATION%s storage=%s%s%s entries=%d loss=%.6f\n",
		colorRed, colorReset, w.storageColor(storage), storage, colorReset,
		len(entries), cumulative)
	return nil
}
