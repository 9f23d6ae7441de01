package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"storagesim/internal/state"
)

// ReplayOptions selects and paces replayed rows.
type ReplayOptions struct {
	// Speed > 0 replays simulated time that many times faster than real
	// time. Otherwise steps follow each other without delay.
	Speed float64
	// SkipTotals drops the aggregated rows of AC systems and the plant.
	SkipTotals bool
	// Systems keeps only rows of these system ids when set.
	Systems []string
}

func (o ReplayOptions) keep(row state.SystemState) bool {
	if o.SkipTotals && row.StorageID == "total" {
		return false
	}
	return len(o.Systems) == 0 || slices.Contains(o.Systems, row.SystemID)
}

// ReplayLog replays a JSON lines state log to writer. Rows of one step are
// handed over as one batch and consecutive steps are paced by their
// timestamps. It returns the number of steps replayed.
func ReplayLog(ctx context.Context, r io.Reader, writer StateWriter, opts ReplayOptions) (int, error) {
	dec := json.NewDecoder(r)
	var (
		batch []state.SystemState
		prev  time.Time
		steps int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ts := batch[0].Timestamp
		if !prev.IsZero() && opts.Speed > 0 {
			if err := sleep(ctx, time.Duration(float64(ts.Sub(prev))/opts.Speed)); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		prev = ts
		rows := batch
		batch = nil
		steps++
		return writeStates(writer, rows)
	}
	for {
		var row state.SystemState
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return steps, flush()
			}
			return steps, fmt.Errorf("replay row: %w", err)
		}
		if !opts.keep(row) {
			continue
		}
		if len(batch) > 0 && !row.Timestamp.Equal(batch[0].Timestamp) {
			if err := flush(); err != nil {
				return steps, err
			}
		}
		batch = append(batch, row)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReplayLogFile opens a state log and replays it.
func ReplayLogFile(ctx context.Context, path string, writer StateWriter, opts ReplayOptions) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, opts)
}
