package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"storagesim/internal/sim"
)

var (
	replayInput      string
	replaySpeed      float64
	replayPrintOnly  bool
	replaySkipTotals bool
	replaySystems    []string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a state log file",
	Long:  "replay feeds state rows from a JSONL log file back into GreptimeDB, MQTT or STDOUT, one step at a time.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		writer, cleanup, err := newWriters(writerOptions{printOnly: replayPrintOnly})
		if err != nil {
			return err
		}
		defer cleanup()
		steps, err := sim.ReplayLogFile(cmd.Context(), replayInput, writer, sim.ReplayOptions{
			Speed:      replaySpeed,
			SkipTotals: replaySkipTotals,
			Systems:    replaySystems,
		})
		slog.Info("replay finished", "input", replayInput, "steps", steps)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to state log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 900, "Simulated seconds per real second, 0 replays without delay")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print states to STDOUT instead of writing to GreptimeDB or MQTT")
	replayCmd.Flags().BoolVar(&replaySkipTotals, "skip-totals", false, "Drop aggregated total rows")
	replayCmd.Flags().StringSliceVar(&replaySystems, "system", nil, "Replay only rows of these system ids")
	replayCmd.MarkFlagRequired("input")
}
