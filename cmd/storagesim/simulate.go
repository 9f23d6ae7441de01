package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"storagesim/internal/admin"
	"storagesim/internal/config"
	"storagesim/internal/degradation"
	"storagesim/internal/factory"
	"storagesim/internal/logging"
	"storagesim/internal/metrics"
	"storagesim/internal/sim"
)

var (
	simPrintOnly  bool
	simTUI        bool
	simConfigPath string
	simSchemaPath string
	simLogFile    string
	simAdminAddr  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a storage system simulation",
	Long:  "simulate steps a configured storage system through its power profile and writes every state to the selected outputs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simTUI && logOutput == "" {
			// the TUI owns the terminal
			slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		}

		cfg, err := config.Load(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		ctx = logging.NewContext(ctx, slog.Default())

		writer, cleanup, err := newWriters(writerOptions{
			printOnly: simPrintOnly,
			tui:       simTUI,
			logFile:   simLogFile,
			onQuit:    cancel,
		})
		if err != nil {
			return err
		}
		defer func() {
			if cerr := cleanup(); cerr != nil {
				slog.Error("closing writers failed", "error", cerr)
			}
		}()

		opts := []factory.Option{factory.WithBaseDir(filepath.Dir(simConfigPath))}
		if sink, ok := writer.(degradation.Sink); ok {
			opts = append(opts, factory.WithDegradationSink(sink))
		}
		plan, err := factory.Build(cfg, opts...)
		if err != nil {
			return err
		}

		rec := metrics.New(plan.System.Name())
		simulator := sim.NewSimulator(plan, writer, sim.WithMetrics(rec))

		if simAdminAddr != "" {
			ln, err := net.Listen("tcp", simAdminAddr)
			if err != nil {
				plan.System.Close()
				return err
			}
			if aw, ok := writer.(sim.AdminStatusWriter); ok {
				aw.SetAdminStatus(true)
			}
			srv := admin.NewServer(simulator, rec)
			go func() {
				if err := srv.Serve(ctx, ln); err != nil {
					slog.Error("admin server failed", "error", err)
				}
			}()
		}

		err = simulator.Run(ctx)
		if errors.Is(err, context.Canceled) {
			slog.Info("simulation stopped")
			return nil
		}
		if err != nil {
			return err
		}
		if simTUI {
			// keep the final state on screen until the user quits
			<-ctx.Done()
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print states to STDOUT instead of writing to GreptimeDB or MQTT")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Show a terminal UI while the simulation runs")
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "config/simulation.yaml", "Path to simulation configuration YAML")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Path to export states (JSONL); degradation goes to <path>.degradation")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin-addr", ":8080", "Admin UI listen address (empty disables)")
}
