package main

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"storagesim/internal/sim"
)

// writerOptions selects the output writers of a command.
type writerOptions struct {
	printOnly bool
	tui       bool
	logFile   string
	onQuit    func()
}

// newWriters sets up state writers based on flags and env vars.
// It returns the writer and a cleanup function to close any resources.
func newWriters(opts writerOptions) (sim.StateWriter, func() error, error) {
	var writers []sim.StateWriter
	var closers []io.Closer
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i].Close())
		}
		return errors.Join(errs...)
	}
	add := func(w sim.StateWriter) {
		writers = append(writers, w)
		if c, ok := w.(io.Closer); ok {
			closers = append(closers, c)
		}
	}

	base, err := baseWriters(opts.printOnly)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range base {
		add(w)
	}
	if opts.tui {
		add(sim.NewTUIWriter(opts.onQuit))
	} else if len(base) == 0 {
		add(sim.NewStdoutWriter())
	}
	if opts.logFile != "" {
		fw, err := sim.NewFileWriter(opts.logFile, opts.logFile+".degradation")
		if err != nil {
			_ = cleanup()
			return nil, nil, err
		}
		add(fw)
	}

	if len(writers) == 1 {
		return writers[0], cleanup, nil
	}
	return sim.NewMultiWriter(writers...), cleanup, nil
}

// baseWriters returns the database and broker writers configured in the
// environment. printOnly disables both.
func baseWriters(printOnly bool) ([]sim.StateWriter, error) {
	if printOnly {
		slog.Info("print-only mode: states will be printed to STDOUT")
		return nil, nil
	}
	var out []sim.StateWriter
	if endpoint := os.Getenv("GREPTIMEDB_ENDPOINT"); endpoint != "" {
		database := os.Getenv("GREPTIMEDB_DATABASE")
		if database == "" {
			database = "public"
		}
		w, err := sim.NewGreptimeDBWriter(endpoint, database, os.Getenv("GREPTIMEDB_TABLE"), os.Getenv("GREPTIMEDB_DEGRADATION_TABLE"))
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		clientID := os.Getenv("MQTT_CLIENT_ID")
		if clientID == "" {
			clientID = "storagesim"
		}
		w, err := sim.NewMQTTWriter(broker, clientID, os.Getenv("MQTT_TOPIC"))
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
