// Package simerr defines the error kinds shared by the simulation packages.
package simerr

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration marks invalid or missing static configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrProfileExhausted marks a profile queried past the end of its data.
	ErrProfileExhausted = errors.New("profile exhausted")
	// ErrNotConfigured is returned when a storage system is stepped before Configure.
	ErrNotConfigured = errors.New("storage system not configured")
	// ErrStepAfterClose is returned when a closed storage system is stepped.
	ErrStepAfterClose = errors.New("step after close")
	// ErrRunAborted is returned when a storage system is stepped after a failed step.
	ErrRunAborted = errors.New("simulation run aborted")
)

// ConfigError describes a single invalid configuration value.
type ConfigError struct {
	Component string
	Field     string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Component, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Component, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrConfiguration.
func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// Config is shorthand for building a *ConfigError.
func Config(component, field, reason string) error {
	return &ConfigError{Component: component, Field: field, Reason: reason}
}

// Positive returns a ConfigError when v is not strictly positive.
func Positive(component, field string, v float64) error {
	if v > 0 {
		return nil
	}
	return Config(component, field, fmt.Sprintf("must be > 0, got %g", v))
}

// NonNegative returns a ConfigError when v is negative.
func NonNegative(component, field string, v float64) error {
	if v >= 0 {
		return nil
	}
	return Config(component, field, fmt.Sprintf("must be >= 0, got %g", v))
}

// InRange returns a ConfigError when v is outside [lo, hi].
func InRange(component, field string, v, lo, hi float64) error {
	if v >= lo && v <= hi {
		return nil
	}
	return Config(component, field, fmt.Sprintf("must be within [%g, %g], got %g", lo, hi, v))
}

// StepError reports which storage and timestep aborted a run.
type StepError struct {
	System  string
	Storage string
	Step    int
	Time    time.Time
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("system %s: storage %s failed at step %d (%s): %v",
		e.System, e.Storage, e.Step, e.Time.Format(time.RFC3339), e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
