// Package metrics exposes simulation progress as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storagesim/internal/state"
)

const namespace = "storagesim"

// Recorder owns a private registry. A nil *Recorder records nothing.
type Recorder struct {
	reg *prometheus.Registry

	steps       prometheus.Counter
	failed      prometheus.Counter
	duration    prometheus.Histogram
	fulfillment prometheus.Gauge
	soc         *prometheus.GaugeVec
	power       *prometheus.GaugeVec
	loss        *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
}

func opts(system, name, help string) prometheus.Opts {
	return prometheus.Opts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"system": system},
	}
}

// New registers the simulation metrics for system.
func New(system string) *Recorder {
	r := &Recorder{
		reg:         prometheus.NewRegistry(),
		steps:       prometheus.NewCounter(prometheus.CounterOpts(opts(system, "steps_total", "Simulation steps completed."))),
		failed:      prometheus.NewCounter(prometheus.CounterOpts(opts(system, "failed_steps_total", "Simulation steps that aborted the run."))),
		fulfillment: prometheus.NewGauge(prometheus.GaugeOpts(opts(system, "fulfillment_ratio", "Actual over requested AC power of the last step."))),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "step_duration_seconds",
			Help:        "Wall-clock time spent in one system step.",
			ConstLabels: prometheus.Labels{"system": system},
			Buckets:     prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		soc:         prometheus.NewGaugeVec(prometheus.GaugeOpts(opts(system, "state_of_charge_ratio", "State of charge per storage.")), []string{"storage"}),
		power:       prometheus.NewGaugeVec(prometheus.GaugeOpts(opts(system, "power_watts", "Requested and actual power per storage.")), []string{"storage", "kind"}),
		loss:        prometheus.NewGaugeVec(prometheus.GaugeOpts(opts(system, "capacity_loss_ratio", "Cumulative capacity loss per storage.")), []string{"storage"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts(opts(system, "stack_temperature_kelvin", "Stack or cell temperature per storage.")), []string{"storage"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		r.steps, r.failed, r.duration, r.fulfillment,
		r.soc, r.power, r.loss, r.temperature,
	)
	return r
}

// Registry returns the registry backing r.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// ObserveStep records one completed step.
func (r *Recorder) ObserveStep(took time.Duration, total state.SystemState, states []state.SystemState) {
	if r == nil {
		return
	}
	r.steps.Inc()
	r.duration.Observe(took.Seconds())
	r.fulfillment.Set(total.Fulfillment)
	for _, st := range states {
		r.storage(st)
	}
	r.storage(total)
}

func (r *Recorder) storage(st state.SystemState) {
	r.soc.WithLabelValues(st.StorageID).Set(st.SOC)
	r.power.WithLabelValues(st.StorageID, "requested").Set(st.RequestedPower)
	r.power.WithLabelValues(st.StorageID, "actual").Set(st.ActualPower)
	r.loss.WithLabelValues(st.StorageID).Set(st.CapacityLoss)
	r.temperature.WithLabelValues(st.StorageID).Set(st.StackTemperature)
}

// StepFailed records an aborted step.
func (r *Recorder) StepFailed() {
	if r == nil {
		return
	}
	r.failed.Inc()
}
