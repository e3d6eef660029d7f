package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"intentLedger/internal/model"
)

const namespace = "intentctl"

// Recorder holds the client's operation collectors. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	dryRunFails prometheus.Counter
	approvals   prometheus.Counter
	settled     prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Mutating operations by name and outcome class.",
		}, []string{"op", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of mutating operations including inclusion waits.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"op"}),
		dryRunFails: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposit_dry_run_failures_total",
			Help:      "Deposit simulations that failed before a submission went ahead.",
		}),
		approvals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_sent_total",
			Help:      "Blanket token approvals sent by the allowance guard.",
		}),
		settled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_settled_total",
			Help:      "Intents settled through single or batch settlement.",
		}),
	}
}

// Registry exposes the registry for HTTP handlers and exports.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Observe records one finished operation.
func (r *Recorder) Observe(op string, started time.Time, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(model.Classify(err))
	}
	r.operations.WithLabelValues(op, outcome).Inc()
	r.latency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (r *Recorder) DryRunFailed() {
	if r == nil {
		return
	}
	r.dryRunFails.Inc()
}

func (r *Recorder) ApprovalSent() {
	if r == nil {
		return
	}
	r.approvals.Inc()
}

func (r *Recorder) IntentsSettled(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.settled.Add(float64(n))
}

// WriteTextfile dumps the current values in the node-exporter textfile
// format, for one-shot CLI runs.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
