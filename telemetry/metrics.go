// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// helpers for agents and the orchestration engine.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aiassistant"

// Metrics holds the assistant's Prometheus collectors. All methods are safe
// to call on a nil *Metrics, which records nothing.
type Metrics struct {
	stages          *prometheus.CounterVec
	tasks           *prometheus.CounterVec
	capabilityCalls *prometheus.CounterVec
	modelCalls      *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_total",
			Help:      "Orchestration stages entered, by stage.",
		}, []string{"stage"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_total",
			Help:      "Fanned-out tasks finished, by outcome.",
		}, []string{"outcome"}),
		capabilityCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_calls_total",
			Help:      "Capability invocations requested by models, by capability and status.",
		}, []string{"capability", "status"}),
		modelCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_seconds",
			Help:      "Latency of model backend calls, by agent.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"agent", "status"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.stages, m.tasks, m.capabilityCalls, m.modelCalls} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// StageEntered counts a stage transition.
func (m *Metrics) StageEntered(stage string) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Inc()
}

// TaskFinished counts a task outcome.
func (m *Metrics) TaskFinished(failed bool) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(outcome(failed)).Inc()
}

// CapabilityCalled counts one capability request. status is one of "ok",
// "error", "not_found" or "invalid_arguments".
func (m *Metrics) CapabilityCalled(name, status string) {
	if m == nil {
		return
	}
	m.capabilityCalls.WithLabelValues(name, status).Inc()
}

// ObserveModelCall records the latency of one backend call.
func (m *Metrics) ObserveModelCall(agent string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(agent, outcome(err != nil)).Observe(d.Seconds())
}

func outcome(failed bool) string {
	if failed {
		return "failed"
	}
	return "ok"
}
