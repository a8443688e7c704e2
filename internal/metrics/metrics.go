// Package metrics exposes Prometheus collectors for the detection pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hammamikhairi/guardian/internal/domain"
)

const namespace = "guardian"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry        *prometheus.Registry
	verdicts        *prometheus.CounterVec
	classifyLatency prometheus.Histogram
	escalations     *prometheus.CounterVec
	steps           *prometheus.CounterVec
	lullabies       *prometheus.CounterVec
}

// New registers all collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Classification verdicts by label.",
		}, []string{"label"}),
		classifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Time from clip receipt to verdict.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_decisions_total",
			Help:      "Cry verdicts by escalation decision (escalated, suppressed, error).",
		}, []string{"decision"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_steps_total",
			Help:      "Escalation step outcomes.",
		}, []string{"step", "status"}),
		lullabies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lullaby_generations_total",
			Help:      "Lullaby generation attempts by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.verdicts, m.classifyLatency, m.escalations, m.steps, m.lullabies,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveVerdict counts a verdict and its latency.
func (m *Metrics) ObserveVerdict(label domain.Label, took time.Duration) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(string(label)).Inc()
	m.classifyLatency.Observe(took.Seconds())
}

// Escalation decisions.
const (
	DecisionEscalated  = "escalated"
	DecisionSuppressed = "suppressed"
	DecisionError      = "error"
)

// ObserveDecision counts an escalation decision for a cry verdict.
func (m *Metrics) ObserveDecision(decision string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(decision).Inc()
}

// ObserveStep counts one escalation step outcome.
func (m *Metrics) ObserveStep(step string, status domain.StepStatus) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(step, string(status)).Inc()
}

// ObserveLullaby counts a generation attempt.
func (m *Metrics) ObserveLullaby(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.lullabies.WithLabelValues(result).Inc()
}
