// Package metrics exposes assignment and conversion counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/headline-goat/splitgoat/internal/experiment"
)

// Metrics implements experiment.Recorder.
//
// Metrics:
//   - splitgoat_assignments_total{experiment,variant} - new sticky assignments
//   - splitgoat_degraded_assignments_total{experiment,reason} - control returned without recording
//   - splitgoat_conversions_total{experiment,variant,event_type} - conversions tracked
//   - splitgoat_mirror_failures_total{experiment} - failed durable mirror writes
type Metrics struct {
	Assignments     *prometheus.CounterVec
	DegradedAssigns *prometheus.CounterVec
	Conversions     *prometheus.CounterVec
	MirrorFailures  *prometheus.CounterVec
}

// New registers the collectors on reg. Use a fresh registry per server so
// tests can build several servers in one process.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Assignments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitgoat_assignments_total",
				Help: "Total number of sticky variant assignments",
			},
			[]string{"experiment", "variant"},
		),
		DegradedAssigns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitgoat_degraded_assignments_total",
				Help: "Total number of requests answered with control without an assignment",
			},
			[]string{"experiment", "reason"}, // "inactive" or "store_error"
		),
		Conversions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitgoat_conversions_total",
				Help: "Total number of conversions tracked",
			},
			[]string{"experiment", "variant", "event_type"},
		),
		MirrorFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitgoat_mirror_failures_total",
				Help: "Total number of conversions that failed to reach durable storage",
			},
			[]string{"experiment"},
		),
	}
}

func (m *Metrics) Assigned(experimentID string, v experiment.Variant) {
	m.Assignments.WithLabelValues(experimentID, string(v)).Inc()
}

func (m *Metrics) Degraded(experimentID, reason string) {
	m.DegradedAssigns.WithLabelValues(experimentID, reason).Inc()
}

func (m *Metrics) Converted(c experiment.Conversion) {
	m.Conversions.WithLabelValues(c.ExperimentID, string(c.Variant), c.EventType).Inc()
}

func (m *Metrics) MirrorFailed(experimentID string) {
	m.MirrorFailures.WithLabelValues(experimentID).Inc()
}
