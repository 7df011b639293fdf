// Package metrics exposes Prometheus counters for code allocation and resolution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shortlink"

// Result labels.
const (
	ResultSuccess   = "success"
	ResultExhausted = "exhausted"
	ResultNotFound  = "not_found"
	ResultError     = "error"
)

// Metrics holds the registry counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	allocations *prometheus.CounterVec
	collisions  prometheus.Counter
	resolutions *prometheus.CounterVec
	gatherer    prometheus.Gatherer
}

// New creates the counters and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		allocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocations_total",
				Help:      "Count of code allocations by result.",
			},
			[]string{"result"},
		),
		collisions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collisions_total",
				Help:      "Count of candidate codes rejected because they were already stored.",
			},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Count of code resolutions by result.",
			},
			[]string{"result"},
		),
		gatherer: reg,
	}

	reg.MustRegister(m.allocations, m.collisions, m.resolutions)

	return m
}

func (m *Metrics) ObserveAllocation(result string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCollision() {
	if m == nil {
		return
	}
	m.collisions.Inc()
}

func (m *Metrics) ObserveResolution(result string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(result).Inc()
}

// Handler serves the registered metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
