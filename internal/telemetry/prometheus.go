// Package telemetry records API and lifecycle metrics to Prometheus or
// CloudWatch.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"subadmin/internal/types"
)

// Prometheus collects request and lifecycle metrics on its own registry.
type Prometheus struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	events      *prometheus.CounterVec
}

func NewPrometheus(namespace string) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Request and invoice status transitions.",
		}, []string{"entity", "from", "to"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_total",
			Help:      "Events published on the in-process bus by topic.",
		}, []string{"topic"}),
	}
	p.registry.MustRegister(
		p.requests, p.latency, p.transitions, p.events,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return p
}

// Registry exposes the registry for the /metrics handler.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) RecordRequest(method, endpoint, status string, duration time.Duration) {
	p.requests.WithLabelValues(method, endpoint, status).Inc()
	p.latency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (p *Prometheus) RecordTransition(entity types.EntityType, from, to string) {
	if from == "" {
		from = "NONE"
	}
	p.transitions.WithLabelValues(string(entity), from, to).Inc()
}

func (p *Prometheus) RecordEvent(topic types.Topic) {
	p.events.WithLabelValues(string(topic)).Inc()
}
