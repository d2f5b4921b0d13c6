package binder

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the binder's Prometheus collectors.
type Metrics struct {
	binds         *prometheus.CounterVec
	resolveErrors *prometheus.CounterVec
	sessions      prometheus.Gauge
}

// NewMetrics creates unregistered collectors; register them with Collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		binds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zigbee_descriptors_binds_total",
				Help: "Device bind attempts by result",
			},
			[]string{"result"},
		),
		resolveErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zigbee_descriptors_resolve_errors_total",
				Help: "Descriptor validation failures at bind time by reason",
			},
			[]string{"reason"},
		),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zigbee_descriptors_sessions",
			Help: "Devices with a resolved property session",
		}),
	}
}

// Collectors exposes the collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.binds,
		m.resolveErrors,
		m.sessions,
	}
}
