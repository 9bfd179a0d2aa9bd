package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics contains Prometheus metrics for the device simulator.
type SimulatorMetrics struct {
	PayloadsGenerated  *prometheus.CounterVec
	PublishFailures    *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	ActiveSimulators   prometheus.Gauge
	MovementsGenerated prometheus.Counter
}

// NewSimulatorMetrics creates and registers simulator metrics.
func NewSimulatorMetrics(namespace string) *SimulatorMetrics {
	m := &SimulatorMetrics{
		PayloadsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "payloads_generated_total",
				Help:      "Total number of movement payloads generated",
			},
			[]string{"type"}, // type: single, batch
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "publish_failures_total",
				Help:      "Total number of payload publish failures",
			},
			[]string{"type", "reason"},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "generation_duration_seconds",
				Help:      "Duration of payload generation and publishing",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		ActiveSimulators: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "active_simulators",
				Help:      "Number of simulated scale devices currently running",
			},
		),
		MovementsGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "movements_generated_total",
				Help:      "Total number of individual product movements generated",
			},
		),
	}

	MustRegister(
		m.PayloadsGenerated,
		m.PublishFailures,
		m.GenerationDuration,
		m.ActiveSimulators,
		m.MovementsGenerated,
	)

	return m
}
