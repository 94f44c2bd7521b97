package lc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes orchestration metrics. All methods are nil-safe: calls on a
// nil *Metrics are no-ops.
type Metrics struct {
	// LevelDuration observes how long each level took to start or stop.
	LevelDuration *prometheus.HistogramVec

	// ServiceFailures counts failed services by phase and display name.
	ServiceFailures *prometheus.CounterVec

	// ServicesRunning tracks services that reached the running state and have
	// not terminated yet.
	ServicesRunning prometheus.Gauge
}

// NewMetrics creates the orchestration metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LevelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tiered",
			Subsystem: "lc",
			Name:      "level_duration_seconds",
			Help:      "Time taken to start or stop all services of a level",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase", "level"}),
		ServiceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiered",
			Subsystem: "lc",
			Name:      "service_failures_total",
			Help:      "Total number of service start or stop failures",
		}, []string{"phase", "service"}),
		ServicesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tiered",
			Subsystem: "lc",
			Name:      "services_running",
			Help:      "Number of managed services currently running",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.LevelDuration,
			m.ServiceFailures,
			m.ServicesRunning,
		)
	}

	return m
}

func (m *Metrics) observeLevel(phase Phase, level Level, d time.Duration) {
	if m == nil {
		return
	}
	m.LevelDuration.WithLabelValues(string(phase), strconv.FormatInt(int64(level), 10)).Observe(d.Seconds())
}

func (m *Metrics) recordFailures(phase Phase, services []ManagedService) {
	if m == nil {
		return
	}
	for _, svc := range services {
		m.ServiceFailures.WithLabelValues(string(phase), Name(svc)).Inc()
	}
}

func (m *Metrics) addRunning(delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.ServicesRunning.Add(float64(delta))
}
