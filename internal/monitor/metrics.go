package monitor

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus instrumentation for the supervisor and ingest
// paths, grounded on the teacher's internal/triage/triage_metrics.go.
type Metrics struct {
	TicksTotal      *prometheus.CounterVec
	TickDuration    prometheus.Histogram
	NewAlertsTotal  prometheus.Counter
	SentAlertsTotal prometheus.Counter
	IngestTotal     *prometheus.CounterVec
	TimedOutGauge   prometheus.Gauge

	// DBQueryDuration is fed directly by internal/postgres's query tracer
	// (see postgres.NewQueryTracer) rather than through a package-level
	// observer hook, so the pgstore backend's query timings land on the
	// same Metrics value the supervisor and ingest paths use.
	DBQueryDuration *prometheus.HistogramVec
}

// NewMetrics registers and returns supervisor/ingest metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_supervisor_ticks_total",
			Help: "Total supervisor ticks by outcome.",
		}, []string{"outcome"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_supervisor_tick_duration_seconds",
			Help:    "Duration of a completed supervisor tick.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		NewAlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_alerts_created_total",
			Help: "Total alerts created by the transition and timeout detectors.",
		}),
		SentAlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_alerts_delivered_total",
			Help: "Total alerts successfully delivered through the notifier set.",
		}),
		IngestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_ingest_total",
			Help: "Total ingest requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		TimedOutGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_services_timed_out",
			Help: "Number of services currently flagged as timed out.",
		}),
		DBQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_db_query_duration_seconds",
			Help:    "Duration of individual pgstore queries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "outcome"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.NewAlertsTotal,
		m.SentAlertsTotal,
		m.IngestTotal,
		m.TimedOutGauge,
		m.DBQueryDuration,
	)

	return m
}
