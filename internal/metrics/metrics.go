package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

const namespace = "civic_ledger"

// Metrics holds the Prometheus collectors for the ledger service. Each
// instance owns its registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	CommandCounter   *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	ReportsByStatus  *prometheus.GaugeVec
	RegistrySize     *prometheus.GaugeVec
	EventCounter     *prometheus.CounterVec
	SinkErrors       *prometheus.CounterVec
	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	DBConnPoolStats  *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		CommandCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Ledger commands applied, by op and outcome code",
			},
			[]string{"op", "code"},
		),
		CommandDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Time from admission to applied, including the journal write",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		ReportsByStatus: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reports",
				Help:      "Reports currently in each lifecycle status",
			},
			[]string{"status"},
		),
		RegistrySize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registry_entries",
				Help:      "Entries held by the nullifier and role registries",
			},
			[]string{"registry"},
		),
		EventCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Lifecycle events published, by kind",
			},
			[]string{"kind"},
		),
		SinkErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_sink_errors_total",
				Help:      "Events a sink failed to deliver",
			},
			[]string{"sink"},
		),
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		DBConnPoolStats: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Index database connection pool statistics",
			},
			[]string{"stat"},
		),
	}
}

func (m *Metrics) ObserveCommand(op, code string, elapsed time.Duration) {
	m.CommandCounter.WithLabelValues(op, code).Inc()
	m.CommandDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveStats sets the report and registry gauges from a full snapshot.
// It seeds them once after replay; Notify keeps them current from there.
func (m *Metrics) ObserveStats(stats lifecycle.Stats) {
	for _, s := range lifecycle.AllStatuses() {
		m.ReportsByStatus.WithLabelValues(s.String()).Set(float64(stats.ByStatus[s]))
	}
	m.RegistrySize.WithLabelValues("submission_nullifiers").Set(float64(stats.SubmissionNullifiers))
	m.RegistrySize.WithLabelValues("vote_nullifiers").Set(float64(stats.VoteNullifiers))
	m.RegistrySize.WithLabelValues("grants").Set(float64(stats.Grants))
}

// Notify counts published events and moves the report and registry gauges
// by each event's delta. It is registered as an event sink.
func (m *Metrics) Notify(e lifecycle.Event) {
	m.EventCounter.WithLabelValues(string(e.Kind())).Inc()

	switch ev := e.(type) {
	case lifecycle.ReportCreated:
		m.ReportsByStatus.WithLabelValues(lifecycle.StatusPendingValidation.String()).Inc()
		m.RegistrySize.WithLabelValues("submission_nullifiers").Inc()
	case lifecycle.StatusChanged:
		m.ReportsByStatus.WithLabelValues(ev.OldStatus.String()).Dec()
		m.ReportsByStatus.WithLabelValues(ev.NewStatus.String()).Inc()
	case lifecycle.VoteCast:
		m.RegistrySize.WithLabelValues("vote_nullifiers").Inc()
	case lifecycle.CapabilityChanged:
		if ev.Granted {
			m.RegistrySize.WithLabelValues("grants").Inc()
		} else {
			m.RegistrySize.WithLabelValues("grants").Dec()
		}
	}
}

func (m *Metrics) SinkFailed(sink string) {
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// RecordDBPoolStats records index database connection pool statistics.
func (m *Metrics) RecordDBPoolStats(open, inUse, idle int, waitCount int64, waitDuration time.Duration) {
	m.DBConnPoolStats.WithLabelValues("open").Set(float64(open))
	m.DBConnPoolStats.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnPoolStats.WithLabelValues("idle").Set(float64(idle))
	m.DBConnPoolStats.WithLabelValues("wait_count").Set(float64(waitCount))
	m.DBConnPoolStats.WithLabelValues("wait_duration_ms").Set(float64(waitDuration.Milliseconds()))
}

// Middleware records request count, latency and in-flight requests. The
// route label is the matched route pattern, not the raw path.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		m.RequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		m.RequestCounter.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		return err
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}
