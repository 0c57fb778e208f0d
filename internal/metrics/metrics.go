package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	Severity         prometheus.Gauge
	BackendStatus    *prometheus.GaugeVec
	BackendSeverity  *prometheus.GaugeVec
	InstanceSeverity *prometheus.GaugeVec
	Findings         *prometheus.GaugeVec
	RunDuration      prometheus.Gauge
	LastRun          prometheus.Gauge
	Runs             *prometheus.CounterVec
	ExporterUp       prometheus.Gauge
}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Severity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "raid_health_severity",
				Help: "Aggregate storage health of the last run (0=ok, 1=warning, 2=error)",
			},
		),
		BackendStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "raid_health_backend_status",
				Help: "Outcome of the last run per backend; the series for the current status is 1",
			},
			[]string{"backend", "status"},
		),
		BackendSeverity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "raid_health_backend_severity",
				Help: "Health per backend (0=ok, 1=warning, 2=error)",
			},
			[]string{"backend"},
		),
		InstanceSeverity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "raid_health_instance_severity",
				Help: "Health per controller, array or pool (0=ok, 1=warning, 2=error)",
			},
			[]string{"backend", "instance"},
		),
		Findings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "raid_health_findings",
				Help: "Number of failed checks in the last run",
			},
			[]string{"backend", "severity"},
		),
		RunDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "raid_health_run_duration_seconds",
				Help: "Duration of the last health check run",
			},
		),
		LastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "raid_health_last_run_timestamp_seconds",
				Help: "Unix time the last health check run finished",
			},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raid_health_runs_total",
				Help: "Health check runs by result",
			},
			[]string{"result"},
		),
		ExporterUp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "raid_health_check_up",
				Help: "Whether the raid health exporter is up and running",
			},
		),
	}

	reg.MustRegister(
		m.Severity,
		m.BackendStatus,
		m.BackendSeverity,
		m.InstanceSeverity,
		m.Findings,
		m.RunDuration,
		m.LastRun,
		m.Runs,
		m.ExporterUp,
	)

	return m
}

// Reset clears the per-run series so vanished instances do not linger
func (m *Metrics) Reset() {
	m.BackendStatus.Reset()
	m.BackendSeverity.Reset()
	m.InstanceSeverity.Reset()
	m.Findings.Reset()
}
