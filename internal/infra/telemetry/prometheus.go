package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"holmes/internal/domain"
)

type PrometheusMetrics struct {
	prerequisiteChecks   *prometheus.CounterVec
	prerequisiteDuration *prometheus.HistogramVec
	statusCacheLookups   *prometheus.CounterVec
	remoteCalls          *prometheus.CounterVec
	remoteCallDuration   *prometheus.HistogramVec
	toolsets             *prometheus.GaugeVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		prerequisiteChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holmes_prerequisite_checks_total",
				Help: "Total number of toolset prerequisite checks",
			},
			[]string{"toolset", "kind", "outcome"},
		),
		prerequisiteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "holmes_prerequisite_duration_seconds",
				Help:    "Duration of toolset prerequisite checks in seconds",
				Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"kind"},
		),
		statusCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holmes_status_cache_lookups_total",
				Help: "Toolset status refreshes by status cache outcome",
			},
			[]string{"outcome"},
		),
		remoteCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holmes_remote_calls_total",
				Help: "Total number of remote execution bridge calls",
			},
			[]string{"endpoint", "method", "status"},
		),
		remoteCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "holmes_remote_call_duration_seconds",
				Help:    "Duration of remote execution bridge calls in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint", "method"},
		),
		toolsets: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "holmes_toolsets",
				Help: "Current number of in-scope toolsets by status",
			},
			[]string{"status"},
		),
	}
}

func (p *PrometheusMetrics) ObservePrerequisite(metric domain.PrerequisiteMetric) {
	outcome := "passed"
	if !metric.Passed {
		outcome = "failed"
	}
	p.prerequisiteChecks.WithLabelValues(metric.Toolset, string(metric.Kind), outcome).Inc()
	p.prerequisiteDuration.WithLabelValues(string(metric.Kind)).Observe(metric.Duration.Seconds())
}

func (p *PrometheusMetrics) ObserveStatusCache(outcome domain.StatusCacheOutcome) {
	p.statusCacheLookups.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusMetrics) ObserveRemoteCall(metric domain.RemoteCallMetric) {
	p.remoteCalls.WithLabelValues(metric.Endpoint, metric.Method, string(metric.Status)).Inc()
	p.remoteCallDuration.WithLabelValues(metric.Endpoint, metric.Method).Observe(metric.Duration.Seconds())
}

func (p *PrometheusMetrics) SetToolsetsByStatus(counts map[domain.ToolsetStatus]int) {
	for _, status := range []domain.ToolsetStatus{
		domain.ToolsetStatusUnknown,
		domain.ToolsetStatusEnabled,
		domain.ToolsetStatusFailed,
	} {
		p.toolsets.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
