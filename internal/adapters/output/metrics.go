package output

import (
	"net/http"
	"runtime"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// PrometheusMetrics implements the engine's metric ports on a private
// registry, so several engines (or tests) can coexist in one process.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	factory  promauto.Factory

	events          prometheus.Counter
	eventsByResult  *prometheus.CounterVec
	findings        *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	processingTime  prometheus.Histogram
	activeLanes     prometheus.Gauge
	alertsByKind    *prometheus.CounterVec
	alertsBySev     *prometheus.CounterVec
	sinkCommands    *prometheus.CounterVec
	activeBlocks    prometheus.Gauge
	lastAlertSeq    prometheus.Gauge
	memoryUsage     prometheus.GaugeFunc
	namespace       string
}

func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "sentinel"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	m := &PrometheusMetrics{registry: reg, factory: factory, namespace: namespace}

	m.events = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Total number of normalized events processed",
	})

	m.eventsByResult = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_by_result_total",
		Help:      "Records by outcome: clean, finding or rejected",
	}, []string{"result"})

	m.findings = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "findings_total",
		Help:      "Detector hits by signature, before deduplication",
	}, []string{"signature"})

	m.decisions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dedup_decisions_total",
		Help:      "Dedup verdicts by decision",
	}, []string{"decision"})

	m.processingTime = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "processing_duration_seconds",
		Help:      "Time spent processing each event",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 10),
	})

	m.activeLanes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_lanes",
		Help:      "Number of running pipeline lanes",
	})

	m.alertsByKind = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_by_kind_total",
		Help:      "Alerts emitted by kind",
	}, []string{"kind"})

	m.alertsBySev = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_by_severity_total",
		Help:      "Alerts emitted by severity",
	}, []string{"severity"})

	m.sinkCommands = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_commands_total",
		Help:      "Countermeasure commands by operation and outcome",
	}, []string{"op", "outcome"})

	m.activeBlocks = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_blocks",
		Help:      "Sources currently blocked",
	})

	m.lastAlertSeq = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_alert_seq",
		Help:      "Sequence number of the most recent alert",
	})

	m.memoryUsage = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_bytes",
		Help:      "Current heap allocation in bytes",
	}, func() float64 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.Alloc)
	})

	return m
}

// RegisterQueueGauge exposes the pipeline queue length, read at scrape
// time.
func (m *PrometheusMetrics) RegisterQueueGauge(fn func() int) {
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "queue_size",
		Help:      "Events waiting in the pipeline lanes",
	}, func() float64 { return float64(fn()) })
}

func (m *PrometheusMetrics) IncrementEvents() {
	m.events.Inc()
}

func (m *PrometheusMetrics) IncrementEventsByResult(result string) {
	m.eventsByResult.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) IncrementFindings(sig domain.Signature) {
	m.findings.WithLabelValues(string(sig)).Inc()
}

func (m *PrometheusMetrics) IncrementDecision(d domain.Decision) {
	m.decisions.WithLabelValues(d.String()).Inc()
}

func (m *PrometheusMetrics) ObserveProcessingTime(seconds float64) {
	m.processingTime.Observe(seconds)
}

func (m *PrometheusMetrics) SetActiveLanes(count int) {
	m.activeLanes.Set(float64(count))
}

func (m *PrometheusMetrics) ObserveSinkCommand(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sinkCommands.WithLabelValues(op, outcome).Inc()
}

func (m *PrometheusMetrics) SetActiveBlocks(n int) {
	m.activeBlocks.Set(float64(n))
}

// OnAlert implements ports.AlertSubscriber.
func (m *PrometheusMetrics) OnAlert(alert *domain.Alert) {
	m.alertsByKind.WithLabelValues(string(alert.Kind)).Inc()
	m.alertsBySev.WithLabelValues(strings.ToLower(alert.Severity.String())).Inc()
	m.lastAlertSeq.Set(float64(alert.Seq))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}
