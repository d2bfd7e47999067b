package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

const namespace = "noticeserve"

// Metrics owns its registry so tests can build independent instances.
// All methods tolerate a nil receiver.
type Metrics struct {
	reg *prometheus.Registry

	apiRequests    *prometheus.CounterVec
	apiLatency     *prometheus.HistogramVec
	apiInflight    prometheus.Gauge
	batches        *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	noticesServed  prometheus.Counter
	itemFailures   prometheus.Counter
	blobUploads    *prometheus.CounterVec
	idFallbacks    *prometheus.CounterVec
	writeDuration  *prometheus.HistogramVec
	writeConflicts *prometheus.CounterVec
	writeRetries   *prometheus.CounterVec
}

func New(log *logger.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_inflight_requests",
			Help:      "HTTP requests currently being served.",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Ingested batches by terminal status.",
		}, []string{"status"}),
		ingestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_ingest_duration_seconds",
			Help:      "Wall time of one batch ingestion, attachments included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		noticesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_served_total",
			Help:      "Served notice rows committed.",
		}),
		itemFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_item_failures_total",
			Help:      "Batch items recorded as failed.",
		}),
		blobUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_uploads_total",
			Help:      "Attachment uploads by component and outcome.",
		}, []string{"component", "status"}),
		idFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "id_generator_fallbacks_total",
			Help:      "Safe integer ids produced through a fallback path.",
		}, []string{"reason"}),
		writeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_write_duration_seconds",
			Help:      "Transactional write latency by operation and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		writeConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_write_conflicts_total",
			Help:      "Transactional writes that ended in a conflict.",
		}, []string{"operation"}),
		writeRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_write_retryable_total",
			Help:      "Transactional writes that failed with a transient error.",
		}, []string{"operation"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.batches, m.ingestDuration, m.noticesServed, m.itemFailures,
		m.blobUploads, m.idFallbacks,
		m.writeDuration, m.writeConflicts, m.writeRetries,
	)
	if log != nil {
		log.Info("metrics initialized", "namespace", namespace)
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveBatch records one finished ingestion. notices and failed only
// count when the batch committed.
func (m *Metrics) ObserveBatch(status string, dur time.Duration, notices, failed int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(status).Inc()
	m.ingestDuration.WithLabelValues(status).Observe(dur.Seconds())
	if notices > 0 {
		m.noticesServed.Add(float64(notices))
	}
	if failed > 0 {
		m.itemFailures.Add(float64(failed))
	}
}

func (m *Metrics) IncBlobUpload(component, status string) {
	if m == nil {
		return
	}
	m.blobUploads.WithLabelValues(component, status).Inc()
}

// IncIDFallback satisfies ids.FallbackObserver.
func (m *Metrics) IncIDFallback(reason string) {
	if m == nil {
		return
	}
	m.idFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveWrite(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.writeDuration.WithLabelValues(op, status).Observe(dur.Seconds())
}

func (m *Metrics) IncWriteConflict(op string) {
	if m == nil {
		return
	}
	m.writeConflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) IncWriteRetry(op string) {
	if m == nil {
		return
	}
	m.writeRetries.WithLabelValues(op).Inc()
}
