package service

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic,
// the cache and the inquiry lifecycle.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	inquiriesSubmitted prometheus.Counter
	transitions        *prometheus.CounterVec
	repliesSent        *prometheus.CounterVec
	repliesDeleted     prometheus.Counter
	inquiriesDeleted   prometheus.Counter
	attachmentBytes    prometheus.Counter
	attachmentMissing  prometheus.Counter
	orphansRemoved     prometheus.Counter
	reconcileDuration  prometheus.Histogram

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "action", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "action", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	inquiriesSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inquiries_submitted_total",
		Help: "Contact form submissions accepted",
	})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inquiry_transitions_total",
		Help: "Inquiry status changes by event and resulting status",
	}, []string{"event", "status"})

	repliesSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inquiry_replies_total",
		Help: "Replies recorded, split by whether an attachment was stored",
	}, []string{"attachment"})

	repliesDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inquiry_replies_deleted_total",
		Help: "Replies deleted",
	})

	inquiriesDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inquiries_deleted_total",
		Help: "Inquiries deleted together with their replies",
	})

	attachmentBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attachment_bytes_stored_total",
		Help: "Bytes written to attachment storage",
	})

	attachmentMissing := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attachment_missing_total",
		Help: "Attachment paths referenced by replies with no file on disk",
	})

	orphansRemoved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attachment_orphans_removed_total",
		Help: "Unreferenced attachment files removed by reconciliation",
	})

	reconcileDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attachment_reconcile_seconds",
		Help:    "Duration of attachment reconciliation runs",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration,
		inquiriesSubmitted, transitions, repliesSent, repliesDeleted, inquiriesDeleted,
		attachmentBytes, attachmentMissing, orphansRemoved, reconcileDuration, goroutines,
	)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		dbQueryDuration:    dbQueryDuration,
		inquiriesSubmitted: inquiriesSubmitted,
		transitions:        transitions,
		repliesSent:        repliesSent,
		repliesDeleted:     repliesDeleted,
		inquiriesDeleted:   inquiriesDeleted,
		attachmentBytes:    attachmentBytes,
		attachmentMissing:  attachmentMissing,
		orphansRemoved:     orphansRemoved,
		reconcileDuration:  reconcileDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics. action is the ?action= value
// for the multiplexed contact endpoint and empty elsewhere.
func (m *MetricsService) ObserveHTTPRequest(method, path, action string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, action, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, action, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// InquirySubmitted counts an accepted public submission.
func (m *MetricsService) InquirySubmitted() {
	if m == nil {
		return
	}
	m.inquiriesSubmitted.Inc()
}

// InquiryTransition counts a status change caused by event.
func (m *MetricsService) InquiryTransition(event string, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, status).Inc()
}

// ReplySent counts a stored reply and the attachment bytes written with it.
func (m *MetricsService) ReplySent(attachmentBytes int64) {
	if m == nil {
		return
	}
	m.repliesSent.WithLabelValues(strconv.FormatBool(attachmentBytes > 0)).Inc()
	if attachmentBytes > 0 {
		m.attachmentBytes.Add(float64(attachmentBytes))
	}
}

// ReplyDeleted counts a deleted reply.
func (m *MetricsService) ReplyDeleted() {
	if m == nil {
		return
	}
	m.repliesDeleted.Inc()
}

// InquiryDeleted counts a deleted inquiry.
func (m *MetricsService) InquiryDeleted() {
	if m == nil {
		return
	}
	m.inquiriesDeleted.Inc()
}

// AttachmentMissing counts referenced attachment files that no longer exist.
func (m *MetricsService) AttachmentMissing(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.attachmentMissing.Add(float64(n))
}

// OrphansRemoved counts unreferenced files removed by reconciliation.
func (m *MetricsService) OrphansRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphansRemoved.Add(float64(n))
}

// ObserveReconcile records how long a reconciliation run took.
func (m *MetricsService) ObserveReconcile(duration time.Duration) {
	if m == nil {
		return
	}
	m.reconcileDuration.Observe(duration.Seconds())
}
