package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the admission
// pipeline. A nil receiver is safe everywhere so tests can pass nil.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	admissionOutcomes    *prometheus.CounterVec
	seatConflicts        prometheus.Counter
	waitlistOffers       prometheus.Counter
	sweepRuns            prometheus.Counter
	expiredNotifications prometheus.Counter

	cacheHitRatio prometheus.Gauge
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	admissionOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_outcomes_total",
		Help: "Admission decisions by outcome",
	}, []string{"outcome"})

	seatConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seat_reservation_conflicts_total",
		Help: "Accepted offers that lost the seat race",
	})

	waitlistOffers := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "waitlist_offers_total",
		Help: "Seat offers sent to waitlisted students",
	})

	sweepRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "waitlist_sweep_runs_total",
		Help: "Expiry sweep executions",
	})

	expiredNotifications := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "waitlist_notifications_expired_total",
		Help: "Seat offers that lapsed without a response",
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

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, admissionOutcomes, seatConflicts,
		waitlistOffers, sweepRuns, expiredNotifications, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:             registry,
		handler:              handler,
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		admissionOutcomes:    admissionOutcomes,
		seatConflicts:        seatConflicts,
		waitlistOffers:       waitlistOffers,
		sweepRuns:            sweepRuns,
		expiredNotifications: expiredNotifications,
		cacheHitRatio:        cacheHitRatio,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordAdmissionOutcome counts a decision: enrolled, waitlisted, pending,
// or rejected.
func (m *MetricsService) RecordAdmissionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.admissionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSeatConflict counts an accepted offer losing the seat race.
func (m *MetricsService) RecordSeatConflict() {
	if m == nil {
		return
	}
	m.seatConflicts.Inc()
}

// RecordWaitlistOffer counts a seat offer sent to a candidate.
func (m *MetricsService) RecordWaitlistOffer() {
	if m == nil {
		return
	}
	m.waitlistOffers.Inc()
}

// RecordSweepRun counts one expiry sweep execution.
func (m *MetricsService) RecordSweepRun() {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
}

// RecordExpiredNotification counts a lapsed seat offer.
func (m *MetricsService) RecordExpiredNotification() {
	if m == nil {
		return
	}
	m.expiredNotifications.Inc()
}

// RecordCacheHit counts a cache hit and refreshes the hit ratio gauge.
func (m *MetricsService) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
	atomic.AddUint64(&m.cacheHitCount, 1)
	m.refreshHitRatio()
}

// RecordCacheMiss counts a cache miss and refreshes the hit ratio gauge.
func (m *MetricsService) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
	m.refreshHitRatio()
}

func (m *MetricsService) refreshHitRatio() {
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}
